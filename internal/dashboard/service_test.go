package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bacorsx/EcoEnergy-IC/internal/cache"
	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

type fakeReader struct {
	calls       int
	since       time.Time
	filters     []storage.EventFilter
	limits      []int
	products    map[string]storage.Product
	countResult int
}

func (f *fakeReader) SeverityCounts(_ context.Context, since time.Time) ([]storage.SeverityCount, error) {
	f.calls++
	f.since = since
	return []storage.SeverityCount{{Severity: storage.SeverityHigh, Count: 2}}, nil
}

func (f *fakeReader) ListEvents(_ context.Context, filter storage.EventFilter) ([]storage.EventView, error) {
	f.filters = append(f.filters, filter)
	return []storage.EventView{{AlertEvent: storage.AlertEvent{ID: "e-1"}}}, nil
}

func (f *fakeReader) CountEvents(_ context.Context, filter storage.EventFilter) (int, error) {
	f.filters = append(f.filters, filter)
	return f.countResult, nil
}

func (f *fakeReader) ListMeasurements(_ context.Context, _ string, limit int) ([]storage.Measurement, error) {
	f.limits = append(f.limits, limit)
	return []storage.Measurement{{ID: "m-1"}}, nil
}

func (f *fakeReader) GetProduct(_ context.Context, id string) (storage.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return storage.Product{}, storage.ErrNotFound
	}
	return p, nil
}

func newService(r Reader) *Service {
	s := NewService(r, cache.NewMemoryCache(time.Minute), time.Minute, zerolog.Nop())
	s.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestSummaryIsCachedUntilInvalidated(t *testing.T) {
	reader := &fakeReader{}
	svc := newService(reader)
	ctx := context.Background()

	first, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC), reader.since)
	assert.Equal(t, recentEventsLimit, reader.filters[0].Limit)
	assert.Equal(t, []int{latestReadingLimit}, reader.limits)
	require.Len(t, first.RecentEvents, 1)

	_, err = svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reader.calls)

	require.NoError(t, svc.Invalidate(ctx, ""))
	_, err = svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, reader.calls)
}

func TestProductDetail(t *testing.T) {
	reader := &fakeReader{products: map[string]storage.Product{"p-1": {ID: "p-1", Name: "meter"}}, countResult: 3}
	svc := newService(reader)

	detail, err := svc.ProductDetail(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "meter", detail.Product.Name)
	assert.Equal(t, 3, detail.ActiveAlerts)
	assert.Equal(t, []int{productReadLimit}, reader.limits)
	require.Len(t, reader.filters, 2)
	assert.Equal(t, productEventsLimit, reader.filters[0].Limit)
	require.NotNil(t, reader.filters[1].Resolved)
	assert.False(t, *reader.filters[1].Resolved)

	_, err = svc.ProductDetail(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInvalidateProductDropsDetail(t *testing.T) {
	reader := &fakeReader{products: map[string]storage.Product{"p-1": {ID: "p-1"}}}
	svc := newService(reader)
	ctx := context.Background()

	_, err := svc.ProductDetail(ctx, "p-1")
	require.NoError(t, err)
	_, err = svc.ProductDetail(ctx, "p-1")
	require.NoError(t, err)
	assert.Len(t, reader.limits, 1)

	require.NoError(t, svc.Invalidate(ctx, "p-1"))
	_, err = svc.ProductDetail(ctx, "p-1")
	require.NoError(t, err)
	assert.Len(t, reader.limits, 2)
}

func TestServiceWithoutCache(t *testing.T) {
	reader := &fakeReader{}
	svc := NewService(reader, nil, time.Minute, zerolog.Nop())
	_, err := svc.Summary(context.Background())
	require.NoError(t, err)
	_, err = svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, reader.calls)
	assert.NoError(t, svc.Invalidate(context.Background(), "p"))
}
