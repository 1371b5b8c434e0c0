package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const lifecycleColumns = `status, created_at, updated_at, deleted_at`

func (r *Repository) CreateOrganization(ctx context.Context, name string, email *string) (Organization, error) {
	var org Organization
	err := r.Store.Pool.QueryRow(ctx, `
		INSERT INTO organizations (id, name, email, status, created_at, updated_at)
		VALUES ($1,$2,$3,'ACTIVE',now(),now())
		RETURNING id, name, email, `+lifecycleColumns,
		uuid.NewString(), name, email,
	).Scan(&org.ID, &org.Name, &org.Email, &org.Status, &org.CreatedAt, &org.UpdatedAt, &org.DeletedAt)
	if err != nil {
		return Organization{}, fmt.Errorf("insert organization: %w", classify(err))
	}
	return org, nil
}

func (r *Repository) CreateZone(ctx context.Context, organizationID, name string) (Zone, error) {
	var z Zone
	err := r.Store.Pool.QueryRow(ctx, `
		INSERT INTO zones (id, organization_id, name, status, created_at, updated_at)
		VALUES ($1,$2,$3,'ACTIVE',now(),now())
		RETURNING id, organization_id, name, `+lifecycleColumns,
		uuid.NewString(), organizationID, name,
	).Scan(&z.ID, &z.OrganizationID, &z.Name, &z.Status, &z.CreatedAt, &z.UpdatedAt, &z.DeletedAt)
	if err != nil {
		return Zone{}, fmt.Errorf("insert zone: %w", classify(err))
	}
	return z, nil
}

func (r *Repository) CreateCategory(ctx context.Context, name string) (Category, error) {
	var c Category
	err := r.Store.Pool.QueryRow(ctx, `
		INSERT INTO categories (id, name, status, created_at, updated_at)
		VALUES ($1,$2,'ACTIVE',now(),now())
		RETURNING id, name, `+lifecycleColumns,
		uuid.NewString(), name,
	).Scan(&c.ID, &c.Name, &c.Status, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if err != nil {
		return Category{}, fmt.Errorf("insert category: %w", classify(err))
	}
	return c, nil
}

func (r *Repository) CreateDevice(ctx context.Context, d Device) (Device, error) {
	var out Device
	err := r.Store.Pool.QueryRow(ctx, `
		INSERT INTO devices (id, organization_id, zone_id, name, serial_number, installed_at, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,'ACTIVE',now(),now())
		RETURNING id, organization_id, zone_id, name, serial_number, installed_at, `+lifecycleColumns,
		uuid.NewString(), d.OrganizationID, d.ZoneID, d.Name, d.SerialNumber, d.InstalledAt,
	).Scan(&out.ID, &out.OrganizationID, &out.ZoneID, &out.Name, &out.SerialNumber, &out.InstalledAt, &out.Status, &out.CreatedAt, &out.UpdatedAt, &out.DeletedAt)
	if err != nil {
		return Device{}, fmt.Errorf("insert device: %w", classify(err))
	}
	return out, nil
}

const productColumns = `id, device_id, category_id, name, model, serial_number, ` + lifecycleColumns

func (r *Repository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		INSERT INTO products (id, device_id, category_id, name, model, serial_number, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,'ACTIVE',now(),now())
		RETURNING `+productColumns,
		uuid.NewString(), p.DeviceID, p.CategoryID, p.Name, p.Model, p.SerialNumber,
	)
	out, err := scanProduct(row)
	if err != nil {
		return Product{}, fmt.Errorf("insert product: %w", classify(err))
	}
	return out, nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (Product, error) {
	return getProduct(ctx, r.Store.Pool, id, false)
}

func (r *Repository) GetProductIncludingDeleted(ctx context.Context, id string) (Product, error) {
	return getProduct(ctx, r.Store.Pool, id, true)
}

func getProduct(ctx context.Context, q querier, id string, includeDeleted bool) (Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id=$1`
	if !includeDeleted {
		query += ` AND status='ACTIVE'`
	}
	p, err := scanProduct(q.QueryRow(ctx, query, id))
	if err != nil {
		return Product{}, notFound(err)
	}
	return p, nil
}

func scanProduct(row scanner) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.DeviceID, &p.CategoryID, &p.Name, &p.Model, &p.SerialNumber, &p.Status, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	return p, err
}

// Entity names a table that carries the lifecycle columns.
type Entity string

const (
	EntityOrganization Entity = "organizations"
	EntityZone         Entity = "zones"
	EntityCategory     Entity = "categories"
	EntityDevice       Entity = "devices"
	EntityProduct      Entity = "products"
	EntityMeasurement  Entity = "measurements"
	EntityRule         Entity = "alert_rules"
)

// PurgeOrder lists every entity children first, so purging in this order
// never trips a foreign key.
var PurgeOrder = []Entity{EntityRule, EntityMeasurement, EntityProduct, EntityDevice, EntityZone, EntityCategory, EntityOrganization}

func ParseEntity(name string) (Entity, bool) {
	e := Entity(strings.ToLower(strings.TrimSpace(name)))
	return e, e.valid()
}

func (e Entity) valid() bool {
	switch e {
	case EntityOrganization, EntityZone, EntityCategory, EntityDevice, EntityProduct, EntityMeasurement, EntityRule:
		return true
	}
	return false
}

// SoftDelete marks a row DELETED and stamps deleted_at. Deleting an already
// deleted row is a no-op.
func (r *Repository) SoftDelete(ctx context.Context, entity Entity, id string) error {
	if !entity.valid() {
		return fmt.Errorf("unknown entity %q", entity)
	}
	tag, err := r.Store.Pool.Exec(ctx, `
		UPDATE `+string(entity)+` SET status='DELETED', deleted_at=now(), updated_at=now()
		WHERE id=$1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft delete %s: %w", entity, err)
	}
	if tag.RowsAffected() == 0 {
		return r.ensureExists(ctx, entity, id)
	}
	return nil
}

func (r *Repository) Restore(ctx context.Context, entity Entity, id string) error {
	if !entity.valid() {
		return fmt.Errorf("unknown entity %q", entity)
	}
	tag, err := r.Store.Pool.Exec(ctx, `
		UPDATE `+string(entity)+` SET status='ACTIVE', deleted_at=NULL, updated_at=now()
		WHERE id=$1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("restore %s: %w", entity, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return r.ensureExists(ctx, entity, id)
	}
	return nil
}

// HardDelete removes the row physically. Foreign keys cascade to dependent
// rules, measurements and alert events.
func (r *Repository) HardDelete(ctx context.Context, entity Entity, id string) error {
	if !entity.valid() {
		return fmt.Errorf("unknown entity %q", entity)
	}
	tag, err := r.Store.Pool.Exec(ctx, `DELETE FROM `+string(entity)+` WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("hard delete %s: %w", entity, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeDeleted hard-deletes rows soft-deleted before the cutoff.
func (r *Repository) PurgeDeleted(ctx context.Context, entity Entity, before time.Time) (int64, error) {
	if !entity.valid() {
		return 0, fmt.Errorf("unknown entity %q", entity)
	}
	tag, err := r.Store.Pool.Exec(ctx, `DELETE FROM `+string(entity)+` WHERE deleted_at IS NOT NULL AND deleted_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", entity, err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) ensureExists(ctx context.Context, entity Entity, id string) error {
	var exists bool
	if err := r.Store.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+string(entity)+` WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}
