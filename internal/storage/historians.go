package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateHistorian stores an external historian registration. Password must
// already be encrypted by the caller.
func (r *Repository) CreateHistorian(ctx context.Context, h Historian) (string, error) {
	id := uuid.NewString()
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO historians (id, name, type, host, port, user_name, password_enc, database, ssl_mode, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())`,
		id, h.Name, h.Type, h.Host, h.Port, h.User, h.Password, h.Database, h.SSLMode,
	)
	if err != nil {
		return "", fmt.Errorf("insert historian: %w", classify(err))
	}
	return id, nil
}

// GetHistorian returns the registration with the password still encrypted.
func (r *Repository) GetHistorian(ctx context.Context, id string) (Historian, error) {
	var h Historian
	err := r.Store.Pool.QueryRow(ctx, `
		SELECT id, name, type, host, port, user_name, password_enc, database, ssl_mode, created_at
		FROM historians WHERE id=$1`, id,
	).Scan(&h.ID, &h.Name, &h.Type, &h.Host, &h.Port, &h.User, &h.Password, &h.Database, &h.SSLMode, &h.CreatedAt)
	if err != nil {
		return Historian{}, notFound(err)
	}
	return h, nil
}

func (r *Repository) ListHistorians(ctx context.Context) ([]Historian, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, name, type, host, port, user_name, password_enc, database, ssl_mode, created_at
		FROM historians ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []Historian{}
	for rows.Next() {
		var h Historian
		if err := rows.Scan(&h.ID, &h.Name, &h.Type, &h.Host, &h.Port, &h.User, &h.Password, &h.Database, &h.SSLMode, &h.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}
