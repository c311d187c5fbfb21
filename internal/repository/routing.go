package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/octobees/prospect-bridge/internal/entity"
)

// ErrRoutingNotFound indicates the email has no routing entry.
var ErrRoutingNotFound = errors.New("routing entry not found")

// RoutingRepository stores the email to pain profile directory.
type RoutingRepository interface {
	BulkUpsert(ctx context.Context, entries []entity.RoutingEntry) (int, error)
	FindByEmail(ctx context.Context, email string) (*entity.RoutingEntry, error)
	ProfileStats(ctx context.Context) ([]entity.ProfileStats, error)
}

// PGXRoutingRepository implements RoutingRepository using pgx.
type PGXRoutingRepository struct {
	pool pgxPool
}

// NewPGXRoutingRepository wires a pgx backed routing directory.
func NewPGXRoutingRepository(pool *pgxpool.Pool) *PGXRoutingRepository {
	return &PGXRoutingRepository{pool: pool}
}

const upsertRoutingSQL = `
        INSERT INTO routing (email, pain_profile, company, first_name, last_name, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        ON CONFLICT (email) DO UPDATE SET
            pain_profile = EXCLUDED.pain_profile,
            company = EXCLUDED.company,
            first_name = EXCLUDED.first_name,
            last_name = EXCLUDED.last_name,
            updated_at = NOW();
    `

// BulkUpsert writes every entry in one transaction and returns how many were stored.
func (r *PGXRoutingRepository) BulkUpsert(ctx context.Context, entries []entity.RoutingEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("start routing upsert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	loaded := 0
	for _, entry := range entries {
		if _, err := tx.Exec(ctx, upsertRoutingSQL, entry.Email, entry.PainProfile, entry.Company, entry.FirstName, entry.LastName); err != nil {
			return 0, fmt.Errorf("upsert routing %q: %w", entry.Email, err)
		}
		loaded++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit routing upsert tx: %w", err)
	}
	return loaded, nil
}

// FindByEmail returns the routing entry for an email.
func (r *PGXRoutingRepository) FindByEmail(ctx context.Context, email string) (*entity.RoutingEntry, error) {
	row := r.pool.QueryRow(ctx, `SELECT email, pain_profile, company, first_name, last_name, updated_at FROM routing WHERE email = $1`, email)

	var entry entity.RoutingEntry
	if err := row.Scan(&entry.Email, &entry.PainProfile, &entry.Company, &entry.FirstName, &entry.LastName, &entry.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoutingNotFound
		}
		return nil, fmt.Errorf("query routing by email: %w", err)
	}
	return &entry, nil
}

// ProfileStats counts routed contacts and their queue outcome per pain profile.
func (r *PGXRoutingRepository) ProfileStats(ctx context.Context) ([]entity.ProfileStats, error) {
	query := `
        SELECT
            r.pain_profile,
            COUNT(*) AS contacts,
            COUNT(p.id) FILTER (WHERE p.status = 'pending') AS pending,
            COUNT(p.id) FILTER (WHERE p.status = 'sent') AS sent,
            COUNT(p.id) FILTER (WHERE p.status = 'failed') AS failed
        FROM routing r
        LEFT JOIN prospects p ON p.email = r.email
        GROUP BY r.pain_profile
        ORDER BY r.pain_profile ASC
    `

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query profile stats: %w", err)
	}
	defer rows.Close()

	stats := []entity.ProfileStats{}
	for rows.Next() {
		var s entity.ProfileStats
		if err := rows.Scan(&s.PainProfile, &s.Contacts, &s.Pending, &s.Sent, &s.Failed); err != nil {
			return nil, fmt.Errorf("scan profile stats: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile stats: %w", err)
	}
	return stats, nil
}
