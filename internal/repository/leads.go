package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/octobees/prospect-bridge/internal/entity"
)

// ErrLeadNotFound indicates no lead matches the lookup criteria.
var ErrLeadNotFound = errors.New("lead not found")

// LeadsRepository stores the known-contact directory used for email recovery.
type LeadsRepository interface {
	BulkUpsert(ctx context.Context, leads []entity.Lead) (int, error)
	FindByLinkedIn(ctx context.Context, linkedInURL string) (*entity.Lead, error)
	FindByName(ctx context.Context, firstName, lastName string) (*entity.Lead, error)
	FindByFirstName(ctx context.Context, firstName string) (*entity.Lead, error)
}

// PGXLeadsRepository implements LeadsRepository using pgx.
type PGXLeadsRepository struct {
	pool pgxPool
}

// NewPGXLeadsRepository wires a pgx backed lead directory.
func NewPGXLeadsRepository(pool *pgxpool.Pool) *PGXLeadsRepository {
	return &PGXLeadsRepository{pool: pool}
}

const upsertLeadSQL = `
        INSERT INTO leads (email, first_name, last_name, linkedin_url, company, phone, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW())
        ON CONFLICT (email) DO UPDATE SET
            first_name = EXCLUDED.first_name,
            last_name = EXCLUDED.last_name,
            linkedin_url = EXCLUDED.linkedin_url,
            company = EXCLUDED.company,
            phone = EXCLUDED.phone,
            updated_at = NOW();
    `

const leadColumns = `email, first_name, last_name, linkedin_url, company, phone, created_at, updated_at`

// BulkUpsert stores leads keyed by email. A lead whose linkedin URL already
// belongs to another email is skipped and not counted.
func (r *PGXLeadsRepository) BulkUpsert(ctx context.Context, leads []entity.Lead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("start lead upsert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	loaded := 0
	for _, lead := range leads {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return 0, fmt.Errorf("open lead savepoint: %w", err)
		}

		_, err = sp.Exec(ctx, upsertLeadSQL,
			lead.Email,
			lead.FirstName,
			lead.LastName,
			NormalizeLinkedIn(lead.LinkedInURL),
			lead.Company,
			lead.Phone,
		)
		if err != nil {
			_ = sp.Rollback(ctx)
			if isUniqueViolation(err) {
				continue
			}
			return 0, fmt.Errorf("upsert lead %q: %w", lead.Email, err)
		}
		if err := sp.Commit(ctx); err != nil {
			return 0, fmt.Errorf("release lead savepoint: %w", err)
		}
		loaded++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit lead upsert tx: %w", err)
	}
	return loaded, nil
}

// FindByLinkedIn matches a profile URL ignoring trailing slashes.
func (r *PGXLeadsRepository) FindByLinkedIn(ctx context.Context, linkedInURL string) (*entity.Lead, error) {
	url := NormalizeLinkedIn(linkedInURL)
	if url == "" {
		return nil, ErrLeadNotFound
	}
	return r.findOne(ctx, "find lead by linkedin",
		`SELECT `+leadColumns+` FROM leads WHERE linkedin_url <> '' AND RTRIM(linkedin_url, '/') = $1 ORDER BY created_at ASC LIMIT 1`,
		url)
}

// FindByName matches first and last name case-insensitively.
func (r *PGXLeadsRepository) FindByName(ctx context.Context, firstName, lastName string) (*entity.Lead, error) {
	return r.findOne(ctx, "find lead by name",
		`SELECT `+leadColumns+` FROM leads WHERE LOWER(first_name) = LOWER($1) AND LOWER(last_name) = LOWER($2) ORDER BY created_at ASC LIMIT 1`,
		firstName, lastName)
}

// FindByFirstName matches the first name only, case-insensitively.
func (r *PGXLeadsRepository) FindByFirstName(ctx context.Context, firstName string) (*entity.Lead, error) {
	return r.findOne(ctx, "find lead by first name",
		`SELECT `+leadColumns+` FROM leads WHERE LOWER(first_name) = LOWER($1) ORDER BY created_at ASC LIMIT 1`,
		firstName)
}

func (r *PGXLeadsRepository) findOne(ctx context.Context, op, query string, args ...any) (*entity.Lead, error) {
	var lead entity.Lead
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&lead.Email,
		&lead.FirstName,
		&lead.LastName,
		&lead.LinkedInURL,
		&lead.Company,
		&lead.Phone,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &lead, nil
}
