package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/octobees/prospect-bridge/internal/entity"
)

var (
	// ErrDuplicateEmail is returned when a prospect with the same email is already queued.
	ErrDuplicateEmail = errors.New("prospect email already queued")
	// ErrProspectNotFound indicates no prospect matches the identifier.
	ErrProspectNotFound = errors.New("prospect not found")
	// ErrInvalidTransition is returned when a terminal status change targets a non-pending prospect.
	ErrInvalidTransition = errors.New("prospect is not pending")
)

// ProspectsRepository is the durable dispatch queue.
type ProspectsRepository interface {
	Insert(ctx context.Context, prospect *entity.Prospect) error
	DueProspects(ctx context.Context, now time.Time) ([]entity.Prospect, error)
	IncrementAttempts(ctx context.Context, id int64) (int, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, message string) error
	StatusCounts(ctx context.Context) (entity.StatusCounts, error)
}

// PGXProspectsRepository implements ProspectsRepository using pgx.
// Writes go through a single mutex; reads are not serialised.
type PGXProspectsRepository struct {
	pool    pgxPool
	writeMu sync.Mutex
}

// NewPGXProspectsRepository wires a pgx backed prospect queue.
func NewPGXProspectsRepository(pool *pgxpool.Pool) *PGXProspectsRepository {
	return &PGXProspectsRepository{pool: pool}
}

const prospectColumns = `
            id,
            first_name,
            last_name,
            email,
            linkedin_url,
            company,
            phone,
            campaign_id,
            pain_profile,
            heyreach_campaign_id,
            heyreach_campaign_name,
            status,
            attempts,
            send_at,
            created_at,
            sent_at,
            error,
            COALESCE(payload, convert_to(raw_payload::text, 'UTF8'))`

// Insert queues a new pending prospect. A second insert for the same email
// leaves the existing row untouched and returns ErrDuplicateEmail.
func (r *PGXProspectsRepository) Insert(ctx context.Context, prospect *entity.Prospect) error {
	if prospect == nil {
		return fmt.Errorf("prospect payload is nil")
	}
	if prospect.Email == "" {
		return fmt.Errorf("prospect email is required")
	}

	// payload is BYTEA; the body round-trips byte for byte.
	var raw []byte
	if len(prospect.RawPayload) > 0 {
		raw = prospect.RawPayload
	}

	query := `
        INSERT INTO prospects (
            first_name,
            last_name,
            email,
            linkedin_url,
            company,
            phone,
            campaign_id,
            pain_profile,
            heyreach_campaign_id,
            heyreach_campaign_name,
            payload,
            send_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        ON CONFLICT (email) DO NOTHING
        RETURNING id, status, attempts, created_at
    `

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	var status string
	err := r.pool.QueryRow(ctx, query,
		prospect.FirstName,
		prospect.LastName,
		prospect.Email,
		stringOrNil(&prospect.LinkedInURL),
		prospect.Company,
		prospect.Phone,
		stringOrNil(prospect.CampaignID),
		stringOrNil(prospect.PainProfile),
		stringOrNil(prospect.SourceCampaignID),
		stringOrNil(prospect.SourceCampaignName),
		raw,
		prospect.SendAt,
	).Scan(&prospect.ID, &status, &prospect.Attempts, &prospect.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert prospect: %w", err)
	}
	prospect.Status = entity.ProspectStatus(status)

	return nil
}

// DueProspects returns a snapshot of pending prospects whose send time has passed.
func (r *PGXProspectsRepository) DueProspects(ctx context.Context, now time.Time) ([]entity.Prospect, error) {
	query := `SELECT` + prospectColumns + `
        FROM prospects
        WHERE status = 'pending' AND send_at <= $1
        ORDER BY send_at ASC, id ASC
    `

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("query due prospects: %w", err)
	}
	defer rows.Close()

	var prospects []entity.Prospect
	for rows.Next() {
		p, err := scanProspect(rows)
		if err != nil {
			return nil, err
		}
		prospects = append(prospects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due prospects: %w", err)
	}
	return prospects, nil
}

// IncrementAttempts bumps the attempt counter and returns the new value.
func (r *PGXProspectsRepository) IncrementAttempts(ctx context.Context, id int64) (int, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	var attempts int
	err := r.pool.QueryRow(ctx, `UPDATE prospects SET attempts = attempts + 1 WHERE id = $1 RETURNING attempts`, id).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProspectNotFound
		}
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return attempts, nil
}

// MarkSent moves a pending prospect to sent and stamps sent_at.
func (r *PGXProspectsRepository) MarkSent(ctx context.Context, id int64) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	cmd, err := r.pool.Exec(ctx, `UPDATE prospects SET status = 'sent', sent_at = NOW() WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("mark prospect sent: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("mark prospect %d sent: %w", id, ErrInvalidTransition)
	}
	return nil
}

// MarkFailed moves a pending prospect to failed and records the error text.
func (r *PGXProspectsRepository) MarkFailed(ctx context.Context, id int64, message string) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	cmd, err := r.pool.Exec(ctx, `UPDATE prospects SET status = 'failed', error = $2 WHERE id = $1 AND status = 'pending'`, id, message)
	if err != nil {
		return fmt.Errorf("mark prospect failed: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("mark prospect %d failed: %w", id, ErrInvalidTransition)
	}
	return nil
}

// StatusCounts aggregates prospects per status.
func (r *PGXProspectsRepository) StatusCounts(ctx context.Context) (entity.StatusCounts, error) {
	var counts entity.StatusCounts

	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM prospects GROUP BY status`)
	if err != nil {
		return counts, fmt.Errorf("count prospects: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return counts, fmt.Errorf("scan status count: %w", err)
		}
		switch entity.ProspectStatus(status) {
		case entity.StatusPending:
			counts.Pending = count
		case entity.StatusSent:
			counts.Sent = count
		case entity.StatusFailed:
			counts.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return counts, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

func scanProspect(row rowScanner) (entity.Prospect, error) {
	var (
		p           entity.Prospect
		linkedIn    sql.NullString
		campaignID  sql.NullString
		painProfile sql.NullString
		srcCampaign sql.NullString
		srcName     sql.NullString
		status      string
		sentAt      sql.NullTime
		lastError   sql.NullString
		raw         []byte
	)

	err := row.Scan(
		&p.ID,
		&p.FirstName,
		&p.LastName,
		&p.Email,
		&linkedIn,
		&p.Company,
		&p.Phone,
		&campaignID,
		&painProfile,
		&srcCampaign,
		&srcName,
		&status,
		&p.Attempts,
		&p.SendAt,
		&p.CreatedAt,
		&sentAt,
		&lastError,
		&raw,
	)
	if err != nil {
		return entity.Prospect{}, fmt.Errorf("scan prospect: %w", err)
	}

	p.LinkedInURL = linkedIn.String
	p.CampaignID = nullStringToPtr(campaignID)
	p.PainProfile = nullStringToPtr(painProfile)
	p.SourceCampaignID = nullStringToPtr(srcCampaign)
	p.SourceCampaignName = nullStringToPtr(srcName)
	p.Status = entity.ProspectStatus(status)
	p.LastError = nullStringToPtr(lastError)
	if sentAt.Valid {
		ts := sentAt.Time
		p.SentAt = &ts
	}
	if len(raw) > 0 {
		p.RawPayload = append([]byte(nil), raw...)
	}
	return p, nil
}
