// Package worker flushes due prospects to the delivery API on a schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/octobees/prospect-bridge/internal/entity"
	"github.com/octobees/prospect-bridge/internal/repository"
)

// ErrTickInProgress is returned when a tick starts while another is running.
var ErrTickInProgress = errors.New("dispatch tick already in progress")

const defaultMaxAttempts = 3

// Store is the subset of the prospect queue used by the dispatcher.
type Store interface {
	DueProspects(ctx context.Context, now time.Time) ([]entity.Prospect, error)
	IncrementAttempts(ctx context.Context, id int64) (int, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, message string) error
}

// Sender delivers a prospect to a campaign.
type Sender interface {
	Send(ctx context.Context, prospect entity.Prospect, campaignID string) error
}

// TickSummary counts what one tick did. Skipped covers prospects left
// untouched or unrecorded because of a store error.
type TickSummary struct {
	Due      int
	Sent     int
	Retrying int
	Failed   int
	Skipped  int
}

// Dispatcher processes due prospects one at a time.
type Dispatcher struct {
	store           Store
	sender          Sender
	defaultCampaign string
	maxAttempts     int
	now             func() time.Time
	logger          *zap.Logger

	running sync.Mutex
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithNow overrides the clock used to select due prospects.
func WithNow(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher constructs a Dispatcher. maxAttempts below one falls back to three.
func NewDispatcher(store Store, sender Sender, defaultCampaign string, maxAttempts int, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		store:           store,
		sender:          sender,
		defaultCampaign: strings.TrimSpace(defaultCampaign),
		maxAttempts:     maxAttempts,
		now:             time.Now,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Tick snapshots due prospects and processes them sequentially. A failure for
// one prospect never stops the rest of the batch.
func (d *Dispatcher) Tick(ctx context.Context) (TickSummary, error) {
	if !d.running.TryLock() {
		dispatchTicks.WithLabelValues("overlap").Inc()
		return TickSummary{}, ErrTickInProgress
	}
	defer d.running.Unlock()

	start := time.Now()
	defer func() { dispatchTickDuration.Observe(time.Since(start).Seconds()) }()

	due, err := d.store.DueProspects(ctx, d.now())
	if err != nil {
		dispatchTicks.WithLabelValues("error").Inc()
		return TickSummary{}, fmt.Errorf("load due prospects: %w", err)
	}

	summary := TickSummary{Due: len(due)}
	if len(due) == 0 {
		dispatchTicks.WithLabelValues("ok").Inc()
		return summary, nil
	}
	d.logger.Info("processing due prospects", zap.Int("count", len(due)))

	for _, p := range due {
		switch d.process(ctx, p) {
		case outcomeSent:
			summary.Sent++
		case outcomeRetrying:
			summary.Retrying++
		case outcomeFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}

	recordSummary(summary)
	dispatchTicks.WithLabelValues("ok").Inc()
	return summary, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeRetrying
	outcomeFailed
)

func (d *Dispatcher) process(ctx context.Context, p entity.Prospect) outcome {
	logger := d.logger.With(zap.Int64("id", p.ID), zap.String("email", p.Email))

	// A row can stay pending at the limit after a crash mid-send or a lowered MAX_ATTEMPTS.
	if p.Attempts >= d.maxAttempts {
		msg := fmt.Sprintf("attempts exhausted (%d/%d)", p.Attempts, d.maxAttempts)
		if err := d.store.MarkFailed(ctx, p.ID, msg); err != nil {
			logTransitionError(logger, "mark failed", err)
			return outcomeSkipped
		}
		logger.Error("prospect failed without delivery, attempts exhausted", zap.Int("attempts", p.Attempts))
		return outcomeFailed
	}

	attempt, err := d.store.IncrementAttempts(ctx, p.ID)
	if err != nil {
		logger.Error("could not record attempt, skipping prospect", zap.Error(err))
		return outcomeSkipped
	}

	campaign := d.defaultCampaign
	if p.CampaignID != nil && strings.TrimSpace(*p.CampaignID) != "" {
		campaign = strings.TrimSpace(*p.CampaignID)
	}

	sendErr := d.sender.Send(ctx, p, campaign)
	if sendErr == nil {
		if err := d.store.MarkSent(ctx, p.ID); err != nil {
			logTransitionError(logger, "mark sent", err)
			return outcomeSkipped
		}
		logger.Info("prospect sent", zap.String("campaign_id", campaign), zap.Int("attempt", attempt))
		return outcomeSent
	}

	if attempt < d.maxAttempts {
		logger.Warn("prospect attempt failed, will retry",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", d.maxAttempts),
			zap.Error(sendErr),
		)
		return outcomeRetrying
	}

	if err := d.store.MarkFailed(ctx, p.ID, sendErr.Error()); err != nil {
		logTransitionError(logger, "mark failed", err)
		return outcomeSkipped
	}
	logger.Error("prospect failed permanently after max attempts",
		zap.Int("attempt", attempt),
		zap.Error(sendErr),
	)
	return outcomeFailed
}

func logTransitionError(logger *zap.Logger, op string, err error) {
	if errors.Is(err, repository.ErrInvalidTransition) {
		logger.Warn("prospect no longer pending", zap.String("op", op), zap.Error(err))
		return
	}
	logger.Error("could not update prospect status", zap.String("op", op), zap.Error(err))
}
