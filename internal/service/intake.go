package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/octobees/prospect-bridge/internal/entity"
	"github.com/octobees/prospect-bridge/internal/repository"
)

// ErrInvalidPayload indicates the webhook body is not a JSON object.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// ProspectQueue accepts newly scheduled prospects.
type ProspectQueue interface {
	Insert(ctx context.Context, prospect *entity.Prospect) error
}

// IntakeResult describes what happened to an inbound event.
type IntakeResult struct {
	Accepted   bool
	Duplicate  bool
	ProspectID int64
	Email      string
	SendAt     time.Time
	CampaignID *string
	Company    string
}

// IntakeService schedules prospects from inbound webhook events.
type IntakeService struct {
	identity *IdentityResolver
	routing  *RoutingResolver
	queue    ProspectQueue
	delay    time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// IntakeOption configures optional dependencies.
type IntakeOption func(*IntakeService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) IntakeOption {
	return func(s *IntakeService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewIntakeService constructs an IntakeService.
func NewIntakeService(identity *IdentityResolver, routing *RoutingResolver, queue ProspectQueue, delay time.Duration, logger *zap.Logger, opts ...IntakeOption) *IntakeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &IntakeService{
		identity: identity,
		routing:  routing,
		queue:    queue,
		delay:    delay,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Accept decodes the raw event, resolves identity and route, and queues the
// prospect for send at now+delay. A repeated email is reported as a duplicate.
func (s *IntakeService) Accept(ctx context.Context, raw []byte) (IntakeResult, error) {
	var event map[string]any
	if err := json.Unmarshal(raw, &event); err != nil || event == nil {
		return IntakeResult{}, ErrInvalidPayload
	}

	id, err := s.identity.Resolve(ctx, event)
	if err != nil {
		return IntakeResult{}, err
	}

	route, err := s.routing.Resolve(ctx, id.Email, id.Company)
	if err != nil {
		return IntakeResult{}, err
	}

	source := ExtractSourceCampaign(event)
	prospect := &entity.Prospect{
		FirstName:          id.FirstName,
		LastName:           id.LastName,
		Email:              id.Email,
		LinkedInURL:        id.LinkedInURL,
		Company:            route.Company,
		Phone:              id.Phone,
		CampaignID:         route.CampaignID,
		PainProfile:        route.PainProfile,
		SourceCampaignID:   optional(source.ID),
		SourceCampaignName: optional(source.Name),
		SendAt:             s.now().Add(s.delay).UTC(),
		RawPayload:         append([]byte(nil), raw...),
	}

	if err := s.queue.Insert(ctx, prospect); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			s.logger.Info("duplicate prospect skipped", zap.String("email", id.Email))
			return IntakeResult{Duplicate: true, Email: id.Email}, nil
		}
		return IntakeResult{}, fmt.Errorf("queue prospect: %w", err)
	}

	s.logger.Info("prospect scheduled",
		zap.Int64("id", prospect.ID),
		zap.String("email", prospect.Email),
		zap.Time("send_at", prospect.SendAt),
		zap.Stringp("campaign_id", prospect.CampaignID),
	)

	return IntakeResult{
		Accepted:   true,
		ProspectID: prospect.ID,
		Email:      prospect.Email,
		SendAt:     prospect.SendAt,
		CampaignID: prospect.CampaignID,
		Company:    prospect.Company,
	}, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
