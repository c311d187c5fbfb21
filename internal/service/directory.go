package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/octobees/prospect-bridge/internal/entity"
	"github.com/octobees/prospect-bridge/internal/repository"
)

// StatusCounter reports queue totals per status.
type StatusCounter interface {
	StatusCounts(ctx context.Context) (entity.StatusCounts, error)
}

// DirectoryService maintains the routing and lead directories and reports queue totals.
type DirectoryService struct {
	leads       repository.LeadsRepository
	routing     repository.RoutingRepository
	prospects   StatusCounter
	phoneRegion string
	logger      *zap.Logger
}

// NewDirectoryService constructs a DirectoryService.
func NewDirectoryService(leads repository.LeadsRepository, routing repository.RoutingRepository, prospects StatusCounter, phoneRegion string, logger *zap.Logger) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{
		leads:       leads,
		routing:     routing,
		prospects:   prospects,
		phoneRegion: phoneRegion,
		logger:      logger,
	}
}

// LoadLeads normalises and upserts leads. Items without a valid email are skipped.
func (s *DirectoryService) LoadLeads(ctx context.Context, items []entity.Lead) (int, error) {
	leads := make([]entity.Lead, 0, len(items))
	for _, item := range items {
		email := NormalizeEmail(item.Email)
		if email == "" {
			s.logger.Debug("skipping lead without valid email", zap.String("email", item.Email))
			continue
		}
		leads = append(leads, entity.Lead{
			Email:       email,
			FirstName:   strings.TrimSpace(item.FirstName),
			LastName:    strings.TrimSpace(item.LastName),
			LinkedInURL: repository.NormalizeLinkedIn(item.LinkedInURL),
			Company:     strings.TrimSpace(item.Company),
			Phone:       NormalizePhone(item.Phone, s.phoneRegion),
		})
	}

	loaded, err := s.leads.BulkUpsert(ctx, leads)
	if err != nil {
		return 0, fmt.Errorf("load leads: %w", err)
	}
	s.logger.Info("lead directory loaded", zap.Int("received", len(items)), zap.Int("loaded", loaded))
	return loaded, nil
}

// LoadRouting normalises and upserts routing entries. Items without a valid
// email or a pain profile are skipped.
func (s *DirectoryService) LoadRouting(ctx context.Context, items []entity.RoutingEntry) (int, error) {
	entries := make([]entity.RoutingEntry, 0, len(items))
	for _, item := range items {
		email := NormalizeEmail(item.Email)
		profile := strings.ToLower(strings.TrimSpace(item.PainProfile))
		if email == "" || profile == "" {
			continue
		}
		entries = append(entries, entity.RoutingEntry{
			Email:       email,
			PainProfile: profile,
			Company:     strings.TrimSpace(item.Company),
			FirstName:   strings.TrimSpace(item.FirstName),
			LastName:    strings.TrimSpace(item.LastName),
		})
	}

	loaded, err := s.routing.BulkUpsert(ctx, entries)
	if err != nil {
		return 0, fmt.Errorf("load routing: %w", err)
	}
	s.logger.Info("routing directory loaded", zap.Int("received", len(items)), zap.Int("loaded", loaded))
	return loaded, nil
}

// ProfileStats returns routing and queue volume per pain profile.
func (s *DirectoryService) ProfileStats(ctx context.Context) ([]entity.ProfileStats, error) {
	stats, err := s.routing.ProfileStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("profile stats: %w", err)
	}
	return stats, nil
}

// StatusCounts returns the number of prospects per status.
func (s *DirectoryService) StatusCounts(ctx context.Context) (entity.StatusCounts, error) {
	counts, err := s.prospects.StatusCounts(ctx)
	if err != nil {
		return entity.StatusCounts{}, fmt.Errorf("status counts: %w", err)
	}
	return counts, nil
}
