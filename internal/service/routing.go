package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/octobees/prospect-bridge/internal/entity"
	"github.com/octobees/prospect-bridge/internal/repository"
)

// CampaignTable maps pain profiles to campaign ids. It is immutable once built.
type CampaignTable struct {
	byProfile map[string]string
}

// NewCampaignTable copies the mapping, lower-casing profile names.
func NewCampaignTable(mapping map[string]string) *CampaignTable {
	table := &CampaignTable{byProfile: make(map[string]string, len(mapping))}
	for profile, campaign := range mapping {
		profile = strings.ToLower(strings.TrimSpace(profile))
		campaign = strings.TrimSpace(campaign)
		if profile == "" || campaign == "" {
			continue
		}
		table.byProfile[profile] = campaign
	}
	return table
}

// Lookup returns the campaign for a profile, case-insensitively.
func (t *CampaignTable) Lookup(profile string) (string, bool) {
	if t == nil {
		return "", false
	}
	campaign, ok := t.byProfile[strings.ToLower(strings.TrimSpace(profile))]
	return campaign, ok
}

// CampaignIDs returns the distinct configured campaign ids in sorted order.
func (t *CampaignTable) CampaignIDs() []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(t.byProfile))
	ids := make([]string, 0, len(t.byProfile))
	for _, id := range t.byProfile {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len reports the number of mapped profiles.
func (t *CampaignTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byProfile)
}

// Route is the routing outcome for one prospect. A nil CampaignID means the
// default campaign applies at send time.
type Route struct {
	CampaignID  *string
	PainProfile *string
	Company     string
}

// RoutingLookup finds the routing entry for an email.
type RoutingLookup interface {
	FindByEmail(ctx context.Context, email string) (*entity.RoutingEntry, error)
}

// RoutingResolver picks a campaign for a prospect email.
type RoutingResolver struct {
	routing   RoutingLookup
	campaigns *CampaignTable
}

// NewRoutingResolver constructs a RoutingResolver.
func NewRoutingResolver(routing RoutingLookup, campaigns *CampaignTable) *RoutingResolver {
	return &RoutingResolver{routing: routing, campaigns: campaigns}
}

// Resolve maps the email through the routing directory and campaign table.
// The event company wins over the directory company.
func (r *RoutingResolver) Resolve(ctx context.Context, email, eventCompany string) (Route, error) {
	route := Route{Company: strings.TrimSpace(eventCompany)}
	if r.routing == nil {
		return route, nil
	}

	entry, err := r.routing.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrRoutingNotFound) {
			return route, nil
		}
		return Route{}, fmt.Errorf("lookup routing entry: %w", err)
	}

	if route.Company == "" {
		route.Company = strings.TrimSpace(entry.Company)
	}
	if campaign, ok := r.campaigns.Lookup(entry.PainProfile); ok {
		profile := strings.ToLower(strings.TrimSpace(entry.PainProfile))
		route.CampaignID = &campaign
		route.PainProfile = &profile
	}
	return route, nil
}
