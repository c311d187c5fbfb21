package dto

import "github.com/octobees/prospect-bridge/internal/entity"

// LoadLeadsRequest is the body of a lead directory bulk load.
type LoadLeadsRequest struct {
	Items []LeadItem `json:"items"`
}

// LeadItem is one known contact in a bulk load.
type LeadItem struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	LinkedInURL string `json:"linkedin_url"`
	Company     string `json:"company"`
	Phone       string `json:"phone"`
}

// ToEntity converts the item into a lead.
func (i LeadItem) ToEntity() entity.Lead {
	return entity.Lead{
		Email:       i.Email,
		FirstName:   i.FirstName,
		LastName:    i.LastName,
		LinkedInURL: i.LinkedInURL,
		Company:     i.Company,
		Phone:       i.Phone,
	}
}

// LoadRoutingRequest is the body of a routing directory bulk load.
type LoadRoutingRequest struct {
	Items []RoutingItem `json:"items"`
}

// RoutingItem assigns a pain profile to an email.
type RoutingItem struct {
	Email       string `json:"email"`
	PainProfile string `json:"pain_profile"`
	Company     string `json:"company"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
}

// ToEntity converts the item into a routing entry.
func (i RoutingItem) ToEntity() entity.RoutingEntry {
	return entity.RoutingEntry{
		Email:       i.Email,
		PainProfile: i.PainProfile,
		Company:     i.Company,
		FirstName:   i.FirstName,
		LastName:    i.LastName,
	}
}

// LoadResponse reports how many items were stored.
type LoadResponse struct {
	Loaded int `json:"loaded"`
}

// ProfileStatsResponse wraps per-profile counts.
type ProfileStatsResponse struct {
	Profiles []entity.ProfileStats `json:"profiles"`
}
