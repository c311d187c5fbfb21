package entity

import "time"

// RoutingEntry maps a contact email to the pain profile that selects its campaign.
type RoutingEntry struct {
	Email       string    `json:"email"`
	PainProfile string    `json:"pain_profile"`
	Company     string    `json:"company"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Lead is a known contact used to recover an email missing from an inbound event.
type Lead struct {
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	LinkedInURL string    `json:"linkedin_url"`
	Company     string    `json:"company"`
	Phone       string    `json:"phone"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProfileStats reports routing and queue volume for a single pain profile.
type ProfileStats struct {
	PainProfile string `json:"pain_profile"`
	Contacts    int    `json:"contacts"`
	Pending     int    `json:"pending"`
	Sent        int    `json:"sent"`
	Failed      int    `json:"failed"`
}
