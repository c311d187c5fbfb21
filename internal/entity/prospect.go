package entity

import "time"

// ProspectStatus is the lifecycle state of a queued prospect.
type ProspectStatus string

const (
	StatusPending ProspectStatus = "pending"
	StatusSent    ProspectStatus = "sent"
	StatusFailed  ProspectStatus = "failed"
)

// Prospect is a contact waiting for delayed delivery to the campaign API.
type Prospect struct {
	ID                 int64          `json:"id"`
	FirstName          string         `json:"first_name"`
	LastName           string         `json:"last_name"`
	Email              string         `json:"email"`
	LinkedInURL        string         `json:"linkedin_url,omitempty"`
	Company            string         `json:"company"`
	Phone              string         `json:"phone,omitempty"`
	CampaignID         *string        `json:"campaign_id"`
	PainProfile        *string        `json:"pain_profile,omitempty"`
	SourceCampaignID   *string        `json:"heyreach_campaign_id,omitempty"`
	SourceCampaignName *string        `json:"heyreach_campaign_name,omitempty"`
	Status             ProspectStatus `json:"status"`
	Attempts           int            `json:"attempts"`
	SendAt             time.Time      `json:"send_at"`
	CreatedAt          time.Time      `json:"created_at"`
	SentAt             *time.Time     `json:"sent_at,omitempty"`
	LastError          *string        `json:"error,omitempty"`

	// RawPayload is the inbound body byte for byte.
	RawPayload []byte `json:"-"`
}

// FullName joins first and last name the way recipients are addressed.
func (p Prospect) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// StatusCounts aggregates prospects per lifecycle state.
type StatusCounts struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}
