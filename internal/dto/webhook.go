package dto

import "time"

// WebhookAcceptedResponse is returned when a prospect is scheduled.
type WebhookAcceptedResponse struct {
	Accepted   bool      `json:"accepted"`
	SendAt     time.Time `json:"send_at"`
	CampaignID *string   `json:"campaign_id"`
	Company    string    `json:"company"`
}

// WebhookSkippedResponse is returned when the event was not queued.
type WebhookSkippedResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
}

// HealthResponse reports liveness and process uptime in seconds.
type HealthResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}
