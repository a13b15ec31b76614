// internal/models/subscription.go
package models

import "time"

// DigestFrequency is how often a subscriber receives a digest email.
type DigestFrequency string

const (
	DigestDaily    DigestFrequency = "daily"
	DigestWeekly   DigestFrequency = "weekly"
	DigestBiweekly DigestFrequency = "biweekly"
)

// Subscription is one email digest subscription. QueryText and Filters are
// replayed through the matcher to build each digest.
type Subscription struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	QueryText string          `json:"queryText"`
	Filters   SearchFilters   `json:"filters"`
	Frequency DigestFrequency `json:"frequency"`
	Active    bool            `json:"active"`

	CreatedAt  time.Time  `json:"createdAt"`
	LastSentAt *time.Time `json:"lastSentAt,omitempty"`
}
