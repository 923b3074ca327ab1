package domain

import "time"

// Visit is one attributed click. Only the Converted flag ever changes.
type Visit struct {
	ID          string    `json:"id"`
	AffiliateID string    `json:"affiliate_id"`
	CodeID      string    `json:"code_id,omitempty"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"user_agent,omitempty"`
	ReferrerURL string    `json:"referrer_url,omitempty"`
	LandingURL  string    `json:"landing_url,omitempty"`
	Converted   bool      `json:"converted"`
	CreatedAt   time.Time `json:"created_at"`
}
