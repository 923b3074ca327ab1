package models

import "time"

// TrackVisitRequest is the body the tracking script posts for each landing
type TrackVisitRequest struct {
	Token       string `json:"token"`
	Code        string `json:"code"`
	ReferrerURL string `json:"referrer_url" validate:"max=2048"`
	LandingURL  string `json:"landing_url" validate:"max=2048"`
}

// StatusChangeRequest changes an affiliate's status
type StatusChangeRequest struct {
	Status string `json:"status" validate:"required,oneof=active rejected suspended pending"`
	Reason string `json:"reason" validate:"max=1000"`
}

// CommissionRateRequest sets or clears an affiliate's own commission rate
type CommissionRateRequest struct {
	Rate *float64 `json:"rate" validate:"omitempty,gte=0,lte=100"`
}

// GenerateCodeRequest creates an extra referral code
type GenerateCodeRequest struct {
	Code         string     `json:"code" validate:"max=50"`
	Type         string     `json:"type" validate:"omitempty,oneof=custom campaign"`
	CampaignName string     `json:"campaign_name" validate:"max=100"`
	Description  string     `json:"description" validate:"max=500"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

// PayoutStatusRequest moves a payout forward
type PayoutStatusRequest struct {
	Status        string `json:"status" validate:"required,oneof=processing completed failed"`
	TransactionID string `json:"transaction_id" validate:"max=100"`
	Notes         string `json:"notes" validate:"max=2000"`
}
