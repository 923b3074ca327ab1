package domain

import (
	"strings"
	"time"
)

// CodeType distinguishes default codes from affiliate-created ones
type CodeType string

// Code types
const (
	CodeTypeDefault  CodeType = "default"
	CodeTypeCustom   CodeType = "custom"
	CodeTypeCampaign CodeType = "campaign"
)

// Valid reports whether t is a known code type
func (t CodeType) Valid() bool {
	return t == CodeTypeDefault || t == CodeTypeCustom || t == CodeTypeCampaign
}

// CodeStatus is the status of a referral code
type CodeStatus string

// Code statuses
const (
	CodeStatusActive   CodeStatus = "active"
	CodeStatusInactive CodeStatus = "inactive"
	CodeStatusExpired  CodeStatus = "expired"
)

// AffiliateCode is a referral code owned by an affiliate
type AffiliateCode struct {
	ID           string     `json:"id"`
	AffiliateID  string     `json:"affiliate_id"`
	Code         string     `json:"code"`
	Type         CodeType   `json:"type"`
	CampaignName string     `json:"campaign_name,omitempty"`
	Description  string     `json:"description,omitempty"`
	Clicks       int        `json:"clicks"`
	Conversions  int        `json:"conversions"`
	Status       CodeStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Usable reports whether the code is active and unexpired at now
func (c *AffiliateCode) Usable(now time.Time) bool {
	if c.Status != CodeStatusActive {
		return false
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return false
	}
	return true
}

// NormalizeCode returns the stored form of a code value. Codes are kept upper case.
func NormalizeCode(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}
