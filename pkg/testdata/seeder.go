package testdata

import (
	"context"
	"fmt"

	"github.com/jordanlanch/directorist-affiliate/pkg/affiliate"
	"github.com/jordanlanch/directorist-affiliate/pkg/conversion"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
	"github.com/jordanlanch/directorist-affiliate/pkg/payout"
	"github.com/jordanlanch/directorist-affiliate/pkg/tracking"
)

// SeedConfig controls how much demo data is generated
type SeedConfig struct {
	Affiliates       int
	MaxVisits        int     // per active affiliate
	ApprovalChance   float64 // pending applications that get approved
	CampaignChance   float64 // active affiliates that get an extra campaign code
	OrderChance      float64 // visits that turn into an order
	CompletionChance float64 // orders that complete; the rest are refunded or left pending
	PayoutChance     float64 // affiliates with earnings that request a payout
}

// DefaultSeedConfig returns a small but varied data set
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Affiliates:       12,
		MaxVisits:        25,
		ApprovalChance:   0.75,
		CampaignChance:   0.4,
		OrderChance:      0.2,
		CompletionChance: 0.7,
		PayoutChance:     0.5,
	}
}

// SeedResult counts what a seed run created
type SeedResult struct {
	Affiliates int
	Active     int
	Visits     int
	Orders     int
	Approved   int
	Rejected   int
	Payouts    int
}

// Seeder drives the services with generated traffic
type Seeder struct {
	Affiliates  *affiliate.Service
	Tracking    *tracking.Service
	Conversions *conversion.Service
	Payouts     *payout.Service
	Generator   *Generator
	Logger      logger.Logger
}

// Run registers affiliates, records visits, converts orders and requests payouts
func (s *Seeder) Run(ctx context.Context, cfg SeedConfig) (*SeedResult, error) {
	log := s.Logger
	if log == nil {
		log = logger.Nop()
	}
	res := &SeedResult{}
	g := s.Generator

	for i := 0; i < cfg.Affiliates; i++ {
		app := g.Applicant()
		aff, err := s.Affiliates.Register(ctx, app.UserID, affiliate.RegistrationInput{
			FullName:        app.FullName,
			Email:           app.Email,
			PaymentMethod:   app.PaymentMethod,
			PayPalEmail:     app.PayPalEmail,
			BankDetails:     app.BankDetails,
			Website:         app.Website,
			Phone:           app.Phone,
			PromotionMethod: app.PromotionMethod,
			AgreeTerms:      true,
		})
		if err != nil {
			return res, fmt.Errorf("register %s: %w", app.Email, err)
		}
		res.Affiliates++

		if !g.Chance(cfg.ApprovalChance) {
			if g.Chance(0.5) {
				if _, err := s.Affiliates.Reject(ctx, aff.UserID, "Website does not match the program audience"); err != nil {
					return res, fmt.Errorf("reject %s: %w", aff.UserID, err)
				}
			}
			continue
		}
		if _, err := s.Affiliates.Approve(ctx, aff.UserID); err != nil {
			return res, fmt.Errorf("approve %s: %w", aff.UserID, err)
		}
		res.Active++

		if g.Chance(cfg.CampaignChance) {
			name, desc := g.Campaign()
			if _, err := s.Affiliates.GenerateCode(ctx, aff.UserID, affiliate.GenerateCodeInput{
				Type:         domain.CodeTypeCampaign,
				CampaignName: name,
				Description:  desc,
			}); err != nil {
				return res, fmt.Errorf("campaign code for %s: %w", aff.UserID, err)
			}
		}

		if err := s.traffic(ctx, aff.UserID, cfg, res); err != nil {
			return res, err
		}

		if g.Chance(cfg.PayoutChance) {
			if _, err := s.Payouts.Request(ctx, aff.UserID); err == nil {
				res.Payouts++
			} else if !domain.IsValidation(err) {
				return res, fmt.Errorf("payout for %s: %w", aff.UserID, err)
			}
		}
	}

	log.Info("seed complete",
		"affiliates", res.Affiliates,
		"active", res.Active,
		"visits", res.Visits,
		"orders", res.Orders,
		"payouts", res.Payouts,
	)
	return res, nil
}

func (s *Seeder) traffic(ctx context.Context, userID string, cfg SeedConfig, res *SeedResult) error {
	g := s.Generator
	codes, err := s.Affiliates.ListCodes(ctx, userID)
	if err != nil {
		return fmt.Errorf("list codes for %s: %w", userID, err)
	}
	if len(codes) == 0 {
		return nil
	}

	visits := g.Between(0, cfg.MaxVisits)
	for v := 0; v < visits; v++ {
		code := codes[g.Between(0, len(codes)-1)].Code
		visitor := g.Visitor()

		token, _, err := s.Tracking.IssueToken()
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		vr, err := s.Tracking.RecordVisit(ctx, tracking.VisitRequest{
			Token:       token,
			Code:        code,
			IP:          visitor.IP,
			UserAgent:   visitor.UserAgent,
			ReferrerURL: visitor.ReferrerURL,
			LandingURL:  visitor.LandingURL,
		})
		if err != nil {
			return fmt.Errorf("record visit: %w", err)
		}
		if vr.Duplicate {
			continue
		}
		res.Visits++

		if !g.Chance(cfg.OrderChance) {
			continue
		}
		order := g.Order(g.faker.UUID())
		out, err := s.Conversions.OnOrderCreated(ctx, conversion.OrderCreated{
			OrderID:        order.OrderID,
			ListingID:      order.ListingID,
			PlanID:         order.PlanID,
			Amount:         order.Amount,
			CustomerUserID: order.CustomerUserID,
			CustomerIP:     visitor.IP,
			ReferralCode:   code,
			RequestIP:      visitor.IP,
		})
		if err != nil {
			return fmt.Errorf("order %s: %w", order.OrderID, err)
		}
		if out.Action != conversion.ActionCreated {
			continue
		}
		res.Orders++

		switch {
		case g.Chance(cfg.CompletionChance):
			done, err := s.Conversions.OnOrderCompleted(ctx, order.OrderID)
			if err != nil {
				return fmt.Errorf("complete %s: %w", order.OrderID, err)
			}
			if done.Action == conversion.ActionApproved {
				res.Approved++
			}
		case g.Chance(0.5):
			refund, err := s.Conversions.OnOrderStatusChanged(ctx, "refunded", "pending", order.OrderID)
			if err != nil {
				return fmt.Errorf("refund %s: %w", order.OrderID, err)
			}
			if refund.Action == conversion.ActionRejected {
				res.Rejected++
			}
		}
	}
	return nil
}
