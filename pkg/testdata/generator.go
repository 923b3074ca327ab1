// Package testdata generates realistic affiliate program data for demos and tests.
package testdata

import (
	"fmt"
	"sort"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PlanPrices are the listing plans sold on the directory, keyed by plan id
var PlanPrices = map[string]decimal.Decimal{
	"plan-basic":    decimal.RequireFromString("29.00"),
	"plan-featured": decimal.RequireFromString("79.00"),
	"plan-premium":  decimal.RequireFromString("149.00"),
	"plan-agency":   decimal.RequireFromString("499.00"),
}

var promotionMethods = []string{
	"Niche blog with local business reviews",
	"YouTube channel about small business marketing",
	"Newsletter for real estate agents",
	"Facebook groups for restaurant owners",
	"SEO agency recommending listings to clients",
}

var areaCodes = []string{"212", "303", "312", "415", "512", "617", "702", "805"}

var landingPaths = []string{"/", "/pricing", "/add-listing", "/directory", "/plans/featured"}

// Applicant is a generated affiliate application
type Applicant struct {
	UserID          string
	FullName        string
	Email           string
	PaymentMethod   domain.PaymentMethod
	PayPalEmail     string
	BankDetails     string
	Website         string
	Phone           string
	PromotionMethod string
}

// Visitor is a generated site visitor
type Visitor struct {
	IP          string
	UserAgent   string
	ReferrerURL string
	LandingURL  string
}

// Order is a generated listing purchase
type Order struct {
	OrderID        string
	ListingID      string
	PlanID         string
	Amount         decimal.Decimal
	CustomerUserID string
}

// Generator produces data from a seeded faker so runs are reproducible
type Generator struct {
	faker   *gofakeit.Faker
	siteURL string
	orderNo int
}

// NewGenerator creates a generator. A zero seed picks a random one.
func NewGenerator(seed int64, siteURL string) *Generator {
	if siteURL == "" {
		siteURL = "http://localhost:8080"
	}
	return &Generator{
		faker:   gofakeit.New(seed),
		siteURL: strings.TrimSuffix(siteURL, "/"),
		orderNo: 1000,
	}
}

// Applicant returns a complete affiliate application
func (g *Generator) Applicant() Applicant {
	f := g.faker
	a := Applicant{
		UserID:          f.UUID(),
		FullName:        f.Name(),
		Email:           strings.ToLower(f.Email()),
		Website:         "https://" + f.DomainName(),
		Phone:           fmt.Sprintf("+1 %s %d-%s", f.RandomString(areaCodes), f.Number(201, 989), f.Numerify("####")),
		PromotionMethod: f.RandomString(promotionMethods),
	}
	if f.Bool() {
		a.PaymentMethod = domain.PaymentMethodPayPal
		a.PayPalEmail = a.Email
	} else {
		a.PaymentMethod = domain.PaymentMethodBankTransfer
		a.BankDetails = fmt.Sprintf("%s, IBAN %s", f.Company(), f.Numerify("DE## #### #### #### #### ##"))
	}
	return a
}

// Campaign returns a campaign name and description pair
func (g *Generator) Campaign() (name, description string) {
	f := g.faker
	return fmt.Sprintf("%s %d", cases.Title(language.English).String(f.BuzzWord()), f.Year()), f.Sentence(8)
}

// Visitor returns an anonymous visitor landing from a referring site
func (g *Generator) Visitor() Visitor {
	f := g.faker
	return Visitor{
		IP:          f.IPv4Address(),
		UserAgent:   f.UserAgent(),
		ReferrerURL: f.URL(),
		LandingURL:  g.siteURL + f.RandomString(landingPaths),
	}
}

// Order returns a purchase of a random plan by customerUserID
func (g *Generator) Order(customerUserID string) Order {
	f := g.faker
	g.orderNo++

	plans := make([]string, 0, len(PlanPrices))
	for id := range PlanPrices {
		plans = append(plans, id)
	}
	sort.Strings(plans)
	plan := f.RandomString(plans)

	return Order{
		OrderID:        fmt.Sprintf("%d", g.orderNo),
		ListingID:      fmt.Sprintf("%d", f.Number(100, 9999)),
		PlanID:         plan,
		Amount:         PlanPrices[plan],
		CustomerUserID: customerUserID,
	}
}

// Chance reports true with probability p
func (g *Generator) Chance(p float64) bool {
	return g.faker.Float64Range(0, 1) < p
}

// Between returns an int in [min, max]
func (g *Generator) Between(min, max int) int {
	return g.faker.Number(min, max)
}
