package notification

import (
	"fmt"
	"strings"

	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/email"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const signature = "Best regards,\nDirectorist Team"

var (
	titleCase = cases.Title(language.English)
	printer   = message.NewPrinter(language.English)
)

// Label title-cases a status value for display ("bank_transfer" becomes "Bank Transfer")
func Label(status string) string {
	return titleCase.String(strings.ReplaceAll(status, "_", " "))
}

// Price formats amount with the currency symbol and thousands separators
func Price(symbol string, amount decimal.Decimal) string {
	return symbol + printer.Sprintf("%.2f", amount.Round(2).InexactFloat64())
}

func to(aff *domain.Affiliate, subject, body string) email.Message {
	return email.Message{ToEmail: aff.Email, ToName: aff.DisplayName, Subject: subject, Body: body}
}

func name(aff *domain.Affiliate) string {
	if aff.DisplayName != "" {
		return aff.DisplayName
	}
	return aff.Email
}

func newReferralMail(aff *domain.Affiliate, ref *domain.Referral, symbol string) email.Message {
	body := fmt.Sprintf(`Hello %s,

Great news! You have a new referral.

Order ID: #%s
Order Amount: %s
Your Commission: %s

This commission is pending approval and will be processed once the order is completed.

Thank you for promoting Directorist!

%s`, name(aff), ref.OrderID, Price(symbol, ref.OrderAmount), Price(symbol, ref.CommissionAmount), signature)

	return to(aff, "New Referral - Commission Pending", body)
}

func approvedMail(aff *domain.Affiliate, ref *domain.Referral, symbol string) email.Message {
	body := fmt.Sprintf(`Hello %s,

Congratulations! Your commission has been approved.

Order ID: #%s
Commission Amount: %s

This commission will be included in your next payout.

Thank you for your continued partnership!

%s`, name(aff), ref.OrderID, Price(symbol, ref.CommissionAmount), signature)

	return to(aff, "Commission Approved!", body)
}

func rejectedMail(aff *domain.Affiliate, ref *domain.Referral, reason string) email.Message {
	body := fmt.Sprintf(`Hello %s,

Your referral for Order #%s has been updated.

Status: %s

If you have any questions, please contact us.

%s`, name(aff), ref.OrderID, Label(reason), signature)

	return to(aff, "Referral Status Update", body)
}

func adminReferralMail(adminEmail string, aff *domain.Affiliate, ref *domain.Referral, symbol string) email.Message {
	body := fmt.Sprintf(`A new affiliate referral has been created.

Affiliate: %s (%s)
Order ID: #%s
Order Amount: %s
Commission Amount: %s`, name(aff), aff.Email, ref.OrderID, Price(symbol, ref.OrderAmount), Price(symbol, ref.CommissionAmount))

	return email.Message{ToEmail: adminEmail, Subject: "New Affiliate Referral Created", Body: body}
}

func applicationReceivedMail(aff *domain.Affiliate) email.Message {
	body := fmt.Sprintf(`Hello %s,

Thank you for applying to become a Directorist affiliate!

Your affiliate application is currently pending approval. You will receive an email once your application has been reviewed.

%s`, name(aff), signature)

	return to(aff, "Welcome to Directorist Affiliate Program", body)
}

func adminApplicationMail(adminEmail string, aff *domain.Affiliate) email.Message {
	body := fmt.Sprintf(`A new affiliate application has been submitted:

User: %s (%s)
Affiliate Code: %s
Status: Pending

Please review the application in the admin panel.`, name(aff), aff.Email, aff.AffiliateCode)

	return email.Message{ToEmail: adminEmail, Subject: "New Affiliate Application - Directorist", Body: body}
}

func applicationStatusMail(aff *domain.Affiliate, code, reason string) email.Message {
	status := Label(string(aff.Status))

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nYour affiliate application status has been updated to: %s", name(aff), status)
	if reason != "" {
		fmt.Fprintf(&b, "\n\nReason: %s", reason)
	}
	if aff.IsActive() && code != "" {
		fmt.Fprintf(&b, "\n\nYour affiliate code is: %s", code)
	}
	b.WriteString("\n\n" + signature)

	return to(aff, "Your Affiliate Application Status - "+status, b.String())
}

func payoutMail(aff *domain.Affiliate, p *domain.Payout, symbol string) email.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nYour payout of %s has been updated.\n\nStatus: %s",
		name(aff), Price(symbol, p.Amount), Label(string(p.Status)))
	if p.TransactionID != "" {
		fmt.Fprintf(&b, "\nTransaction ID: %s", p.TransactionID)
	}
	if p.Notes != "" {
		fmt.Fprintf(&b, "\nNotes: %s", p.Notes)
	}
	b.WriteString("\n\nIf you have any questions, please contact us.\n\n" + signature)

	return to(aff, "Payout Update - "+Label(string(p.Status)), b.String())
}

func adminPayoutMail(adminEmail string, aff *domain.Affiliate, p *domain.Payout, symbol string) email.Message {
	body := fmt.Sprintf(`A payout has been requested.

Affiliate: %s (%s)
Amount: %s
Payment Method: %s`, name(aff), aff.Email, Price(symbol, p.Amount), Label(p.PaymentMethod))

	return email.Message{ToEmail: adminEmail, Subject: "Affiliate Payout Requested", Body: body}
}
