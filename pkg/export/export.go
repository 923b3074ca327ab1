// Package export renders referral reports as Excel workbooks.
package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jordanlanch/directorist-affiliate/pkg/database"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
	"github.com/jordanlanch/directorist-affiliate/pkg/storage"
	"github.com/xuri/excelize/v2"
)

const (
	sheetName = "Referrals"

	// ContentType of generated workbooks
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var headers = []string{
	"Referral ID", "Order ID", "Affiliate", "Affiliate Code", "Product",
	"Order Amount", "Commission Rate", "Commission", "Status", "Payout ID",
	"Created At", "Approved At",
}

// Report is a generated workbook
type Report struct {
	Filename string
	Content  []byte
	Location string
	Rows     int
}

// Service builds referral exports
type Service struct {
	db      *database.Client
	storage storage.Storage
	logger  logger.Logger
	now     domain.Clock
}

// NewService creates an export service. store may be nil to skip archiving.
func NewService(db *database.Client, store storage.Storage, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{db: db, storage: store, logger: log.With("component", "export"), now: time.Now}
}

// WithClock replaces the time source
func (s *Service) WithClock(now domain.Clock) *Service {
	s.now = now
	return s
}

// Referrals exports every referral in status (all when empty) and archives the file
func (s *Service) Referrals(ctx context.Context, status domain.ReferralStatus) (*Report, error) {
	if status != "" && !status.Valid() {
		return nil, domain.NewValidationError("Invalid referral status.")
	}

	referrals, err := s.db.Referrals.List(ctx, database.ReferralFilter{Status: status})
	if err != nil {
		return nil, domain.NewInternalError(err)
	}

	affiliates := make(map[string]*domain.Affiliate)
	for _, r := range referrals {
		if _, ok := affiliates[r.AffiliateID]; ok {
			continue
		}
		aff, err := s.db.Affiliates.GetByID(ctx, r.AffiliateID)
		if err != nil && !domain.IsNotFound(err) {
			return nil, domain.NewInternalError(err)
		}
		affiliates[r.AffiliateID] = aff
	}

	var buf bytes.Buffer
	if err := Write(&buf, referrals, affiliates); err != nil {
		return nil, domain.NewInternalError(err)
	}

	name := "referrals"
	if status != "" {
		name += "-" + string(status)
	}
	report := &Report{
		Filename: fmt.Sprintf("%s-%s.xlsx", name, s.now().UTC().Format("20060102-150405")),
		Content:  buf.Bytes(),
		Rows:     len(referrals),
	}

	if s.storage != nil {
		loc, err := s.storage.Save(ctx, "exports/"+report.Filename, bytes.NewReader(report.Content), ContentType)
		if err != nil {
			// the caller still gets the workbook
			s.logger.Error("failed to archive export", "filename", report.Filename, "error", err)
		} else {
			report.Location = loc
		}
	}

	s.logger.Info("referral export generated", "filename", report.Filename, "rows", report.Rows)
	return report, nil
}

// Write renders referrals as a workbook. affiliates is keyed by affiliate id.
func Write(w io.Writer, referrals []*domain.Referral, affiliates map[string]*domain.Affiliate) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, r := range referrals {
		affName, affCode := "", ""
		if aff := affiliates[r.AffiliateID]; aff != nil {
			affName, affCode = aff.DisplayName, aff.AffiliateCode
		}
		approved := ""
		if r.ApprovedAt != nil {
			approved = r.ApprovedAt.UTC().Format(time.RFC3339)
		}

		row := []interface{}{
			r.ID,
			r.OrderID,
			affName,
			affCode,
			r.ProductID,
			r.OrderAmount.InexactFloat64(),
			r.CommissionRate.InexactFloat64(),
			r.CommissionAmount.InexactFloat64(),
			string(r.Status),
			r.PayoutID,
			r.CreatedAt.UTC().Format(time.RFC3339),
			approved,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	last, _ := excelize.ColumnNumberToName(len(headers))
	f.SetColWidth(sheetName, "A", last, 18)
	f.SetActiveSheet(index)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
