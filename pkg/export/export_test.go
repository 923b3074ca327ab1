package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/jordanlanch/directorist-affiliate/pkg/database"
	"github.com/jordanlanch/directorist-affiliate/pkg/database/databasetest"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type memoryStorage struct {
	key  string
	body []byte
	err  error
}

func (m *memoryStorage) Save(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.key = key
	m.body, _ = io.ReadAll(body)
	return "mem://" + key, nil
}

func seed(t *testing.T, client *database.Client) {
	t.Helper()
	ctx := context.Background()

	aff := &domain.Affiliate{
		UserID:        "user-1",
		AffiliateCode: "DSAEXPORT1",
		Status:        domain.AffiliateStatusActive,
		Email:         "ada@example.com",
		DisplayName:   "Ada",
	}
	require.NoError(t, client.Affiliates.Create(ctx, aff))

	for i, status := range []domain.ReferralStatus{domain.ReferralStatusPending, domain.ReferralStatusApproved, domain.ReferralStatusApproved} {
		require.NoError(t, client.Referrals.Create(ctx, &domain.Referral{
			AffiliateID:      aff.ID,
			OrderID:          []string{"1001", "1002", "1003"}[i],
			OrderAmount:      decimal.RequireFromString("200.00"),
			CommissionAmount: decimal.RequireFromString("20.00"),
			CommissionRate:   decimal.NewFromInt(10),
			Status:           status,
			CreatedAt:        testNow.Add(-time.Duration(i) * time.Hour),
		}))
	}
}

func readRows(t *testing.T, content []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	return rows
}

func TestReferrals(t *testing.T) {
	client := databasetest.Open(t)
	seed(t, client)
	ctx := context.Background()

	t.Run("Success - Filters by status and archives", func(t *testing.T) {
		store := &memoryStorage{}
		svc := NewService(client, store, nil).WithClock(func() time.Time { return testNow })

		report, err := svc.Referrals(ctx, domain.ReferralStatusApproved)
		require.NoError(t, err)

		assert.Equal(t, "referrals-approved-20260301-120000.xlsx", report.Filename)
		assert.Equal(t, 2, report.Rows)
		assert.Equal(t, "mem://exports/"+report.Filename, report.Location)
		assert.Equal(t, report.Content, store.body)

		rows := readRows(t, report.Content)
		require.Len(t, rows, 3)
		assert.Equal(t, headers, rows[0])
		assert.Equal(t, "Ada", rows[1][2])
		assert.Equal(t, "DSAEXPORT1", rows[1][3])
		assert.Equal(t, "approved", rows[1][8])
	})

	t.Run("Success - Archive failure still returns the workbook", func(t *testing.T) {
		svc := NewService(client, &memoryStorage{err: errors.New("disk full")}, nil)

		report, err := svc.Referrals(ctx, "")
		require.NoError(t, err)

		assert.Equal(t, 3, report.Rows)
		assert.Empty(t, report.Location)
	})

	t.Run("Failure - Unknown status", func(t *testing.T) {
		svc := NewService(client, nil, nil)

		_, err := svc.Referrals(ctx, "lost")
		assert.True(t, domain.IsValidation(err))
	})
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, nil, nil))

	rows := readRows(t, buf.Bytes())
	require.Len(t, rows, 1)
	assert.Equal(t, headers, rows[0])
}
