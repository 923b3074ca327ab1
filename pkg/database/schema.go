package database

import (
	"context"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table names
const (
	affiliatesTable = "affiliates"
	codesTable      = "affiliate_codes"
	visitsTable     = "affiliate_visits"
	referralsTable  = "referrals"
	payoutsTable    = "payouts"
)

var (
	moneyType = map[string]string{dialect.Postgres: "numeric(10,2)", dialect.SQLite: "decimal(10,2)"}
	rateType  = map[string]string{dialect.Postgres: "numeric(5,2)", dialect.SQLite: "decimal(5,2)"}
)

func idColumn() *schema.Column {
	return &schema.Column{Name: "id", Type: field.TypeString, Size: 36}
}

func textColumn(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeString, Default: ""}
}

var (
	// AffiliatesColumns holds the columns for the "affiliates" table.
	AffiliatesColumns = []*schema.Column{
		idColumn(),
		{Name: "user_id", Type: field.TypeString, Size: 64, Unique: true},
		{Name: "affiliate_code", Type: field.TypeString, Size: 100, Default: ""},
		{Name: "status", Type: field.TypeString, Size: 20, Default: "pending"},
		textColumn("email"),
		textColumn("display_name"),
		textColumn("payment_email"),
		{Name: "payment_method", Type: field.TypeString, Size: 50, Default: ""},
		textColumn("paypal_email"),
		textColumn("bank_details"),
		textColumn("website"),
		{Name: "phone", Type: field.TypeString, Size: 32, Default: ""},
		textColumn("promotion_method"),
		textColumn("status_reason"),
		{Name: "commission_rate", Type: field.TypeFloat64, Nullable: true, SchemaType: rateType},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// AffiliatesTable holds the schema information for the "affiliates" table.
	AffiliatesTable = &schema.Table{
		Name:       affiliatesTable,
		Columns:    AffiliatesColumns,
		PrimaryKey: []*schema.Column{AffiliatesColumns[0]},
		Indexes: []*schema.Index{
			{Name: "affiliates_status", Columns: []*schema.Column{AffiliatesColumns[3]}},
		},
	}

	// CodesColumns holds the columns for the "affiliate_codes" table.
	CodesColumns = []*schema.Column{
		idColumn(),
		{Name: "affiliate_id", Type: field.TypeString, Size: 36},
		{Name: "code", Type: field.TypeString, Size: 100, Unique: true},
		{Name: "type", Type: field.TypeString, Size: 20, Default: "default"},
		textColumn("campaign_name"),
		textColumn("description"),
		{Name: "clicks", Type: field.TypeInt, Default: 0},
		{Name: "conversions", Type: field.TypeInt, Default: 0},
		{Name: "status", Type: field.TypeString, Size: 20, Default: "active"},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "expires_at", Type: field.TypeTime, Nullable: true},
	}
	// CodesTable holds the schema information for the "affiliate_codes" table.
	CodesTable = &schema.Table{
		Name:       codesTable,
		Columns:    CodesColumns,
		PrimaryKey: []*schema.Column{CodesColumns[0]},
		Indexes: []*schema.Index{
			{Name: "affiliate_codes_affiliate_id", Columns: []*schema.Column{CodesColumns[1]}},
			{Name: "affiliate_codes_status", Columns: []*schema.Column{CodesColumns[8]}},
		},
	}

	// VisitsColumns holds the columns for the "affiliate_visits" table.
	VisitsColumns = []*schema.Column{
		idColumn(),
		{Name: "affiliate_id", Type: field.TypeString, Size: 36},
		{Name: "code_id", Type: field.TypeString, Size: 36, Nullable: true},
		{Name: "ip_address", Type: field.TypeString, Size: 45, Default: ""},
		textColumn("user_agent"),
		textColumn("referrer_url"),
		textColumn("landing_url"),
		{Name: "converted", Type: field.TypeBool, Default: false},
		{Name: "created_at", Type: field.TypeTime},
	}
	// VisitsTable holds the schema information for the "affiliate_visits" table.
	VisitsTable = &schema.Table{
		Name:       visitsTable,
		Columns:    VisitsColumns,
		PrimaryKey: []*schema.Column{VisitsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "affiliate_visits_affiliate_ip", Columns: []*schema.Column{VisitsColumns[1], VisitsColumns[3], VisitsColumns[8]}},
			{Name: "affiliate_visits_ip_created", Columns: []*schema.Column{VisitsColumns[3], VisitsColumns[8]}},
			{Name: "affiliate_visits_code_id", Columns: []*schema.Column{VisitsColumns[2]}},
		},
	}

	// ReferralsColumns holds the columns for the "referrals" table.
	ReferralsColumns = []*schema.Column{
		idColumn(),
		{Name: "affiliate_id", Type: field.TypeString, Size: 36},
		{Name: "code_id", Type: field.TypeString, Size: 36, Nullable: true},
		{Name: "order_id", Type: field.TypeString, Size: 64, Unique: true},
		{Name: "customer_user_id", Type: field.TypeString, Size: 64, Default: ""},
		{Name: "product_id", Type: field.TypeString, Size: 64, Default: ""},
		{Name: "order_amount", Type: field.TypeFloat64, SchemaType: moneyType},
		{Name: "commission_amount", Type: field.TypeFloat64, SchemaType: moneyType},
		{Name: "commission_rate", Type: field.TypeFloat64, SchemaType: rateType},
		{Name: "status", Type: field.TypeString, Size: 20, Default: "pending"},
		{Name: "payout_id", Type: field.TypeString, Size: 36, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "approved_at", Type: field.TypeTime, Nullable: true},
	}
	// ReferralsTable holds the schema information for the "referrals" table.
	ReferralsTable = &schema.Table{
		Name:       referralsTable,
		Columns:    ReferralsColumns,
		PrimaryKey: []*schema.Column{ReferralsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "referrals_affiliate_id", Columns: []*schema.Column{ReferralsColumns[1]}},
			{Name: "referrals_status", Columns: []*schema.Column{ReferralsColumns[9]}},
			{Name: "referrals_payout_id", Columns: []*schema.Column{ReferralsColumns[10]}},
		},
	}

	// PayoutsColumns holds the columns for the "payouts" table.
	PayoutsColumns = []*schema.Column{
		idColumn(),
		{Name: "affiliate_id", Type: field.TypeString, Size: 36},
		{Name: "amount", Type: field.TypeFloat64, SchemaType: moneyType},
		{Name: "payment_method", Type: field.TypeString, Size: 50, Default: ""},
		textColumn("transaction_id"),
		{Name: "status", Type: field.TypeString, Size: 20, Default: "requested"},
		{Name: "requested_at", Type: field.TypeTime},
		{Name: "paid_at", Type: field.TypeTime, Nullable: true},
		textColumn("notes"),
	}
	// PayoutsTable holds the schema information for the "payouts" table.
	PayoutsTable = &schema.Table{
		Name:       payoutsTable,
		Columns:    PayoutsColumns,
		PrimaryKey: []*schema.Column{PayoutsColumns[0]},
		Indexes: []*schema.Index{
			{Name: "payouts_affiliate_id", Columns: []*schema.Column{PayoutsColumns[1]}},
			{Name: "payouts_status", Columns: []*schema.Column{PayoutsColumns[5]}},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		AffiliatesTable,
		CodesTable,
		VisitsTable,
		ReferralsTable,
		PayoutsTable,
	}
)

func createSchema(ctx context.Context, drv dialect.Driver) error {
	migrate, err := schema.NewMigrate(drv)
	if err != nil {
		return err
	}
	return migrate.Create(ctx, Tables...)
}
