package sqlstore

import "fmt"

type index struct {
	name    string
	columns string
}

type table struct {
	name    string
	columns string
	indexes []index
}

// Timestamps are stored as unix nanoseconds in BIGINT columns so both
// dialects round-trip them exactly.
var tables = []table{
	{
		name: "bookings",
		columns: `id VARCHAR(64) NOT NULL PRIMARY KEY,
	customer_id VARCHAR(64) NOT NULL,
	service_type VARCHAR(64) NOT NULL,
	scheduled_at BIGINT NULL,
	status VARCHAR(16) NOT NULL,
	payment_status VARCHAR(16) NOT NULL,
	price BIGINT NOT NULL,
	technician_id VARCHAR(64) NULL,
	assigned_at BIGINT NULL,
	technician_accepted_at BIGINT NULL,
	technician_rejected_at BIGINT NULL,
	rejection_reason TEXT NULL,
	technician_earnings BIGINT NULL,
	platform_commission BIGINT NULL,
	commission_fallback BOOLEAN NOT NULL DEFAULT FALSE,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL,
	version BIGINT NOT NULL DEFAULT 0`,
		indexes: []index{{"idx_bookings_status", "status"}},
	},
	{
		name: "technicians",
		columns: `id VARCHAR(64) NOT NULL PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	specializations TEXT NOT NULL,
	status VARCHAR(16) NOT NULL,
	availability TEXT NOT NULL,
	rating DOUBLE NOT NULL DEFAULT 0,
	completed_bookings INTEGER NOT NULL DEFAULT 0`,
		indexes: []index{{"idx_technicians_status", "status"}},
	},
	{
		name: "job_offers",
		columns: `id VARCHAR(64) NOT NULL PRIMARY KEY,
	booking_id VARCHAR(64) NOT NULL,
	technician_id VARCHAR(64) NOT NULL,
	state VARCHAR(16) NOT NULL,
	issued_at BIGINT NOT NULL,
	expires_at BIGINT NOT NULL,
	responded_at BIGINT NULL,
	rejection_reason TEXT NULL`,
		indexes: []index{
			{"idx_offers_booking", "booking_id"},
			{"idx_offers_state_expiry", "state, expires_at"},
		},
	},
	{
		name: "notifications",
		columns: `id VARCHAR(64) NOT NULL PRIMARY KEY,
	scope VARCHAR(96) NOT NULL,
	kind VARCHAR(32) NOT NULL,
	reference_id VARCHAR(64) NOT NULL,
	message TEXT NOT NULL,
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	is_important BOOLEAN NOT NULL DEFAULT FALSE,
	created_at BIGINT NOT NULL`,
		indexes: []index{{"idx_notifications_scope", "scope, is_read, created_at"}},
	},
	{
		name: "dispatch_retries",
		columns: `booking_id VARCHAR(64) NOT NULL PRIMARY KEY,
	rounds INTEGER NOT NULL,
	updated_at BIGINT NOT NULL`,
	},
}

// schema returns the DDL for the dialect. MySQL has no CREATE INDEX IF NOT
// EXISTS, so its indexes are declared inline.
func schema(d Dialect) []string {
	var stmts []string
	for _, t := range tables {
		if d == DialectMySQL {
			cols := t.columns
			for _, ix := range t.indexes {
				cols += fmt.Sprintf(",\n\tINDEX %s (%s)", ix.name, ix.columns)
			}
			stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4", t.name, cols))
			continue
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.name, t.columns))
		for _, ix := range t.indexes {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", ix.name, t.name, ix.columns))
		}
	}
	return stmts
}
