package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"appraisal/internal/config"
	"appraisal/internal/monitoring"
	"appraisal/internal/types"

	_ "github.com/sijms/go-ora/v2"
)

// dsn builds a properly encoded connection string for Oracle Autonomous Database
func dsn(username, password, host, port, service string, walletLocation string) string {
	if walletLocation != "" {
		// Use wallet-based mTLS connection
		return fmt.Sprintf(
			"oracle://%s:%s@%s:%s/%s?ssl=true&wallet_location=%s",
			url.PathEscape(username), url.PathEscape(password), host, port, service, url.PathEscape(walletLocation))
	}

	return (&url.URL{
		Scheme:   "oracle",
		User:     url.UserPassword(username, password), // escapes automatically
		Host:     host + ":" + port,
		Path:     "/" + service, // keep full service name
		RawQuery: "ssl=true",    // ADB requires TCPS on 1522
	}).String()
}

// DBConfig holds database connection configuration
type DBConfig struct {
	Host           string
	Port           string
	Service        string
	Username       string
	Password       string
	WalletLocation string

	// Table is the certified roll table; Sales holds the sales the district
	// has verified, keyed by account.
	Table string
	Sales string
}

// LoadDatabaseConfig loads database configuration from environment variables,
// reading .env first if present.
func LoadDatabaseConfig() DBConfig {
	_ = config.LoadEnvFile(".env")

	return DBConfig{
		Host:           config.GetEnvOrDefault("DB_HOST", "localhost"),
		Port:           config.GetEnvOrDefault("DB_PORT", "1521"),
		Service:        config.GetEnvOrDefault("DB_SERVICE", "XE"),
		Username:       config.GetEnvOrDefault("DB_USERNAME", ""),
		Password:       config.GetEnvOrDefault("DB_PASSWORD", ""),
		WalletLocation: config.GetEnvOrDefault("DB_WALLET_LOCATION", ""),
		Table:          config.GetEnvOrDefault("DB_TABLE", "PROPERTYDATA_R_2025"),
		Sales:          config.GetEnvOrDefault("DB_SALES_TABLE", "PROPERTY_SALES"),
	}
}

// Oracle reads properties from the district's Oracle database.
type Oracle struct {
	db     *sql.DB
	config DBConfig
}

// NewOracle opens and pings the database.
func NewOracle(ctx context.Context, cfg DBConfig) (*Oracle, error) {
	connStr := dsn(cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Service, cfg.WalletLocation)

	monitoring.Logf("connecting to Oracle at %s:%s/%s", cfg.Host, cfg.Port, cfg.Service)
	db, err := sql.Open("oracle", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Oracle{db: db, config: cfg}, nil
}

// Close closes the database connection
func (o *Oracle) Close() error {
	return o.db.Close()
}

// oracleColumns are selected from the roll table, then the sale price from
// the sales table.
var oracleColumns = []string{
	colAccount, colAddress, colSubdivision, colCity,
	colLandValue, colImprovement, colTotalValue, colAppraised,
	colDeedDate, colYearBuilt, colLivingArea, colBedrooms, colBathrooms,
	colClass, colStateUseCode, colLandSqFt, colLatitude, colLongitude,
	colLastSaleDate, colYear,
}

// propertyQuery builds the roll query. Every column is selected as text, the
// way the district publishes it.
func propertyQuery(cfg DBConfig, f Filter) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range oracleColumns {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "TO_CHAR(p.%s)", c)
	}
	fmt.Fprintf(&b, ", TO_CHAR(s.%s)", colSalePrice)
	fmt.Fprintf(&b, "\nFROM %s p\nLEFT JOIN %s s ON s.%s = p.%s", cfg.Table, cfg.Sales, colAccount, colAccount)

	var args []any
	if f.Subdivision != "" {
		args = append(args, f.Subdivision)
		fmt.Fprintf(&b, "\nWHERE UPPER(p.%s) = UPPER(:%d)", colSubdivision, len(args))
	}
	fmt.Fprintf(&b, "\nORDER BY p.%s", colAccount)
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, "\nFETCH FIRST :%d ROWS ONLY", len(args))
	}
	return b.String(), args
}

// Properties queries the roll, joined with verified sales.
func (o *Oracle) Properties(ctx context.Context, f Filter) ([]types.PropertyRecord, error) {
	query, args := propertyQuery(o.config, f)
	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	defer rows.Close()

	names := append(append([]string(nil), oracleColumns...), colSalePrice)
	vals := make([]sql.NullString, len(names))
	dest := make([]any, len(names))
	for i := range vals {
		dest[i] = &vals[i]
	}

	var properties []types.PropertyRecord
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		rec := make(map[string]string, len(names))
		for i, n := range names {
			rec[n] = vals[i].String
		}
		if p, ok := fromColumns(rec); ok {
			properties = append(properties, p)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read properties: %w", err)
	}
	return finish(properties, f), nil
}
