package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"appraisal/internal/types"
)

// Postgres reads a normalised properties table.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres connects to connStr, a lib/pq URL or keyword string.
func NewPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an existing connection.
func NewPostgresFromDB(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// pgProperty is one row of the properties table.
type pgProperty struct {
	ID               string          `db:"id"`
	ParcelID         string          `db:"parcel_id"`
	Address          sql.NullString  `db:"address"`
	City             sql.NullString  `db:"city"`
	State            sql.NullString  `db:"state"`
	Zip              sql.NullString  `db:"zip"`
	Neighborhood     sql.NullString  `db:"neighborhood"`
	LivingArea       sql.NullFloat64 `db:"living_area"`
	LotSize          sql.NullFloat64 `db:"lot_size"`
	YearBuilt        sql.NullInt64   `db:"year_built"`
	Bedrooms         sql.NullFloat64 `db:"bedrooms"`
	Bathrooms        sql.NullFloat64 `db:"bathrooms"`
	AssessedValue    sql.NullFloat64 `db:"assessed_value"`
	MarketValue      sql.NullFloat64 `db:"market_value"`
	LandValue        sql.NullFloat64 `db:"land_value"`
	ImprovementValue sql.NullFloat64 `db:"improvement_value"`
	Latitude         sql.NullFloat64 `db:"latitude"`
	Longitude        sql.NullFloat64 `db:"longitude"`
	PropertyClass    sql.NullString  `db:"property_class"`
	AssessmentYear   sql.NullInt64   `db:"assessment_year"`
	SalePrice        sql.NullFloat64 `db:"sale_price"`
	SaleDate         sql.NullTime    `db:"sale_date"`
}

func (r pgProperty) record() types.PropertyRecord {
	p := types.PropertyRecord{
		ID:               r.ID,
		ParcelID:         r.ParcelID,
		Address:          r.Address.String,
		City:             r.City.String,
		State:            r.State.String,
		Zip:              r.Zip.String,
		Neighborhood:     r.Neighborhood.String,
		LivingArea:       r.LivingArea.Float64,
		LotSize:          r.LotSize.Float64,
		YearBuilt:        int(r.YearBuilt.Int64),
		Bedrooms:         r.Bedrooms.Float64,
		Bathrooms:        r.Bathrooms.Float64,
		AssessedValue:    r.AssessedValue.Float64,
		MarketValue:      r.MarketValue.Float64,
		LandValue:        r.LandValue.Float64,
		ImprovementValue: r.ImprovementValue.Float64,
		PropertyClass:    types.NormalizeClass(r.PropertyClass.String),
		AssessmentYear:   int(r.AssessmentYear.Int64),
		SalePrice:        r.SalePrice.Float64,
	}
	if r.Latitude.Valid && r.Longitude.Valid {
		p.Latitude, p.Longitude = types.Float(r.Latitude.Float64), types.Float(r.Longitude.Float64)
	}
	if r.SaleDate.Valid {
		p.SaleDate = r.SaleDate.Time
	}
	return p
}

const pgSelect = `
		SELECT
			id, parcel_id, address, city, state, zip, neighborhood,
			living_area, lot_size, year_built, bedrooms, bathrooms,
			assessed_value, market_value, land_value, improvement_value,
			latitude, longitude, property_class, assessment_year,
			sale_price, sale_date
		FROM properties`

func pgQuery(f Filter) (string, []any) {
	var b strings.Builder
	b.WriteString(pgSelect)
	var args []any
	if f.Subdivision != "" {
		args = append(args, f.Subdivision)
		fmt.Fprintf(&b, "\n\t\tWHERE UPPER(neighborhood) = UPPER($%d)", len(args))
	}
	b.WriteString("\n\t\tORDER BY id")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, "\n\t\tLIMIT $%d", len(args))
	}
	return b.String(), args
}

// Properties selects the filtered properties ordered by id.
func (p *Postgres) Properties(ctx context.Context, f Filter) ([]types.PropertyRecord, error) {
	query, args := pgQuery(f)
	var rows []pgProperty
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	props := make([]types.PropertyRecord, len(rows))
	for i, r := range rows {
		props[i] = r.record()
	}
	return props, nil
}
