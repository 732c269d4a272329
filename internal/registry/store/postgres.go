package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"issuance/internal/platform/postgres"
	"issuance/internal/registry/models"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/sentinel"
	"issuance/pkg/platform/tx"
)

// Postgres persists securities in the securities and csd_mappings tables.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const securityColumns = `id, issuer_lei, upi, description, currency, issue_date, maturity_date,
	total_supply, nav, nav_currency, nav_as_of, registered_at`

func (s *Postgres) Create(ctx context.Context, sec *models.Security) error {
	query := `INSERT INTO securities (` + securityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`
	nav, navCurrency, navAsOf := navColumns(sec.NAV)
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, query,
		sec.ID.String(), sec.IssuerLEI.String(), sec.UPI.String(), sec.Description, sec.Currency.String(),
		sec.IssueDate, sec.MaturityDate, sec.TotalSupply, nav, navCurrency, navAsOf, sec.RegisteredAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert security: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert security rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, securityID id.SecurityID) (*models.Security, error) {
	query := `SELECT ` + securityColumns + ` FROM securities WHERE id = $1`
	return s.scanOne(tx.Exec(ctx, s.db).QueryRowContext(ctx, query, securityID.String()))
}

func (s *Postgres) List(ctx context.Context) ([]*models.Security, error) {
	query := `SELECT ` + securityColumns + ` FROM securities ORDER BY id`
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list securities: %w", err)
	}
	defer rows.Close()

	var out []*models.Security
	for rows.Next() {
		sec, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate securities: %w", err)
	}
	return out, nil
}

// Update locks the row for the duration of fn.
func (s *Postgres) Update(ctx context.Context, securityID id.SecurityID, fn func(*models.Security) error) (*models.Security, error) {
	var updated *models.Security
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		query := `SELECT ` + securityColumns + ` FROM securities WHERE id = $1 FOR UPDATE`
		sec, err := s.scanOne(tx.Exec(ctx, s.db).QueryRowContext(ctx, query, securityID.String()))
		if err != nil {
			return err
		}
		if err := fn(sec); err != nil {
			return err
		}
		nav, navCurrency, navAsOf := navColumns(sec.NAV)
		_, err = tx.Exec(ctx, s.db).ExecContext(ctx, `
			UPDATE securities
			SET description = $2, maturity_date = $3, total_supply = $4, nav = $5, nav_currency = $6, nav_as_of = $7
			WHERE id = $1`,
			sec.ID.String(), sec.Description, sec.MaturityDate, sec.TotalSupply, nav, navCurrency, navAsOf,
		)
		if err != nil {
			return fmt.Errorf("update security: %w", err)
		}
		updated = sec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Postgres) SetCSDMapping(ctx context.Context, m models.CSDMapping) error {
	query := `
		INSERT INTO csd_mappings (security_id, csd_system, csd_security_id, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (security_id, csd_system) DO UPDATE SET
			csd_security_id = EXCLUDED.csd_security_id,
			active = EXCLUDED.active`
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, query, m.SecurityID.String(), string(m.System), m.CSDSecurityID, m.Active)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("upsert csd mapping: %w", err)
	}
	return nil
}

func (s *Postgres) CSDMappings(ctx context.Context, securityID id.SecurityID) ([]models.CSDMapping, error) {
	query := `SELECT csd_system, csd_security_id, active FROM csd_mappings WHERE security_id = $1 ORDER BY csd_system`
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, query, securityID.String())
	if err != nil {
		return nil, fmt.Errorf("list csd mappings: %w", err)
	}
	defer rows.Close()

	var out []models.CSDMapping
	for rows.Next() {
		m := models.CSDMapping{SecurityID: securityID}
		var system string
		if err := rows.Scan(&system, &m.CSDSecurityID, &m.Active); err != nil {
			return nil, fmt.Errorf("scan csd mapping: %w", err)
		}
		m.System = models.CSDSystem(system)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate csd mappings: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Postgres) scanOne(row rowScanner) (*models.Security, error) {
	var (
		sec                       models.Security
		secID, lei, upi, currency string
		maturity, navAsOf         sql.NullTime
		nav                       decimal.NullDecimal
		navCurrency               sql.NullString
	)
	err := row.Scan(&secID, &lei, &upi, &sec.Description, &currency, &sec.IssueDate, &maturity,
		&sec.TotalSupply, &nav, &navCurrency, &navAsOf, &sec.RegisteredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan security: %w", err)
	}
	sec.ID = id.SecurityID(secID)
	sec.IssuerLEI = id.LEI(lei)
	sec.UPI = id.UPI(upi)
	sec.Currency = id.Currency(currency)
	if maturity.Valid {
		t := maturity.Time
		sec.MaturityDate = &t
	}
	if nav.Valid {
		sec.NAV = &models.NAV{Value: nav.Decimal, Currency: id.Currency(navCurrency.String), AsOf: navAsOf.Time}
	}
	return &sec, nil
}

func navColumns(nav *models.NAV) (decimal.NullDecimal, sql.NullString, sql.NullTime) {
	if nav == nil {
		return decimal.NullDecimal{}, sql.NullString{}, sql.NullTime{}
	}
	return decimal.NewNullDecimal(nav.Value),
		sql.NullString{String: nav.Currency.String(), Valid: true},
		sql.NullTime{Time: nav.AsOf, Valid: true}
}
