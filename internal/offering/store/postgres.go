package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"issuance/internal/offering/models"
	"issuance/internal/platform/postgres"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/sentinel"
	"issuance/pkg/platform/tx"
)

const offeringColumns = `security_id, offering_type, max_raise, lockup_seconds, start_at, end_at,
	base_currency, total_committed, total_issued, finalized, finalized_at, created_at, updated_at`

// Postgres stores offerings in the offerings table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, o *models.Offering) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO offerings (`+offeringColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (security_id) DO NOTHING`,
		o.SecurityID.String(), o.Config.OfferingType, o.Config.MaxRaise, int64(o.Config.Lockup/time.Second),
		o.Config.Start, o.Config.End, o.Config.BaseCurrency.String(), o.TotalCommitted, o.TotalIssued,
		o.Finalized, o.FinalizedAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert offering: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert offering: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Postgres) FindBySecurity(ctx context.Context, securityID id.SecurityID) (*models.Offering, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+offeringColumns+` FROM offerings WHERE security_id = $1`, securityID.String())
	return scanOffering(row)
}

func (s *Postgres) List(ctx context.Context) ([]*models.Offering, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+offeringColumns+` FROM offerings ORDER BY security_id`)
	if err != nil {
		return nil, fmt.Errorf("list offerings: %w", err)
	}
	defer rows.Close()
	var out []*models.Offering
	for rows.Next() {
		o, err := scanOffering(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offerings: %w", err)
	}
	return out, nil
}

// Execute locks the offering row, runs fn inside the same transaction and
// writes the result back. Stores that fn calls with the provided ctx join the
// transaction, so a failure anywhere rolls back everything.
func (s *Postgres) Execute(ctx context.Context, securityID id.SecurityID, fn func(ctx context.Context, o *models.Offering) error) (*models.Offering, error) {
	var result *models.Offering
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
			`SELECT `+offeringColumns+` FROM offerings WHERE security_id = $1 FOR UPDATE`, securityID.String())
		o, err := scanOffering(row)
		if err != nil {
			return err
		}
		if err := fn(ctx, o); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, s.db).ExecContext(ctx, `
			UPDATE offerings SET
				offering_type = $2, max_raise = $3, lockup_seconds = $4, start_at = $5, end_at = $6,
				base_currency = $7, total_committed = $8, total_issued = $9, finalized = $10,
				finalized_at = $11, updated_at = $12
			WHERE security_id = $1`,
			o.SecurityID.String(), o.Config.OfferingType, o.Config.MaxRaise, int64(o.Config.Lockup/time.Second),
			o.Config.Start, o.Config.End, o.Config.BaseCurrency.String(), o.TotalCommitted, o.TotalIssued,
			o.Finalized, o.FinalizedAt, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update offering: %w", err)
		}
		result = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOffering(row scanner) (*models.Offering, error) {
	var (
		o             models.Offering
		securityID    string
		currency      string
		lockupSeconds int64
		maxRaise      decimal.Decimal
		committed     decimal.Decimal
		finalizedAt   sql.NullTime
	)
	err := row.Scan(&securityID, &o.Config.OfferingType, &maxRaise, &lockupSeconds, &o.Config.Start,
		&o.Config.End, &currency, &committed, &o.TotalIssued, &o.Finalized, &finalizedAt,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan offering: %w", err)
	}
	o.SecurityID = id.SecurityID(securityID)
	o.Config.BaseCurrency = id.Currency(currency)
	o.Config.Lockup = time.Duration(lockupSeconds) * time.Second
	o.Config.MaxRaise = maxRaise
	o.TotalCommitted = committed
	if finalizedAt.Valid {
		t := finalizedAt.Time
		o.FinalizedAt = &t
	}
	return &o, nil
}
