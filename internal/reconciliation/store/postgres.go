package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"issuance/internal/reconciliation/models"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/sentinel"
	"issuance/pkg/platform/tx"
)

const recordColumns = `domain, reference, internal_id, security_id, from_address, to_address, amount,
	external_ref, settlement_system, status, detail, processed_at, reconciled_at`

// Postgres stores records in reconciliation_records keyed by (domain, reference).
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Claim(ctx context.Context, rec *models.Record) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO reconciliation_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (domain, reference) DO NOTHING`,
		string(rec.Domain), rec.Reference, rec.InternalID, rec.SecurityID.String(), rec.From.String(),
		rec.To.String(), rec.Amount, rec.ExternalRef, rec.System, string(rec.Status), rec.Detail,
		rec.ProcessedAt, rec.ReconciledAt,
	)
	if err != nil {
		return fmt.Errorf("claim marker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim marker: %w", err)
	}
	if n == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *Postgres) Release(ctx context.Context, domain models.Domain, reference string) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx,
		`DELETE FROM reconciliation_records WHERE domain = $1 AND reference = $2`, string(domain), reference)
	if err != nil {
		return fmt.Errorf("release marker: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, domain models.Domain, reference string) (*models.Record, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM reconciliation_records WHERE domain = $1 AND reference = $2`,
		string(domain), reference)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return rec, err
}

func (s *Postgres) SetStatus(ctx context.Context, domain models.Domain, reference string, status models.Status, detail string, at time.Time) error {
	var reconciledAt *time.Time
	if status != models.StatusProcessed {
		reconciledAt = &at
	}
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE reconciliation_records SET status = $3, detail = $4, reconciled_at = $5
		WHERE domain = $1 AND reference = $2`,
		string(domain), reference, string(status), detail, reconciledAt)
	if err != nil {
		return fmt.Errorf("set marker status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set marker status: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) List(ctx context.Context, domain models.Domain, filter models.Filter) ([]*models.Record, error) {
	var from, to sql.NullTime
	if !filter.From.IsZero() {
		from = sql.NullTime{Time: filter.From, Valid: true}
	}
	if !filter.To.IsZero() {
		to = sql.NullTime{Time: filter.To, Valid: true}
	}
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT `+recordColumns+` FROM reconciliation_records
		WHERE domain = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR security_id = $3)
		  AND ($4::timestamptz IS NULL OR processed_at >= $4)
		  AND ($5::timestamptz IS NULL OR processed_at < $5)
		ORDER BY processed_at, reference`,
		string(domain), string(filter.Status), filter.SecurityID.String(), from, to)
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate markers: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.Record, error) {
	var (
		rec          models.Record
		domain       string
		securityID   string
		from, to     string
		status       string
		reconciledAt sql.NullTime
	)
	err := row.Scan(&domain, &rec.Reference, &rec.InternalID, &securityID, &from, &to, &rec.Amount,
		&rec.ExternalRef, &rec.System, &status, &rec.Detail, &rec.ProcessedAt, &reconciledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan marker: %w", err)
	}
	rec.Domain = models.Domain(domain)
	rec.SecurityID = id.SecurityID(securityID)
	rec.From = id.InvestorID(from)
	rec.To = id.InvestorID(to)
	rec.Status = models.Status(status)
	if reconciledAt.Valid {
		t := reconciledAt.Time
		rec.ReconciledAt = &t
	}
	return &rec, nil
}
