package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"issuance/internal/corporateaction/models"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/sentinel"
	"issuance/pkg/platform/tx"
)

const factColumns = `reference, security_id, kind, effective_date, record_date, terms, status, reason, processed_at`

// Postgres stores facts in corporate_actions. Terms are kept as the original
// CBOR payload and decoded on read.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Record(ctx context.Context, f *models.Fact) error {
	payload := f.Payload
	if payload == nil {
		payload = []byte{}
	}
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO corporate_actions (`+factColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (reference) DO NOTHING`,
		f.Reference, f.SecurityID.String(), string(f.Kind), f.EffectiveDate, f.RecordDate, payload,
		string(f.Status), f.Reason, f.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert corporate action: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert corporate action: %w", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, reference string) (*models.Fact, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+factColumns+` FROM corporate_actions WHERE reference = $1`, reference)
	f, err := scanFact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return f, err
}

func (s *Postgres) ListBySecurity(ctx context.Context, securityID id.SecurityID) ([]*models.Fact, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx,
		`SELECT `+factColumns+` FROM corporate_actions WHERE security_id = $1 ORDER BY effective_date, reference`,
		securityID.String())
	if err != nil {
		return nil, fmt.Errorf("list corporate actions: %w", err)
	}
	defer rows.Close()

	var out []*models.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corporate actions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFact(row scanner) (*models.Fact, error) {
	var (
		f          models.Fact
		securityID string
		kind       string
		status     string
		recordDate sql.NullTime
	)
	err := row.Scan(&f.Reference, &securityID, &kind, &f.EffectiveDate, &recordDate, &f.Payload, &status, &f.Reason, &f.ProcessedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan corporate action: %w", err)
	}
	f.SecurityID = id.SecurityID(securityID)
	f.Kind = models.Kind(kind)
	f.Status = models.Status(status)
	if recordDate.Valid {
		t := recordDate.Time
		f.RecordDate = &t
	}
	if f.Status == models.StatusRecorded {
		if f.Terms, err = models.DecodeTerms(f.Kind, f.Payload); err != nil {
			return nil, fmt.Errorf("decode stored terms for %s: %w", f.Reference, err)
		}
	}
	return &f, nil
}
