package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"issuance/internal/derivatives/models"
	"issuance/internal/platform/postgres"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/sentinel"
	"issuance/pkg/platform/tx"
)

// Postgres stores reports in derivative_reports. The trade snapshot
// (counterparties, collateral, valuation) and the error log are JSONB.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type snapshot struct {
	Counterparties [2]models.Counterparty `json:"counterparties"`
	Collateral     models.Collateral      `json:"collateral"`
	Valuation      models.Valuation       `json:"valuation"`
}

func (s *Postgres) Create(ctx context.Context, r *models.Report) error {
	return s.insert(ctx, r)
}

func (s *Postgres) Get(ctx context.Context, uti id.UTI) (*models.Report, error) {
	return s.load(ctx, uti, false)
}

func (s *Postgres) Update(ctx context.Context, uti id.UTI, now time.Time, fn func(*models.Report) error) (*models.Report, error) {
	var result *models.Report
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		r, err := s.load(ctx, uti, true)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
		r.UpdatedAt = now
		errorLog, err := json.Marshal(r.Errors)
		if err != nil {
			return fmt.Errorf("marshal error log: %w", err)
		}
		_, err = tx.Exec(ctx, s.db).ExecContext(ctx, `
			UPDATE derivative_reports
			SET status = $2, status_reason = $3, repository_ref = $4, superseded_by = $5, errors = $6, updated_at = $7
			WHERE uti = $1`,
			r.UTI.String(), string(r.Status), r.StatusReason, r.RepositoryRef, r.SupersededBy.String(), errorLog, r.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update derivative report: %w", err)
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Postgres) Supersede(ctx context.Context, prior id.UTI, next *models.Report) error {
	return tx.Run(ctx, s.db, func(ctx context.Context) error {
		old, err := s.load(ctx, prior, true)
		if err != nil {
			return err
		}
		if old.Superseded() {
			return sentinel.ErrAlreadyUsed
		}
		stored := next.Clone()
		stored.PriorUTI = prior
		if err := s.insert(ctx, stored); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, s.db).ExecContext(ctx, `
			UPDATE derivative_reports SET superseded_by = $2, updated_at = $3 WHERE uti = $1`,
			prior.String(), next.UTI.String(), next.SubmittedAt,
		)
		if err != nil {
			return fmt.Errorf("link superseded report: %w", err)
		}
		return nil
	})
}

func (s *Postgres) insert(ctx context.Context, r *models.Report) error {
	body, err := json.Marshal(snapshot{Counterparties: r.Counterparties, Collateral: r.Collateral, Valuation: r.Valuation})
	if err != nil {
		return fmt.Errorf("marshal report snapshot: %w", err)
	}
	errorLog, err := json.Marshal(r.Errors)
	if err != nil {
		return fmt.Errorf("marshal error log: %w", err)
	}
	_, err = tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO derivative_reports
			(uti, security_id, snapshot, prior_uti, superseded_by, status, status_reason, repository_ref, errors, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.UTI.String(), r.SecurityID.String(), body, r.PriorUTI.String(), r.SupersededBy.String(),
		string(r.Status), r.StatusReason, r.RepositoryRef, errorLog, r.SubmittedAt, r.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert derivative report: %w", err)
	}
	return nil
}

func (s *Postgres) load(ctx context.Context, uti id.UTI, forUpdate bool) (*models.Report, error) {
	query := `
		SELECT uti, security_id, snapshot, prior_uti, superseded_by, status, status_reason, repository_ref, errors, submitted_at, updated_at
		FROM derivative_reports WHERE uti = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	var (
		r                                     models.Report
		rawUTI, securityID, prior, superseded string
		status                                string
		body, errorLog                        []byte
	)
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx, query, uti.String()).Scan(
		&rawUTI, &securityID, &body, &prior, &superseded, &status, &r.StatusReason, &r.RepositoryRef,
		&errorLog, &r.SubmittedAt, &r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find derivative report: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("decode report snapshot: %w", err)
	}
	if err := json.Unmarshal(errorLog, &r.Errors); err != nil {
		return nil, fmt.Errorf("decode error log: %w", err)
	}
	r.UTI = id.UTI(rawUTI)
	r.SecurityID = id.SecurityID(securityID)
	r.PriorUTI = id.UTI(prior)
	r.SupersededBy = id.UTI(superseded)
	r.Status = models.Status(status)
	r.Counterparties = snap.Counterparties
	r.Collateral = snap.Collateral
	r.Valuation = snap.Valuation
	return &r, nil
}
