package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"issuance/internal/ledger/models"
	id "issuance/pkg/domain"
	"issuance/pkg/platform/sentinel"
	"issuance/pkg/platform/tx"
)

// Postgres stores positions in investors and investor_holdings.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) FindByInvestor(ctx context.Context, investor id.InvestorID) (*models.Position, error) {
	return s.load(ctx, investor, false)
}

func (s *Postgres) List(ctx context.Context) ([]*models.Position, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, `SELECT id FROM investors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list investors: %w", err)
	}
	var ids []id.InvestorID
	for rows.Next() {
		var investor string
		if err := rows.Scan(&investor); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan investor id: %w", err)
		}
		ids = append(ids, id.InvestorID(investor))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate investors: %w", err)
	}

	out := make([]*models.Position, 0, len(ids))
	for _, investor := range ids {
		p, err := s.load(ctx, investor, false)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Execute locks the investor row (creating it when create is set), applies fn
// and writes the result back in the same transaction. When ctx already
// carries a transaction the work joins it.
func (s *Postgres) Execute(ctx context.Context, investor id.InvestorID, create bool, now time.Time, fn func(*models.Position) error) (*models.Position, error) {
	var result *models.Position
	err := tx.Run(ctx, s.db, func(ctx context.Context) error {
		if create {
			_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
				INSERT INTO investors (id, jurisdiction, kyc_passed, aml_passed, created_at, updated_at)
				VALUES ($1, '', FALSE, FALSE, $2, $2)
				ON CONFLICT (id) DO NOTHING`, investor.String(), now)
			if err != nil {
				return fmt.Errorf("ensure investor: %w", err)
			}
		}
		p, err := s.load(ctx, investor, true)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		p.UpdatedAt = now
		if err := s.save(ctx, p); err != nil {
			return err
		}
		result = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Postgres) load(ctx context.Context, investor id.InvestorID, forUpdate bool) (*models.Position, error) {
	lock := ""
	if forUpdate {
		lock = " FOR UPDATE"
	}
	exec := tx.Exec(ctx, s.db)

	p := &models.Position{Investor: investor, Holdings: make(map[id.SecurityID]*models.Holding)}
	err := exec.QueryRowContext(ctx, `
		SELECT jurisdiction, kyc_passed, aml_passed, created_at, updated_at
		FROM investors WHERE id = $1`+lock, investor.String(),
	).Scan(&p.Jurisdiction, &p.KYCPassed, &p.AMLPassed, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find investor: %w", err)
	}

	rows, err := exec.QueryContext(ctx, `
		SELECT security_id, committed, issued_units, lockup_release
		FROM investor_holdings WHERE investor_id = $1`+lock, investor.String())
	if err != nil {
		return nil, fmt.Errorf("find holdings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			securityID string
			committed  decimal.Decimal
			units      int64
			release    sql.NullTime
		)
		if err := rows.Scan(&securityID, &committed, &units, &release); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		h := &models.Holding{Committed: committed, IssuedUnits: units}
		if release.Valid {
			t := release.Time
			h.LockupRelease = &t
		}
		p.Holdings[id.SecurityID(securityID)] = h
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holdings: %w", err)
	}
	return p, nil
}

func (s *Postgres) save(ctx context.Context, p *models.Position) error {
	exec := tx.Exec(ctx, s.db)
	_, err := exec.ExecContext(ctx, `
		UPDATE investors SET jurisdiction = $2, kyc_passed = $3, aml_passed = $4, updated_at = $5
		WHERE id = $1`,
		p.Investor.String(), p.Jurisdiction, p.KYCPassed, p.AMLPassed, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update investor: %w", err)
	}
	for securityID, h := range p.Holdings {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO investor_holdings (investor_id, security_id, committed, issued_units, lockup_release)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (investor_id, security_id) DO UPDATE SET
				committed = EXCLUDED.committed,
				issued_units = EXCLUDED.issued_units,
				lockup_release = EXCLUDED.lockup_release`,
			p.Investor.String(), securityID.String(), h.Committed, h.IssuedUnits, h.LockupRelease,
		)
		if err != nil {
			return fmt.Errorf("upsert holding: %w", err)
		}
	}
	return nil
}
