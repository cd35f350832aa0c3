package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/lib/pq"

	"claimreg/internal/claims/models"
	id "claimreg/pkg/domain"
	"claimreg/pkg/platform/sentinel"
	txcontext "claimreg/pkg/platform/tx"
)

const pqUniqueViolation = pq.ErrorCode("23505")

// Postgres persists claims in the claims table. When the context carries a
// transaction, every statement runs inside it and Get locks the row.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) (dbExecutor, bool) {
	if tx, ok := txcontext.From(ctx); ok {
		return tx, true
	}
	return s.db, false
}

func (s *Postgres) Get(ctx context.Context, fingerprint id.Fingerprint) (*models.Claim, error) {
	exec, inTx := s.execer(ctx)
	query := `SELECT owner, sequence FROM claims WHERE fingerprint = $1`
	if inTx {
		query += ` FOR UPDATE`
	}

	var (
		owner    string
		sequence int64
	)
	err := exec.QueryRowContext(ctx, query, fingerprint.Bytes()).Scan(&owner, &sequence)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return models.NewClaim(fingerprint, id.AccountID(owner), uint64(sequence)), nil
}

func (s *Postgres) Insert(ctx context.Context, claim *models.Claim) error {
	seq, err := toBigint(claim.Sequence)
	if err != nil {
		return err
	}
	exec, _ := s.execer(ctx)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO claims (fingerprint, owner, sequence)
		VALUES ($1, $2, $3)
	`, claim.Fingerprint.Bytes(), claim.Owner.String(), seq)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("insert claim: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, claim *models.Claim) error {
	seq, err := toBigint(claim.Sequence)
	if err != nil {
		return err
	}
	exec, _ := s.execer(ctx)
	res, err := exec.ExecContext(ctx, `
		UPDATE claims SET owner = $2, sequence = $3, updated_at = now()
		WHERE fingerprint = $1
	`, claim.Fingerprint.Bytes(), claim.Owner.String(), seq)
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}
	return requireOneRow(res, "update claim")
}

func (s *Postgres) Delete(ctx context.Context, fingerprint id.Fingerprint) error {
	exec, _ := s.execer(ctx)
	res, err := exec.ExecContext(ctx, `DELETE FROM claims WHERE fingerprint = $1`, fingerprint.Bytes())
	if err != nil {
		return fmt.Errorf("delete claim: %w", err)
	}
	return requireOneRow(res, "delete claim")
}

// MaxSequence returns the highest stored sequence, or zero for an empty table.
func (s *Postgres) MaxSequence(ctx context.Context) (uint64, error) {
	exec, _ := s.execer(ctx)
	var highest int64
	err := exec.QueryRowContext(ctx, `SELECT COALESCE(max(sequence), 0) FROM claims`).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("max claim sequence: %w", err)
	}
	return uint64(highest), nil
}

// ListByOwner returns up to limit claims held by owner, ordered by
// fingerprint bytes. A non-positive limit returns all of them.
func (s *Postgres) ListByOwner(ctx context.Context, owner id.AccountID, limit int) ([]*models.Claim, error) {
	exec, _ := s.execer(ctx)
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	rows, err := exec.QueryContext(ctx, `
		SELECT fingerprint, sequence FROM claims
		WHERE owner = $1
		ORDER BY fingerprint
		LIMIT $2
	`, owner.String(), lim)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var out []*models.Claim
	for rows.Next() {
		var (
			fp       []byte
			sequence int64
		)
		if err := rows.Scan(&fp, &sequence); err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		out = append(out, models.NewClaim(id.FingerprintFromBytes(fp), owner, uint64(sequence)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	return out, nil
}

func requireOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func toBigint(seq uint64) (int64, error) {
	if seq > math.MaxInt64 {
		return 0, fmt.Errorf("sequence %d exceeds storable range", seq)
	}
	return int64(seq), nil
}
