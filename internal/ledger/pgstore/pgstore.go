// Package pgstore is the Postgres-backed ledger store for shared
// deployments where several reviewers work against one audit trail.
package pgstore

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"

	"github.com/gridtariff/trueup/internal/ledger"
)

type Store struct {
	db *sql.DB
}

// OpenPostgres opens (and pings) a Postgres database and applies migrations.
func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ledger.Migrate(db, ledger.DBPostgres); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) WithTx(fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{})
	if err != nil {
		return err
	}
	wrapped := &Tx{q: tx}
	if err := fn(wrapped); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) PutRuleset(rec ledger.RulesetRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutRuleset(rec) })
}

func (s *Store) GetRuleset(version string) (ledger.RulesetRecord, bool) {
	return (&Tx{q: s.db}).GetRuleset(version)
}

func (s *Store) PutAudit(rec ledger.AuditRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutAudit(rec) })
}

func (s *Store) GetAudit(checksum string) (ledger.AuditRecord, bool) {
	return (&Tx{q: s.db}).GetAudit(checksum)
}

func (s *Store) ListAuditsBySBU(sbuCode string, limit int) ([]ledger.AuditRecord, error) {
	return (&Tx{q: s.db}).ListAuditsBySBU(sbuCode, limit)
}

func (s *Store) PutReport(rec ledger.ReportRecord) error {
	return s.WithTx(func(tx ledger.Tx) error { return tx.PutReport(rec) })
}

func (s *Store) GetReport(reportID string) (ledger.ReportRecord, bool) {
	return (&Tx{q: s.db}).GetReport(reportID)
}

type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

type Tx struct {
	q querier
}

func (t *Tx) PutRuleset(rec ledger.RulesetRecord) error {
	var existing []byte
	err := t.q.QueryRow(`SELECT snapshot_json FROM rulesets WHERE version = $1`, rec.Version).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return err
	default:
		if string(existing) == string(rec.SnapshotJSON) {
			return nil
		}
		return ledger.ErrConflict
	}
	_, err = t.q.Exec(
		`INSERT INTO rulesets(version, order_date, hash, snapshot_json, created_at) VALUES($1, $2, $3, $4, $5)`,
		rec.Version, rec.OrderDate, rec.Hash, rec.SnapshotJSON, rec.CreatedAt,
	)
	return err
}

func (t *Tx) GetRuleset(version string) (ledger.RulesetRecord, bool) {
	var rec ledger.RulesetRecord
	row := t.q.QueryRow(
		`SELECT version, order_date, hash, snapshot_json, created_at FROM rulesets WHERE version = $1`, version)
	if err := row.Scan(&rec.Version, &rec.OrderDate, &rec.Hash, &rec.SnapshotJSON, &rec.CreatedAt); err != nil {
		return ledger.RulesetRecord{}, false
	}
	return rec, true
}

func (t *Tx) PutAudit(rec ledger.AuditRecord) error {
	var existing []byte
	err := t.q.QueryRow(`SELECT body_json FROM audits WHERE checksum = $1`, rec.Checksum).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return err
	default:
		if string(existing) == string(rec.BodyJSON) {
			return nil
		}
		return ledger.ErrConflict
	}
	_, err = t.q.Exec(
		`INSERT INTO audits(checksum, sbu_code, cost_head, category, engine_version, body_json, result_json, created_at)
		 VALUES($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.Checksum, rec.SBUCode, rec.CostHead, rec.Category, rec.EngineVersion, rec.BodyJSON, rec.ResultJSON, rec.CreatedAt,
	)
	return err
}

func (t *Tx) GetAudit(checksum string) (ledger.AuditRecord, bool) {
	var rec ledger.AuditRecord
	row := t.q.QueryRow(
		`SELECT checksum, sbu_code, cost_head, category, engine_version, body_json, result_json, created_at
		 FROM audits WHERE checksum = $1`, checksum)
	if err := row.Scan(&rec.Checksum, &rec.SBUCode, &rec.CostHead, &rec.Category, &rec.EngineVersion,
		&rec.BodyJSON, &rec.ResultJSON, &rec.CreatedAt); err != nil {
		return ledger.AuditRecord{}, false
	}
	return rec, true
}

func (t *Tx) ListAuditsBySBU(sbuCode string, limit int) ([]ledger.AuditRecord, error) {
	query := `SELECT checksum, sbu_code, cost_head, category, engine_version, body_json, result_json, created_at
		 FROM audits WHERE sbu_code = $1 ORDER BY created_at, checksum`
	args := []any{sbuCode}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := t.q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ledger.AuditRecord, 0)
	for rows.Next() {
		var rec ledger.AuditRecord
		if err := rows.Scan(&rec.Checksum, &rec.SBUCode, &rec.CostHead, &rec.Category, &rec.EngineVersion,
			&rec.BodyJSON, &rec.ResultJSON, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PutReport keys write-once on the batch checksum, not the report id:
// re-persisting the same computation under a fresh report id is a no-op.
func (t *Tx) PutReport(rec ledger.ReportRecord) error {
	var existing []byte
	err := t.q.QueryRow(`SELECT body_json FROM reports WHERE batch_checksum = $1`, rec.BatchChecksum).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return err
	default:
		if string(existing) == string(rec.BodyJSON) {
			return nil
		}
		return ledger.ErrConflict
	}
	_, err = t.q.Exec(
		`INSERT INTO reports(report_id, batch_checksum, engine_version, financial_year, item_count,
		 total_revenue_gap, total_disallowed, body_json, key_id, sig, created_at)
		 VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ReportID, rec.BatchChecksum, rec.EngineVersion, rec.FinancialYear, rec.ItemCount,
		rec.TotalRevenueGap, rec.TotalDisallowed, rec.BodyJSON, nullString(rec.KeyID), rec.Sig, rec.CreatedAt,
	)
	return err
}

func (t *Tx) GetReport(reportID string) (ledger.ReportRecord, bool) {
	var (
		rec   ledger.ReportRecord
		keyID sql.NullString
	)
	row := t.q.QueryRow(
		`SELECT report_id, batch_checksum, engine_version, financial_year, item_count,
		 total_revenue_gap, total_disallowed, body_json, key_id, sig, created_at
		 FROM reports WHERE report_id = $1`, reportID)
	if err := row.Scan(&rec.ReportID, &rec.BatchChecksum, &rec.EngineVersion, &rec.FinancialYear, &rec.ItemCount,
		&rec.TotalRevenueGap, &rec.TotalDisallowed, &rec.BodyJSON, &keyID, &rec.Sig, &rec.CreatedAt); err != nil {
		return ledger.ReportRecord{}, false
	}
	rec.KeyID = keyID.String
	return rec, true
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
