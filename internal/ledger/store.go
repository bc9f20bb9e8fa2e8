// Package ledger persists engine outputs append-only. Records are
// write-once: persisting a record whose key already exists with an
// identical body means "this exact computation already exists" and is a
// no-op, while a differing body is a conflict.
package ledger

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/gridtariff/trueup/internal/crypto"
	"github.com/gridtariff/trueup/internal/money"
	"github.com/gridtariff/trueup/internal/regconst"
	"github.com/gridtariff/trueup/pkg/types"
)

// ErrConflict is returned when a write-once key is re-used with a
// different body.
var ErrConflict = errors.New("record already exists with a different body")

// Signer binds a key id to a digest-signing key. *crypto.Signer satisfies it.
type Signer interface {
	KeyID() string
	SignEd25519(digest []byte) ([]byte, error)
}

// RulesetRecord snapshots one constants version so old results can be
// re-derived long after the version stopped being active.
type RulesetRecord struct {
	Version      string
	OrderDate    string
	Hash         string
	SnapshotJSON []byte
	CreatedAt    string
}

// AuditRecord is the persistable form of one AuditResult. BodyJSON holds
// the canonical stable view the checksum was computed over; ResultJSON
// holds the full result including volatile fields.
type AuditRecord struct {
	Checksum      string
	SBUCode       string
	CostHead      string
	Category      string
	EngineVersion string
	BodyJSON      []byte
	ResultJSON    []byte
	CreatedAt     string
}

// ReportRecord is the persistable form of one PetitionReport, optionally
// attested with an Ed25519 signature over the canonical body digest.
type ReportRecord struct {
	ReportID        string
	BatchChecksum   string
	EngineVersion   string
	FinancialYear   string
	ItemCount       int
	TotalRevenueGap string
	TotalDisallowed string
	BodyJSON        []byte
	KeyID           string
	Sig             []byte
	CreatedAt       string
}

type Store interface {
	WithTx(fn func(Tx) error) error

	PutRuleset(rec RulesetRecord) error
	GetRuleset(version string) (RulesetRecord, bool)

	PutAudit(rec AuditRecord) error
	GetAudit(checksum string) (AuditRecord, bool)
	ListAuditsBySBU(sbuCode string, limit int) ([]AuditRecord, error)

	PutReport(rec ReportRecord) error
	GetReport(reportID string) (ReportRecord, bool)
}

type Tx interface {
	PutRuleset(rec RulesetRecord) error
	GetRuleset(version string) (RulesetRecord, bool)

	PutAudit(rec AuditRecord) error
	GetAudit(checksum string) (AuditRecord, bool)
	ListAuditsBySBU(sbuCode string, limit int) ([]AuditRecord, error)

	PutReport(rec ReportRecord) error
	GetReport(reportID string) (ReportRecord, bool)
}

// NewAuditRecord freezes an engine result into its persistable form. The
// canonical body is rebuilt here and cross-checked against the result's
// own checksum, so a corrupted result can never be persisted as authentic.
func NewAuditRecord(res types.AuditResult) (AuditRecord, error) {
	body, err := crypto.Canonicalize(res.StableView())
	if err != nil {
		return AuditRecord{}, err
	}
	if crypto.DigestHex(body) != res.Checksum {
		return AuditRecord{}, ErrAuditChecksumMismatch
	}
	full, err := json.Marshal(res)
	if err != nil {
		return AuditRecord{}, err
	}
	return AuditRecord{
		Checksum:      res.Checksum,
		SBUCode:       string(res.SBUCode),
		CostHead:      res.CostHead,
		Category:      string(res.VarianceCategory),
		EngineVersion: res.Metadata.EngineVersion,
		BodyJSON:      body,
		ResultJSON:    full,
		CreatedAt:     res.Timestamp,
	}, nil
}

// NewReportRecord freezes a petition report. A non-nil signer attests the
// canonical body digest.
func NewReportRecord(rep types.PetitionReport, signer Signer) (ReportRecord, error) {
	body, err := crypto.Canonicalize(rep.StableView())
	if err != nil {
		return ReportRecord{}, err
	}
	if crypto.DigestHex(body) != rep.BatchChecksum {
		return ReportRecord{}, ErrReportChecksumMismatch
	}

	rec := ReportRecord{
		ReportID:        rep.ReportID,
		BatchChecksum:   rep.BatchChecksum,
		EngineVersion:   rep.EngineVersion,
		FinancialYear:   rep.FinancialYear,
		ItemCount:       rep.TotalItems,
		TotalRevenueGap: money.Format(rep.TotalRevenueGap),
		TotalDisallowed: money.Format(rep.TotalDisallowed),
		BodyJSON:        body,
		CreatedAt:       rep.Timestamp,
	}

	if signer != nil {
		sig, err := signer.SignEd25519(crypto.DigestBytes(body))
		if err != nil {
			return ReportRecord{}, err
		}
		rec.KeyID = signer.KeyID()
		rec.Sig = sig
	}
	return rec, nil
}

// NewRulesetRecord snapshots a constants set for persistence.
func NewRulesetRecord(s *regconst.Set, createdAt string) (RulesetRecord, error) {
	snapshot, err := crypto.Canonicalize(s.Snapshot())
	if err != nil {
		return RulesetRecord{}, err
	}
	return RulesetRecord{
		Version:      s.Version(),
		OrderDate:    s.OrderDate(),
		Hash:         s.Hash(),
		SnapshotJSON: snapshot,
		CreatedAt:    createdAt,
	}, nil
}

// sameBody reports whether two persisted bodies are byte-identical, which
// is what makes a duplicate persist a no-op rather than a conflict.
func sameBody(a, b []byte) bool {
	return bytes.Equal(a, b)
}
