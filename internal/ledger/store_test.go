package ledger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/gridtariff/trueup/internal/crypto"
	"github.com/gridtariff/trueup/internal/engine"
	"github.com/gridtariff/trueup/internal/regconst"
	"github.com/gridtariff/trueup/pkg/types"
)

func computedResult(t *testing.T, head, category, sbu, approved, actual string) types.AuditResult {
	t.Helper()

	approvedAmt, err := decimal.NewFromString(approved)
	if err != nil {
		t.Fatalf("parse approved: %v", err)
	}
	actualAmt, err := decimal.NewFromString(actual)
	if err != nil {
		t.Fatalf("parse actual: %v", err)
	}
	in, err := types.NewCostInput(types.CostInputParams{
		Head:            head,
		Category:        category,
		SBUCode:         sbu,
		Approved:        approvedAmt,
		Actual:          &actualAmt,
		IsHumanVerified: true,
	})
	if err != nil {
		t.Fatalf("cost input: %v", err)
	}

	res, err := engine.New(nil).ComputeVariance(in)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	return res
}

func computedReport(t *testing.T) types.PetitionReport {
	t.Helper()

	approved, _ := decimal.NewFromString("150")
	actual, _ := decimal.NewFromString("120")
	in, err := types.NewCostInput(types.CostInputParams{
		Head:            "Employee Costs",
		Category:        "Controllable",
		SBUCode:         "SBU-D",
		Approved:        approved,
		Actual:          &actual,
		IsHumanVerified: true,
	})
	if err != nil {
		t.Fatalf("cost input: %v", err)
	}

	report, err := engine.New(nil).ProcessPetition("2022-23", []types.CostInput{in})
	if err != nil {
		t.Fatalf("process petition: %v", err)
	}
	return report
}

func testSigner(t *testing.T) (*crypto.Signer, []byte) {
	t.Helper()
	priv, pub, err := crypto.KeyPairFromSeed(bytes.Repeat([]byte{0x09}, 32))
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	return crypto.NewSigner("test-key", priv), pub
}

func TestNewAuditRecordCrossChecksChecksum(t *testing.T) {
	res := computedResult(t, "Employee Costs", "Controllable", "SBU-D", "150", "120")

	rec, err := NewAuditRecord(res)
	if err != nil {
		t.Fatalf("new audit record: %v", err)
	}
	if rec.Checksum != res.Checksum {
		t.Fatalf("record checksum mismatch")
	}
	if rec.SBUCode != "SBU-D" || rec.Category != "Controllable" {
		t.Fatalf("unexpected record fields: %+v", rec)
	}
	if len(rec.BodyJSON) == 0 || len(rec.ResultJSON) == 0 {
		t.Fatalf("record bodies must be populated")
	}

	// A result whose checksum was tampered with must never persist as
	// authentic.
	res.Checksum = "0000"
	if _, err := NewAuditRecord(res); !errors.Is(err, ErrAuditChecksumMismatch) {
		t.Fatalf("expected ErrAuditChecksumMismatch, got %v", err)
	}
}

func TestNewReportRecordSigned(t *testing.T) {
	report := computedReport(t)
	signer, pub := testSigner(t)

	rec, err := NewReportRecord(report, signer)
	if err != nil {
		t.Fatalf("new report record: %v", err)
	}
	if rec.KeyID != "test-key" || len(rec.Sig) == 0 {
		t.Fatalf("record must carry the attestation")
	}
	if err := VerifyReport(rec, pub); err != nil {
		t.Fatalf("verify report: %v", err)
	}

	// Unsigned records verify on digest alone.
	unsigned, err := NewReportRecord(report, nil)
	if err != nil {
		t.Fatalf("new report record: %v", err)
	}
	if len(unsigned.Sig) != 0 {
		t.Fatalf("nil signer must leave the record unsigned")
	}
	if err := VerifyReport(unsigned, nil); err != nil {
		t.Fatalf("verify unsigned report: %v", err)
	}
}

func TestNewReportRecordRejectsTamperedChecksum(t *testing.T) {
	report := computedReport(t)
	report.BatchChecksum = "0000"
	if _, err := NewReportRecord(report, nil); !errors.Is(err, ErrReportChecksumMismatch) {
		t.Fatalf("expected ErrReportChecksumMismatch, got %v", err)
	}
}

func TestNewRulesetRecord(t *testing.T) {
	rec, err := NewRulesetRecord(regconst.KSERC(), "2026-08-29T10:00:00Z")
	if err != nil {
		t.Fatalf("new ruleset record: %v", err)
	}
	if rec.Version != regconst.KSERCVersion {
		t.Fatalf("unexpected version: %s", rec.Version)
	}
	if rec.Hash != regconst.KSERC().Hash() {
		t.Fatalf("hash mismatch")
	}
	if len(rec.SnapshotJSON) == 0 {
		t.Fatalf("snapshot must be populated")
	}
}

func TestVerifyAuditDetectsTamperedBody(t *testing.T) {
	res := computedResult(t, "Employee Costs", "Controllable", "SBU-D", "150", "120")
	rec, err := NewAuditRecord(res)
	if err != nil {
		t.Fatalf("new audit record: %v", err)
	}

	if err := VerifyAudit(rec); err != nil {
		t.Fatalf("verify audit: %v", err)
	}

	rec.BodyJSON = bytes.Replace(rec.BodyJSON, []byte("150.00"), []byte("151.00"), 1)
	if err := VerifyAudit(rec); !errors.Is(err, ErrAuditChecksumMismatch) {
		t.Fatalf("expected ErrAuditChecksumMismatch, got %v", err)
	}
}

func TestVerifyReportDetectsWrongKey(t *testing.T) {
	report := computedReport(t)
	signer, _ := testSigner(t)

	rec, err := NewReportRecord(report, signer)
	if err != nil {
		t.Fatalf("new report record: %v", err)
	}

	_, otherPub, err := crypto.KeyPairFromSeed(bytes.Repeat([]byte{0x0a}, 32))
	if err != nil {
		t.Fatalf("keypair: %v", err)
	}
	if err := VerifyReport(rec, otherPub); !errors.Is(err, ErrReportSignature) {
		t.Fatalf("expected ErrReportSignature, got %v", err)
	}
}

func TestInMemoryStoreWriteOnce(t *testing.T) {
	store := NewInMemoryStore()
	res := computedResult(t, "Employee Costs", "Controllable", "SBU-D", "150", "120")
	rec, err := NewAuditRecord(res)
	if err != nil {
		t.Fatalf("new audit record: %v", err)
	}

	if err := store.PutAudit(rec); err != nil {
		t.Fatalf("put audit: %v", err)
	}
	// Identical body re-persist is a no-op.
	if err := store.PutAudit(rec); err != nil {
		t.Fatalf("duplicate put must be a no-op: %v", err)
	}

	conflicting := rec
	conflicting.BodyJSON = append([]byte(nil), rec.BodyJSON...)
	conflicting.BodyJSON[0] ^= 0xff
	if err := store.PutAudit(conflicting); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, ok := store.GetAudit(rec.Checksum)
	if !ok {
		t.Fatalf("audit not found after put")
	}
	if !bytes.Equal(got.BodyJSON, rec.BodyJSON) {
		t.Fatalf("stored body mutated")
	}
}

func TestInMemoryStoreListAuditsBySBU(t *testing.T) {
	store := NewInMemoryStore()

	recs := []AuditRecord{
		{Checksum: "c2", SBUCode: "SBU-D", BodyJSON: []byte("b2"), CreatedAt: "2026-08-29T11:00:00Z"},
		{Checksum: "c1", SBUCode: "SBU-D", BodyJSON: []byte("b1"), CreatedAt: "2026-08-29T10:00:00Z"},
		{Checksum: "c3", SBUCode: "SBU-G", BodyJSON: []byte("b3"), CreatedAt: "2026-08-29T09:00:00Z"},
	}
	for _, rec := range recs {
		if err := store.PutAudit(rec); err != nil {
			t.Fatalf("put audit: %v", err)
		}
	}

	got, err := store.ListAuditsBySBU("SBU-D", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Checksum != "c1" || got[1].Checksum != "c2" {
		t.Fatalf("unexpected listing: %+v", got)
	}

	limited, err := store.ListAuditsBySBU("SBU-D", 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(limited) != 1 || limited[0].Checksum != "c1" {
		t.Fatalf("unexpected limited listing: %+v", limited)
	}
}

func TestInMemoryStoreWithTx(t *testing.T) {
	store := NewInMemoryStore()
	report := computedReport(t)
	reportRec, err := NewReportRecord(report, nil)
	if err != nil {
		t.Fatalf("new report record: %v", err)
	}
	auditRec, err := NewAuditRecord(report.LineItems[0])
	if err != nil {
		t.Fatalf("new audit record: %v", err)
	}

	err = store.WithTx(func(tx Tx) error {
		if err := tx.PutAudit(auditRec); err != nil {
			return err
		}
		return tx.PutReport(reportRec)
	})
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}

	if _, ok := store.GetReport(report.ReportID); !ok {
		t.Fatalf("report not visible after tx")
	}
	if _, ok := store.GetAudit(auditRec.Checksum); !ok {
		t.Fatalf("audit not visible after tx")
	}
}

func TestInMemoryStoreReportKeyedByBatchChecksum(t *testing.T) {
	store := NewInMemoryStore()

	first, err := NewReportRecord(computedReport(t), nil)
	if err != nil {
		t.Fatalf("new report record: %v", err)
	}
	// Same petition computed again: fresh report id, same batch checksum.
	second, err := NewReportRecord(computedReport(t), nil)
	if err != nil {
		t.Fatalf("new report record: %v", err)
	}
	if first.ReportID == second.ReportID {
		t.Fatalf("expected distinct report ids")
	}
	if first.BatchChecksum != second.BatchChecksum {
		t.Fatalf("expected identical batch checksums, got %s vs %s", first.BatchChecksum, second.BatchChecksum)
	}

	if err := store.PutReport(first); err != nil {
		t.Fatalf("put report: %v", err)
	}
	if err := store.PutReport(second); err != nil {
		t.Fatalf("re-persisting the same computation must be a no-op: %v", err)
	}

	if _, ok := store.GetReport(first.ReportID); !ok {
		t.Fatalf("first report not retrievable")
	}
	if _, ok := store.GetReport(second.ReportID); ok {
		t.Fatalf("no-op persist must not store a second copy")
	}

	conflicting := first
	conflicting.BodyJSON = append([]byte(nil), first.BodyJSON...)
	conflicting.BodyJSON[0] ^= 0xff
	if err := store.PutReport(conflicting); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRulesetWriteOnce(t *testing.T) {
	store := NewInMemoryStore()
	rec, err := NewRulesetRecord(regconst.KSERC(), "2026-08-29T10:00:00Z")
	if err != nil {
		t.Fatalf("new ruleset record: %v", err)
	}

	if err := store.PutRuleset(rec); err != nil {
		t.Fatalf("put ruleset: %v", err)
	}
	if err := store.PutRuleset(rec); err != nil {
		t.Fatalf("duplicate ruleset put must be a no-op: %v", err)
	}

	conflicting := rec
	conflicting.SnapshotJSON = []byte(`{"different":true}`)
	if err := store.PutRuleset(conflicting); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, ok := store.GetRuleset(regconst.KSERCVersion)
	if !ok || got.Hash != rec.Hash {
		t.Fatalf("ruleset not retrievable")
	}
}
