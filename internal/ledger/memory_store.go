package ledger

import (
	"sort"
	"sync"
)

// InMemoryStore is the default store for tests and ephemeral runs.
type InMemoryStore struct {
	mu sync.Mutex

	rulesets        map[string]RulesetRecord
	audits          map[string]AuditRecord
	reports         map[string]ReportRecord
	reportsByDigest map[string]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rulesets:        make(map[string]RulesetRecord),
		audits:          make(map[string]AuditRecord),
		reports:         make(map[string]ReportRecord),
		reportsByDigest: make(map[string]string),
	}
}

func (s *InMemoryStore) WithTx(fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn((*memTx)(s))
}

type memTx InMemoryStore

func (s *InMemoryStore) PutRuleset(rec RulesetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).PutRuleset(rec)
}

func (s *InMemoryStore) GetRuleset(version string) (RulesetRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).GetRuleset(version)
}

func (s *InMemoryStore) PutAudit(rec AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).PutAudit(rec)
}

func (s *InMemoryStore) GetAudit(checksum string) (AuditRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).GetAudit(checksum)
}

func (s *InMemoryStore) ListAuditsBySBU(sbuCode string, limit int) ([]AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).ListAuditsBySBU(sbuCode, limit)
}

func (s *InMemoryStore) PutReport(rec ReportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).PutReport(rec)
}

func (s *InMemoryStore) GetReport(reportID string) (ReportRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).GetReport(reportID)
}

func (t *memTx) PutRuleset(rec RulesetRecord) error {
	if existing, ok := t.rulesets[rec.Version]; ok {
		if sameBody(existing.SnapshotJSON, rec.SnapshotJSON) {
			return nil
		}
		return ErrConflict
	}
	t.rulesets[rec.Version] = rec
	return nil
}

func (t *memTx) GetRuleset(version string) (RulesetRecord, bool) {
	rec, ok := t.rulesets[version]
	return rec, ok
}

func (t *memTx) PutAudit(rec AuditRecord) error {
	if existing, ok := t.audits[rec.Checksum]; ok {
		if sameBody(existing.BodyJSON, rec.BodyJSON) {
			return nil
		}
		return ErrConflict
	}
	t.audits[rec.Checksum] = rec
	return nil
}

func (t *memTx) GetAudit(checksum string) (AuditRecord, bool) {
	rec, ok := t.audits[checksum]
	return rec, ok
}

func (t *memTx) ListAuditsBySBU(sbuCode string, limit int) ([]AuditRecord, error) {
	out := make([]AuditRecord, 0)
	for _, rec := range t.audits {
		if rec.SBUCode == sbuCode {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].Checksum < out[j].Checksum
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PutReport keys write-once on the batch checksum, not the report id:
// re-persisting the same computation under a fresh report id is a no-op.
func (t *memTx) PutReport(rec ReportRecord) error {
	if id, ok := t.reportsByDigest[rec.BatchChecksum]; ok {
		if sameBody(t.reports[id].BodyJSON, rec.BodyJSON) {
			return nil
		}
		return ErrConflict
	}
	t.reports[rec.ReportID] = rec
	t.reportsByDigest[rec.BatchChecksum] = rec.ReportID
	return nil
}

func (t *memTx) GetReport(reportID string) (ReportRecord, bool) {
	rec, ok := t.reports[reportID]
	return rec, ok
}
