package ledger

import (
	"crypto/ed25519"
	"errors"

	"github.com/gridtariff/trueup/internal/crypto"
)

var (
	ErrAuditChecksumMismatch  = errors.New("audit checksum mismatch")
	ErrReportChecksumMismatch = errors.New("report batch checksum mismatch")
	ErrReportSignature        = errors.New("report signature invalid")
)

// VerifyAudit recomputes the digest of the stored canonical body and
// compares it against the record's checksum.
func VerifyAudit(rec AuditRecord) error {
	if crypto.DigestHex(rec.BodyJSON) != rec.Checksum {
		return ErrAuditChecksumMismatch
	}
	return nil
}

// VerifyReport validates digest consistency and, when the record carries a
// signature and a public key is supplied, the attestation as well.
func VerifyReport(rec ReportRecord, publicKey ed25519.PublicKey) error {
	if crypto.DigestHex(rec.BodyJSON) != rec.BatchChecksum {
		return ErrReportChecksumMismatch
	}
	if len(rec.Sig) == 0 || publicKey == nil {
		return nil
	}
	ok, err := crypto.VerifyEd25519(publicKey, crypto.DigestBytes(rec.BodyJSON), rec.Sig)
	if err != nil {
		return err
	}
	if !ok {
		return ErrReportSignature
	}
	return nil
}
