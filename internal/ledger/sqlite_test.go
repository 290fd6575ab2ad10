package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"blockproof/internal/apperr"
)

func newTestSQLiteLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	l, err := NewSQLiteLedger(filepath.Join(t.TempDir(), "ledger.db"), zaptest.NewLogger(t))
	if err != nil {
		// go-sqlite3 needs cgo
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestSQLiteLedgerLifecycle(t *testing.T) {
	l := newTestSQLiteLedger(t)
	ctx := context.Background()

	record := sampleRecord("CERT-1")
	record.AdditionalInfo = "With distinction"

	receipt, err := l.Store(ctx, record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.CertificateID != "CERT-1" {
		t.Errorf("unexpected receipt: %+v", receipt)
	}

	if _, err := l.Store(ctx, sampleRecord("CERT-1")); !apperr.Is(err, apperr.KindDuplicateID) {
		t.Errorf("expected duplicate id error, but got %v", err)
	}

	got, err := l.Lookup(ctx, "CERT-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ContentHash != record.ContentHash || got.AdditionalInfo != "With distinction" || got.Revoked {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.RevokedAt != nil || got.RevocationReason != "" {
		t.Errorf("expected no revocation fields, got %+v", got)
	}

	first, err := l.Revoke(ctx, "CERT-1", "issued in error")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := l.Revoke(ctx, "CERT-1", "second attempt")
	if err != nil {
		t.Fatalf("expected idempotent revoke, but got %v", err)
	}
	if first.AlreadyRevoked || !second.AlreadyRevoked || second.Reason != "issued in error" {
		t.Errorf("unexpected receipts: %+v %+v", first, second)
	}

	got, _ = l.Lookup(ctx, "CERT-1")
	if !got.Revoked || got.RevocationReason != "issued in error" || got.RevokedAt == nil {
		t.Errorf("unexpected revoked record: %+v", got)
	}

	if _, err := l.Lookup(ctx, "NON-EXISTENT-ID"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, but got %v", err)
	}
	if _, err := l.Revoke(ctx, "NON-EXISTENT-ID", ""); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, but got %v", err)
	}

	if status := l.Status(ctx); !status.Healthy || status.Driver != "sqlite" {
		t.Errorf("unexpected status: %+v", status)
	}
}
