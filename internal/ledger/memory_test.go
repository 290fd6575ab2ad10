package ledger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"

	"blockproof/internal/apperr"
	"blockproof/internal/model"
)

func sampleRecord(id string) *model.CertificateRecord {
	return &model.CertificateRecord{
		ID:          id,
		ContentHash: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		Issuer:      "Analytical Engine Institute",
		Recipient:   "Ada Lovelace",
		Course:      "Computing 101",
		IssueDate:   "2024-03-15",
	}
}

func TestMemoryLedgerStore(t *testing.T) {
	tests := []struct {
		name         string
		existing     []string
		record       *model.CertificateRecord
		expectedKind apperr.Kind
		expectError  bool
	}{
		{
			name:   "successful_store",
			record: sampleRecord("CERT-1"),
		},
		{
			name:         "duplicate_id",
			existing:     []string{"CERT-1"},
			record:       sampleRecord("CERT-1"),
			expectError:  true,
			expectedKind: apperr.KindDuplicateID,
		},
		{
			name:         "empty_id",
			record:       sampleRecord("  "),
			expectError:  true,
			expectedKind: apperr.KindValidation,
		},
		{
			name:         "nil_record",
			record:       nil,
			expectError:  true,
			expectedKind: apperr.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewMemoryLedger(zaptest.NewLogger(t))
			for _, id := range tt.existing {
				if _, err := l.Store(context.Background(), sampleRecord(id)); err != nil {
					t.Fatalf("failed to seed ledger: %v", err)
				}
			}

			receipt, err := l.Store(context.Background(), tt.record)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error, but got nil")
				}
				if kind := apperr.KindOf(err); kind != tt.expectedKind {
					t.Errorf("expected kind %s, but got %s", tt.expectedKind, kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if receipt.CertificateID != tt.record.ID {
				t.Errorf("expected receipt for '%s', but got '%s'", tt.record.ID, receipt.CertificateID)
			}
			if receipt.RecordedAt.IsZero() || receipt.TxRef == "" {
				t.Errorf("expected recordedAt and txRef to be set, got %+v", receipt)
			}
		})
	}
}

func TestMemoryLedgerLookup(t *testing.T) {
	l := NewMemoryLedger(zaptest.NewLogger(t))
	if _, err := l.Store(context.Background(), sampleRecord("CERT-1")); err != nil {
		t.Fatalf("failed to store: %v", err)
	}

	record, err := l.Lookup(context.Background(), "CERT-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Recipient != "Ada Lovelace" || record.Revoked {
		t.Errorf("unexpected record: %+v", record)
	}

	record.Recipient = "Mallory"
	again, _ := l.Lookup(context.Background(), "CERT-1")
	if again.Recipient != "Ada Lovelace" {
		t.Error("expected lookups to return copies, but the stored record changed")
	}

	_, err = l.Lookup(context.Background(), "NON-EXISTENT-ID")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found error, but got %v", err)
	}
}

func TestMemoryLedgerRevokeIsIdempotent(t *testing.T) {
	l := NewMemoryLedger(zaptest.NewLogger(t))
	if _, err := l.Store(context.Background(), sampleRecord("CERT-1")); err != nil {
		t.Fatalf("failed to store: %v", err)
	}

	first, err := l.Revoke(context.Background(), "CERT-1", "issued in error")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Revoked || first.AlreadyRevoked || first.Reason != "issued in error" {
		t.Errorf("unexpected first receipt: %+v", first)
	}

	second, err := l.Revoke(context.Background(), "CERT-1", "another reason")
	if err != nil {
		t.Fatalf("expected second revoke to succeed, but got %v", err)
	}
	if !second.AlreadyRevoked || second.Reason != "issued in error" || !second.RevokedAt.Equal(first.RevokedAt) {
		t.Errorf("expected second revoke to report the original revocation, got %+v", second)
	}

	record, _ := l.Lookup(context.Background(), "CERT-1")
	if !record.Revoked || record.RevocationReason != "issued in error" {
		t.Errorf("unexpected record after revocation: %+v", record)
	}
}

func TestMemoryLedgerRevoke(t *testing.T) {
	l := NewMemoryLedger(zaptest.NewLogger(t))
	l.Store(context.Background(), sampleRecord("CERT-1"))

	receipt, err := l.Revoke(context.Background(), "CERT-1", "   ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.Reason != DefaultRevocationReason {
		t.Errorf("expected default reason, but got '%s'", receipt.Reason)
	}

	_, err = l.Revoke(context.Background(), "CERT-404", "x")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found error, but got %v", err)
	}
}

func TestMemoryLedgerCanceledContext(t *testing.T) {
	l := NewMemoryLedger(zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := l.Lookup(ctx, "CERT-1"); err == nil {
		t.Error("expected canceled context to fail lookup")
	}
}

func TestMemoryLedgerConcurrentAccess(t *testing.T) {
	l := NewMemoryLedger(zaptest.NewLogger(t))
	l.Store(context.Background(), sampleRecord("CERT-shared"))

	var wg sync.WaitGroup
	var stored, duplicates, firstRevocations atomic.Int32

	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			_, err := l.Store(context.Background(), sampleRecord(fmt.Sprintf("CERT-%d", i%10)))
			switch {
			case err == nil:
				stored.Add(1)
			case apperr.Is(err, apperr.KindDuplicateID):
				duplicates.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			receipt, err := l.Revoke(context.Background(), "CERT-shared", "race")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if !receipt.AlreadyRevoked {
				firstRevocations.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := l.Lookup(context.Background(), "CERT-shared"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if stored.Load() != 10 || duplicates.Load() != 40 {
		t.Errorf("expected 10 stores and 40 duplicates, but got %d and %d", stored.Load(), duplicates.Load())
	}
	if firstRevocations.Load() != 1 {
		t.Errorf("expected exactly one effective revocation, but got %d", firstRevocations.Load())
	}
}
