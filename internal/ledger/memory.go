package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blockproof/internal/model"
)

// MemoryLedger keeps records in process memory. It is not durable, so its
// status always reports degraded mode.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]*model.CertificateRecord
	now     func() time.Time
	logger  *zap.Logger
}

func NewMemoryLedger(logger *zap.Logger) *MemoryLedger {
	return &MemoryLedger{
		records: make(map[string]*model.CertificateRecord),
		now:     time.Now,
		logger:  logger,
	}
}

func (l *MemoryLedger) Store(ctx context.Context, record *model.CertificateRecord) (*model.Receipt, error) {
	if err := validateRecord(record); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.records[record.ID]; ok {
		return nil, duplicate(record.ID)
	}

	stored := record.Clone()
	stored.Revoked = false
	stored.RevocationReason = ""
	stored.RevokedAt = nil
	stored.RecordedAt = l.now().UTC()
	stored.TxRef = "mem-" + uuid.NewString()
	l.records[stored.ID] = stored

	l.logger.Debug("certificate stored in memory ledger", zap.String("certificate_id", stored.ID))
	return &model.Receipt{
		CertificateID: stored.ID,
		TxRef:         stored.TxRef,
		RecordedAt:    stored.RecordedAt,
	}, nil
}

func (l *MemoryLedger) Lookup(ctx context.Context, id string) (*model.CertificateRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	record, ok := l.records[id]
	if !ok {
		return nil, notFound(id)
	}
	return record.Clone(), nil
}

func (l *MemoryLedger) Revoke(ctx context.Context, id, reason string) (*model.RevocationReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[id]
	if !ok {
		return nil, notFound(id)
	}

	if record.Revoked {
		return &model.RevocationReceipt{
			CertificateID:  id,
			Revoked:        true,
			Reason:         record.RevocationReason,
			RevokedAt:      *record.RevokedAt,
			AlreadyRevoked: true,
		}, nil
	}

	revokedAt := l.now().UTC()
	record.Revoked = true
	record.RevocationReason = revocationReason(reason)
	record.RevokedAt = &revokedAt

	l.logger.Debug("certificate revoked in memory ledger", zap.String("certificate_id", id))
	return &model.RevocationReceipt{
		CertificateID: id,
		Revoked:       true,
		Reason:        record.RevocationReason,
		RevokedAt:     revokedAt,
		TxRef:         "mem-" + uuid.NewString(),
	}, nil
}

func (l *MemoryLedger) Status(ctx context.Context) model.ServiceStatus {
	return model.ServiceStatus{
		Driver:  "memory",
		Mode:    model.ModeDegraded,
		Healthy: true,
	}
}

func (l *MemoryLedger) Close() error {
	return nil
}
