// Package ledger provides clients for the authoritative certificate store.
//
// Every driver guarantees the same contract: a certificate id can be stored
// once, records are never deleted, and revocation happens at most once.
// Revoking an already revoked certificate succeeds and reports the original
// revocation.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"blockproof/internal/apperr"
	"blockproof/internal/config"
	"blockproof/internal/model"
)

// DefaultRevocationReason is recorded when a revocation carries no reason.
const DefaultRevocationReason = "no reason given"

type Client interface {
	// Store persists a new record. It fails with apperr.KindDuplicateID when
	// the id is already taken.
	Store(ctx context.Context, record *model.CertificateRecord) (*model.Receipt, error)
	// Lookup returns the record or an apperr.KindNotFound error.
	Lookup(ctx context.Context, id string) (*model.CertificateRecord, error)
	// Revoke marks the record revoked. Repeated calls are no-op successes.
	Revoke(ctx context.Context, id, reason string) (*model.RevocationReceipt, error)
	Status(ctx context.Context) model.ServiceStatus
	Close() error
}

// New builds the client selected by cfg.Ledger.Driver. pool is only used by
// the postgres driver and may be nil otherwise.
func New(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *zap.Logger) (Client, error) {
	switch cfg.Ledger.Driver {
	case config.LedgerMemory:
		return NewMemoryLedger(logger), nil
	case config.LedgerPostgres:
		if pool == nil {
			return nil, fmt.Errorf("postgres ledger requires a database pool")
		}
		return NewPostgresLedger(pool, logger), nil
	case config.LedgerSQLite:
		return NewSQLiteLedger(cfg.Ledger.SQLitePath, logger)
	case config.LedgerFabric:
		return NewFabricLedger(ctx, cfg.Fabric, logger)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", cfg.Ledger.Driver)
	}
}

func validateRecord(record *model.CertificateRecord) error {
	if record == nil {
		return apperr.New(apperr.KindValidation, "record is required")
	}
	if strings.TrimSpace(record.ID) == "" {
		return apperr.New(apperr.KindValidation, "certificate id cannot be empty")
	}
	if record.ContentHash == "" {
		return apperr.New(apperr.KindValidation, "content hash cannot be empty")
	}
	return nil
}

func revocationReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return DefaultRevocationReason
	}
	return reason
}

func notFound(id string) error {
	return apperr.New(apperr.KindNotFound, "certificate not found: %s", id)
}

func duplicate(id string) error {
	return apperr.New(apperr.KindDuplicateID, "certificate id already exists: %s", id)
}
