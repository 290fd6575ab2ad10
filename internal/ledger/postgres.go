package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"blockproof/internal/apperr"
	"blockproof/internal/model"
	"blockproof/types"
)

// dbPool is the subset of *pgxpool.Pool used by the ledger.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresLedger stores certificates in the certificates table created by
// migrations/001_certificates.sql.
type PostgresLedger struct {
	db     dbPool
	now    func() time.Time
	logger *zap.Logger
}

func NewPostgresLedger(db *pgxpool.Pool, logger *zap.Logger) *PostgresLedger {
	return newPostgresLedger(db, logger)
}

func newPostgresLedger(db dbPool, logger *zap.Logger) *PostgresLedger {
	return &PostgresLedger{
		db:     db,
		now:    time.Now,
		logger: logger,
	}
}

func (l *PostgresLedger) Store(ctx context.Context, record *model.CertificateRecord) (*model.Receipt, error) {
	if err := validateRecord(record); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO certificates (id, content_hash, issuer, recipient, course, issue_date, additional_info, recorded_at, tx_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	recordedAt := l.now().UTC()
	txRef := "pg-" + uuid.NewString()

	tag, err := l.db.Exec(ctx, query,
		record.ID, record.ContentHash, record.Issuer, record.Recipient,
		record.Course, record.IssueDate, record.AdditionalInfo, recordedAt, txRef)
	if err != nil {
		l.logger.Error("failed to store certificate", zap.Error(err), zap.String("certificate_id", record.ID))
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "failed to store certificate")
	}
	if tag.RowsAffected() == 0 {
		return nil, duplicate(record.ID)
	}

	return &model.Receipt{
		CertificateID: record.ID,
		TxRef:         txRef,
		RecordedAt:    recordedAt,
	}, nil
}

func (l *PostgresLedger) Lookup(ctx context.Context, id string) (*model.CertificateRecord, error) {
	query := `
		SELECT id, content_hash, issuer, recipient, course, issue_date, additional_info,
		       revoked, revocation_reason, revoked_at, recorded_at, tx_ref
		FROM certificates
		WHERE id = $1
	`

	var row types.CertificateRow
	err := l.db.QueryRow(ctx, query, id).Scan(
		&row.ID, &row.ContentHash, &row.Issuer, &row.Recipient, &row.Course, &row.IssueDate, &row.AdditionalInfo,
		&row.Revoked, &row.RevocationReason, &row.RevokedAt, &row.RecordedAt, &row.TxRef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(id)
		}
		l.logger.Error("failed to look up certificate", zap.Error(err), zap.String("certificate_id", id))
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "failed to look up certificate")
	}

	return rowToRecord(&row), nil
}

func (l *PostgresLedger) Revoke(ctx context.Context, id, reason string) (*model.RevocationReceipt, error) {
	query := `
		UPDATE certificates
		SET revoked = TRUE, revocation_reason = $2, revoked_at = $3
		WHERE id = $1 AND revoked = FALSE
	`

	reason = revocationReason(reason)
	revokedAt := l.now().UTC()

	tag, err := l.db.Exec(ctx, query, id, reason, revokedAt)
	if err != nil {
		l.logger.Error("failed to revoke certificate", zap.Error(err), zap.String("certificate_id", id))
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "failed to revoke certificate")
	}
	if tag.RowsAffected() == 1 {
		return &model.RevocationReceipt{
			CertificateID: id,
			Revoked:       true,
			Reason:        reason,
			RevokedAt:     revokedAt,
			TxRef:         "pg-" + uuid.NewString(),
		}, nil
	}

	// Either unknown or revoked earlier.
	existing, err := l.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return alreadyRevoked(existing)
}

func (l *PostgresLedger) Status(ctx context.Context) model.ServiceStatus {
	status := model.ServiceStatus{Driver: "postgres", Mode: model.ModeReal, Healthy: true}
	if err := l.db.Ping(ctx); err != nil {
		status.Healthy = false
		status.Error = err.Error()
	}
	return status
}

// Close is a no-op: the pool is owned by main.
func (l *PostgresLedger) Close() error {
	return nil
}
