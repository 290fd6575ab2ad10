package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"blockproof/internal/apperr"
	"blockproof/internal/model"
	"blockproof/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS certificates (
	id                TEXT PRIMARY KEY,
	content_hash      TEXT NOT NULL,
	issuer            TEXT NOT NULL,
	recipient         TEXT NOT NULL,
	course            TEXT NOT NULL,
	issue_date        TEXT NOT NULL,
	additional_info   TEXT NOT NULL DEFAULT '',
	revoked           BOOLEAN NOT NULL DEFAULT 0,
	revocation_reason TEXT,
	revoked_at        TIMESTAMP,
	recorded_at       TIMESTAMP NOT NULL,
	tx_ref            TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_certificates_content_hash ON certificates(content_hash);
`

// SQLiteLedger is a single-node durable ledger for demos and small deployments.
type SQLiteLedger struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewSQLiteLedger opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteLedger(path string, logger *zap.Logger) (*SQLiteLedger, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// single writer serializes stores and revocations
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("sqlite ledger opened", zap.String("path", path))
	return &SQLiteLedger{db: db, now: time.Now, logger: logger}, nil
}

func (l *SQLiteLedger) Store(ctx context.Context, record *model.CertificateRecord) (*model.Receipt, error) {
	if err := validateRecord(record); err != nil {
		return nil, err
	}

	query := `
		INSERT OR IGNORE INTO certificates (id, content_hash, issuer, recipient, course, issue_date, additional_info, recorded_at, tx_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	recordedAt := l.now().UTC()
	txRef := "sqlite-" + uuid.NewString()

	result, err := l.db.ExecContext(ctx, query,
		record.ID, record.ContentHash, record.Issuer, record.Recipient,
		record.Course, record.IssueDate, record.AdditionalInfo, recordedAt, txRef)
	if err != nil {
		l.logger.Error("failed to store certificate", zap.Error(err), zap.String("certificate_id", record.ID))
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "failed to store certificate")
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "failed to get rows affected")
	}
	if n == 0 {
		return nil, duplicate(record.ID)
	}

	return &model.Receipt{
		CertificateID: record.ID,
		TxRef:         txRef,
		RecordedAt:    recordedAt,
	}, nil
}

func (l *SQLiteLedger) Lookup(ctx context.Context, id string) (*model.CertificateRecord, error) {
	query := `
		SELECT id, content_hash, issuer, recipient, course, issue_date, additional_info,
		       revoked, revocation_reason, revoked_at, recorded_at, tx_ref
		FROM certificates
		WHERE id = ?
	`

	var row types.CertificateRow
	var reason sql.NullString
	var revokedAt sql.NullTime

	err := l.db.QueryRowContext(ctx, query, id).Scan(
		&row.ID, &row.ContentHash, &row.Issuer, &row.Recipient, &row.Course, &row.IssueDate, &row.AdditionalInfo,
		&row.Revoked, &reason, &revokedAt, &row.RecordedAt, &row.TxRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		l.logger.Error("failed to look up certificate", zap.Error(err), zap.String("certificate_id", id))
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "failed to look up certificate")
	}

	if reason.Valid {
		row.RevocationReason = &reason.String
	}
	if revokedAt.Valid {
		row.RevokedAt = &revokedAt.Time
	}
	return rowToRecord(&row), nil
}

func (l *SQLiteLedger) Revoke(ctx context.Context, id, reason string) (*model.RevocationReceipt, error) {
	query := `
		UPDATE certificates
		SET revoked = 1, revocation_reason = ?, revoked_at = ?
		WHERE id = ? AND revoked = 0
	`

	reason = revocationReason(reason)
	revokedAt := l.now().UTC()

	result, err := l.db.ExecContext(ctx, query, reason, revokedAt, id)
	if err != nil {
		l.logger.Error("failed to revoke certificate", zap.Error(err), zap.String("certificate_id", id))
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "failed to revoke certificate")
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "failed to get rows affected")
	}
	if n == 1 {
		return &model.RevocationReceipt{
			CertificateID: id,
			Revoked:       true,
			Reason:        reason,
			RevokedAt:     revokedAt,
			TxRef:         "sqlite-" + uuid.NewString(),
		}, nil
	}

	existing, err := l.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return alreadyRevoked(existing)
}

func (l *SQLiteLedger) Status(ctx context.Context) model.ServiceStatus {
	status := model.ServiceStatus{Driver: "sqlite", Mode: model.ModeReal, Healthy: true}
	if err := l.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Error = err.Error()
	}
	return status
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
