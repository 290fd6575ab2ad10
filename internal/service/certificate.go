package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"blockproof/internal/apperr"
	"blockproof/internal/hasher"
	"blockproof/internal/ledger"
	"blockproof/internal/messaging"
	"blockproof/internal/model"
)

// maxIssueAttempts bounds id regeneration after a ledger id collision.
const maxIssueAttempts = 3

type CertificateService interface {
	Issue(ctx context.Context, req model.CertificateFields) (*model.CertificateRecord, error)
	Get(ctx context.Context, id string) (*model.CertificateRecord, error)
	Revoke(ctx context.Context, id, reason string) (*model.RevocationReceipt, error)
	// Fingerprint digests raw uploaded content such as a certificate PDF.
	Fingerprint(data []byte) hasher.Digest
}

type certificateService struct {
	ledger        ledger.Client
	hasher        *hasher.Hasher
	events        messaging.EventPublisher
	ledgerTimeout time.Duration
	now           func() time.Time
	newID         func(now time.Time) (string, error)
	logger        *zap.Logger
}

func NewCertificateService(l ledger.Client, h *hasher.Hasher, events messaging.EventPublisher, ledgerTimeout time.Duration, logger *zap.Logger) CertificateService {
	return &certificateService{
		ledger:        l,
		hasher:        h,
		events:        events,
		ledgerTimeout: ledgerTimeout,
		now:           time.Now,
		newID:         NewCertificateID,
		logger:        logger,
	}
}

// NewCertificateID returns "CERT-<unix millis>-<8 uppercase hex digits>".
func NewCertificateID(now time.Time) (string, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("failed to generate id suffix: %w", err)
	}
	return fmt.Sprintf("CERT-%d-%X", now.UnixMilli(), suffix), nil
}

func (s *certificateService) Issue(ctx context.Context, req model.CertificateFields) (*model.CertificateRecord, error) {
	recipient := strings.TrimSpace(req.RecipientName)
	issuer := strings.TrimSpace(req.IssuerName)
	course := strings.TrimSpace(req.Course)

	if recipient == "" {
		return nil, apperr.New(apperr.KindValidation, "recipientName cannot be empty")
	}
	if issuer == "" {
		return nil, apperr.New(apperr.KindValidation, "issuerName cannot be empty")
	}
	if course == "" {
		return nil, apperr.New(apperr.KindValidation, "course cannot be empty")
	}

	issueDate := strings.TrimSpace(req.IssueDate)
	if issueDate == "" {
		issueDate = s.now().UTC().Format("2006-01-02")
	} else {
		normalized, err := hasher.NormalizeDate(issueDate)
		if err != nil {
			return nil, apperr.New(apperr.KindValidation, "issueDate %q is not a valid date", req.IssueDate)
		}
		issueDate = normalized
	}

	var lastErr error
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		id, err := s.newID(s.now())
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, err, "failed to generate certificate id")
		}

		record := &model.CertificateRecord{
			ID:             id,
			Issuer:         issuer,
			Recipient:      recipient,
			Course:         course,
			IssueDate:      issueDate,
			AdditionalInfo: strings.TrimSpace(req.AdditionalInfo),
		}
		record.ContentHash = s.hasher.Hash(fieldsOf(id, record.Fields())).String()

		receipt, err := s.store(ctx, record)
		if apperr.Is(err, apperr.KindDuplicateID) {
			s.logger.Warn("certificate id collision, regenerating",
				zap.String("certificate_id", id),
				zap.Int("attempt", attempt))
			lastErr = err
			continue
		}
		if err != nil {
			s.logger.Error("failed to store certificate", zap.Error(err), zap.String("certificate_id", id))
			return nil, err
		}

		record.RecordedAt = receipt.RecordedAt
		record.TxRef = receipt.TxRef

		if err := s.events.PublishIssued(ctx, record); err != nil {
			s.logger.Warn("failed to publish issued event", zap.Error(err), zap.String("certificate_id", id))
		}

		s.logger.Info("certificate issued",
			zap.String("certificate_id", id),
			zap.String("content_hash", record.ContentHash),
			zap.String("tx_ref", record.TxRef))
		return record, nil
	}

	return nil, lastErr
}

func (s *certificateService) store(ctx context.Context, record *model.CertificateRecord) (*model.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()

	receipt, err := s.ledger.Store(ctx, record)
	if err != nil {
		return nil, ledgerError(err, "failed to store certificate")
	}
	return receipt, nil
}

func (s *certificateService) Get(ctx context.Context, id string) (*model.CertificateRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.New(apperr.KindValidation, "certificate id cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()

	record, err := s.ledger.Lookup(ctx, id)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			s.logger.Error("failed to get certificate from ledger", zap.Error(err), zap.String("certificate_id", id))
		}
		return nil, ledgerError(err, "failed to get certificate")
	}
	return record, nil
}

func (s *certificateService) Revoke(ctx context.Context, id, reason string) (*model.RevocationReceipt, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.New(apperr.KindValidation, "certificate id cannot be empty")
	}

	ledgerCtx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()

	receipt, err := s.ledger.Revoke(ledgerCtx, id, reason)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			s.logger.Error("failed to revoke certificate", zap.Error(err), zap.String("certificate_id", id))
		}
		return nil, ledgerError(err, "failed to revoke certificate")
	}

	if receipt.AlreadyRevoked {
		s.logger.Info("certificate already revoked", zap.String("certificate_id", id))
		return receipt, nil
	}

	if err := s.events.PublishRevoked(ctx, receipt); err != nil {
		s.logger.Warn("failed to publish revoked event", zap.Error(err), zap.String("certificate_id", id))
	}

	s.logger.Info("certificate revoked", zap.String("certificate_id", id), zap.String("reason", receipt.Reason))
	return receipt, nil
}

func (s *certificateService) Fingerprint(data []byte) hasher.Digest {
	return s.hasher.HashBytes(data)
}

// fieldsOf maps certificate content to the hashed field set.
func fieldsOf(id string, f model.CertificateFields) hasher.Fields {
	return hasher.Fields{
		ID:             id,
		Recipient:      f.RecipientName,
		Issuer:         f.IssuerName,
		Course:         f.Course,
		IssueDate:      f.IssueDate,
		AdditionalInfo: f.AdditionalInfo,
	}
}

// ledgerError keeps classified ledger errors and reports anything else,
// including deadlines, as the ledger being unavailable.
func ledgerError(err error, msg string) error {
	var e *apperr.Error
	if errors.As(err, &e) {
		return err
	}
	return apperr.Wrap(apperr.KindUnavailable, err, msg)
}
