package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"blockproof/internal/apperr"
	"blockproof/internal/hasher"
	"blockproof/internal/ledger"
	"blockproof/internal/messaging"
	"blockproof/internal/model"
	"blockproof/internal/oracle"
)

type VerificationService interface {
	// Verify checks a certificate against the ledger and, when claimed data
	// is given, against its content hash and the trust oracle. A certificate
	// missing from the ledger is a TAMPERING_DETECTED verdict, not an error.
	Verify(ctx context.Context, id string, claimed *model.CertificateFields) (*model.VerificationResult, error)
}

// VerifyOptions tunes the verification engine.
type VerifyOptions struct {
	// TrustThreshold is the oracle confidence below which content is distrusted.
	TrustThreshold int
	// NeutralConfidence stands in for the oracle when it cannot be reached.
	NeutralConfidence int
	LedgerTimeout     time.Duration
	OracleTimeout     time.Duration
}

type verificationService struct {
	ledger ledger.Client
	oracle oracle.Client
	hasher *hasher.Hasher
	events messaging.EventPublisher
	opts   VerifyOptions
	now    func() time.Time
	logger *zap.Logger
}

func NewVerificationService(l ledger.Client, o oracle.Client, h *hasher.Hasher, events messaging.EventPublisher, opts VerifyOptions, logger *zap.Logger) VerificationService {
	return &verificationService{
		ledger: l,
		oracle: o,
		hasher: h,
		events: events,
		opts:   opts,
		now:    time.Now,
		logger: logger,
	}
}

// evidence is everything the verdict depends on.
type evidence struct {
	found           bool
	revoked         bool
	claimed         bool
	hashMatch       bool
	oracleAvailable bool
	confidence      int
}

// decide applies the verdict rules in priority order; the first match wins.
func decide(e evidence, threshold int) model.Verdict {
	lowTrust := e.oracleAvailable && e.confidence < threshold

	switch {
	case !e.found:
		return model.VerdictTamperingDetected
	case e.revoked:
		return model.VerdictRevoked
	case e.claimed && !e.hashMatch && lowTrust:
		return model.VerdictTamperingDetected
	case e.claimed && !e.hashMatch:
		return model.VerdictSuspicious
	case !e.claimed:
		return model.VerdictVerified
	case !lowTrust:
		return model.VerdictVerified
	default:
		return model.VerdictSuspicious
	}
}

// trustScore is the oracle confidence when the oracle answered, otherwise
// it follows the hash comparison alone.
func trustScore(e evidence) int {
	switch {
	case !e.found || e.revoked:
		return 0
	case !e.claimed:
		return 100
	case e.oracleAvailable:
		return e.confidence
	case e.hashMatch:
		return 100
	default:
		return 0
	}
}

func (s *verificationService) Verify(ctx context.Context, id string, claimed *model.CertificateFields) (*model.VerificationResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.New(apperr.KindValidation, "certificateId cannot be empty")
	}

	result := &model.VerificationResult{
		CertificateID: id,
		Details:       []string{},
		CheckedAt:     s.now().UTC(),
	}

	record, err := s.lookup(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		e := evidence{}
		result.Verdict = decide(e, s.opts.TrustThreshold)
		result.TrustScore = trustScore(e)
		result.Details = append(result.Details, "certificate not found on ledger")
		s.finish(ctx, result)
		return result, nil
	}
	if err != nil {
		s.logger.Error("ledger lookup failed", zap.Error(err), zap.String("certificate_id", id))
		return nil, err
	}

	result.Exists = true
	result.IsValid = !record.Revoked
	result.Record = record

	e := evidence{found: true, revoked: record.Revoked, claimed: claimed != nil}

	if record.Revoked {
		result.Details = append(result.Details, fmt.Sprintf("certificate revoked: %s", record.RevocationReason))
		result.Verdict = decide(e, s.opts.TrustThreshold)
		result.TrustScore = trustScore(e)
		s.finish(ctx, result)
		return result, nil
	}

	if claimed == nil {
		result.Details = append(result.Details, "no certificate data supplied, existence check only")
		result.Verdict = decide(e, s.opts.TrustThreshold)
		result.TrustScore = trustScore(e)
		s.finish(ctx, result)
		return result, nil
	}

	// An omitted issue date is not a claim; it defaulted at issuance.
	fields := *claimed
	if strings.TrimSpace(fields.IssueDate) == "" {
		fields.IssueDate = record.IssueDate
	}

	h, err := s.hasherFor(record.ContentHash)
	if err != nil {
		s.logger.Error("unusable content hash", zap.Error(err), zap.String("certificate_id", id))
		return nil, err
	}
	if h != s.hasher {
		result.Details = append(result.Details, fmt.Sprintf("content hash recorded with %s", h.Algorithm()))
	}

	digest := h.Hash(fieldsOf(record.ID, fields))
	e.hashMatch = digest.EqualHex(record.ContentHash)
	match := e.hashMatch
	result.HashMatch = &match
	if e.hashMatch {
		result.Details = append(result.Details, "content hash matches ledger record")
	} else {
		result.Details = append(result.Details, "content hash does not match ledger record")
	}

	assessment, note := s.score(ctx, id, fields)
	if assessment != nil {
		e.oracleAvailable = true
		e.confidence = assessment.Confidence
		result.Oracle = assessment
		if !assessment.IsAuthentic {
			result.Details = append(result.Details, "oracle flagged content as not authentic")
		}
		if assessment.Reason != "" {
			result.Details = append(result.Details, "oracle: "+assessment.Reason)
		}
	} else {
		e.confidence = s.opts.NeutralConfidence
		result.Oracle = &model.TrustAssessment{
			IsAuthentic: true,
			Confidence:  s.opts.NeutralConfidence,
			Reason:      note,
		}
		result.Details = append(result.Details, note)
	}

	result.Verdict = decide(e, s.opts.TrustThreshold)
	result.TrustScore = trustScore(e)
	s.finish(ctx, result)
	return result, nil
}

// hasherFor returns a hasher for the algorithm a stored hash was tagged
// with. Untagged hashes use the configured algorithm.
func (s *verificationService) hasherFor(stored string) (*hasher.Hasher, error) {
	alg, _ := hasher.SplitStored(stored)
	if alg == "" || alg == s.hasher.Algorithm() {
		return s.hasher, nil
	}
	h, err := hasher.New(alg)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to create %s hasher", alg)
	}
	return h, nil
}

func (s *verificationService) lookup(ctx context.Context, id string) (*model.CertificateRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.LedgerTimeout)
	defer cancel()

	record, err := s.ledger.Lookup(ctx, id)
	if err != nil {
		return nil, ledgerError(err, "failed to look up certificate")
	}
	return record, nil
}

// score asks the oracle for an assessment. On failure it returns nil and the
// diagnostic note to record instead.
func (s *verificationService) score(ctx context.Context, id string, fields model.CertificateFields) (*model.TrustAssessment, string) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.OracleTimeout)
	defer cancel()

	assessment, err := s.oracle.Score(ctx, fields)
	if err == nil && assessment != nil {
		return assessment, ""
	}
	if err == nil {
		err = apperr.New(apperr.KindParse, "oracle returned no assessment")
	}

	s.logger.Warn("oracle degraded", zap.Error(err), zap.String("certificate_id", id))
	if apperr.Is(err, apperr.KindParse) {
		return nil, "oracle response malformed, neutral confidence applied"
	}
	return nil, "oracle unavailable, neutral confidence applied"
}

func (s *verificationService) finish(ctx context.Context, result *model.VerificationResult) {
	if err := s.events.PublishVerified(ctx, result); err != nil {
		s.logger.Warn("failed to publish verified event", zap.Error(err), zap.String("certificate_id", result.CertificateID))
	}

	s.logger.Info("certificate verified",
		zap.String("certificate_id", result.CertificateID),
		zap.String("verdict", string(result.Verdict)),
		zap.Int("trust_score", result.TrustScore))
}
