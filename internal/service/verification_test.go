package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"blockproof/internal/apperr"
	"blockproof/internal/hasher"
	"blockproof/internal/ledger"
	"blockproof/internal/model"
	"blockproof/internal/oracle"
)

func defaultOptions() VerifyOptions {
	return VerifyOptions{
		TrustThreshold:    60,
		NeutralConfidence: 70,
		LedgerTimeout:     time.Second,
		OracleTimeout:     time.Second,
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		evidence evidence
		expected model.Verdict
	}{
		{name: "rule1_not_found", evidence: evidence{}, expected: model.VerdictTamperingDetected},
		{name: "rule1_not_found_ignores_oracle", evidence: evidence{claimed: true, hashMatch: true, oracleAvailable: true, confidence: 100}, expected: model.VerdictTamperingDetected},
		{name: "rule2_revoked", evidence: evidence{found: true, revoked: true}, expected: model.VerdictRevoked},
		{name: "rule2_revoked_ignores_match", evidence: evidence{found: true, revoked: true, claimed: true, hashMatch: true, oracleAvailable: true, confidence: 95}, expected: model.VerdictRevoked},
		{name: "rule3_mismatch_low_trust", evidence: evidence{found: true, claimed: true, oracleAvailable: true, confidence: 59}, expected: model.VerdictTamperingDetected},
		{name: "rule4_mismatch_high_trust", evidence: evidence{found: true, claimed: true, oracleAvailable: true, confidence: 60}, expected: model.VerdictSuspicious},
		{name: "rule4_mismatch_no_oracle", evidence: evidence{found: true, claimed: true, confidence: 70}, expected: model.VerdictSuspicious},
		{name: "rule4_mismatch_no_oracle_low_neutral", evidence: evidence{found: true, claimed: true, confidence: 10}, expected: model.VerdictSuspicious},
		{name: "rule5_existence_only", evidence: evidence{found: true}, expected: model.VerdictVerified},
		{name: "rule6_match_high_trust", evidence: evidence{found: true, claimed: true, hashMatch: true, oracleAvailable: true, confidence: 60}, expected: model.VerdictVerified},
		{name: "rule6_match_no_oracle", evidence: evidence{found: true, claimed: true, hashMatch: true, confidence: 70}, expected: model.VerdictVerified},
		{name: "rule7_match_low_trust", evidence: evidence{found: true, claimed: true, hashMatch: true, oracleAvailable: true, confidence: 30}, expected: model.VerdictSuspicious},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decide(tt.evidence, 60); got != tt.expected {
				t.Errorf("expected verdict %s, but got %s", tt.expected, got)
			}
		})
	}
}

func TestTrustScore(t *testing.T) {
	tests := []struct {
		name     string
		evidence evidence
		expected int
	}{
		{name: "not_found", evidence: evidence{}, expected: 0},
		{name: "revoked", evidence: evidence{found: true, revoked: true}, expected: 0},
		{name: "existence_only", evidence: evidence{found: true}, expected: 100},
		{name: "oracle_confidence", evidence: evidence{found: true, claimed: true, hashMatch: true, oracleAvailable: true, confidence: 42}, expected: 42},
		{name: "match_without_oracle", evidence: evidence{found: true, claimed: true, hashMatch: true, confidence: 70}, expected: 100},
		{name: "mismatch_without_oracle", evidence: evidence{found: true, claimed: true, confidence: 70}, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := trustScore(tt.evidence); got != tt.expected {
				t.Errorf("expected trust score %d, but got %d", tt.expected, got)
			}
		})
	}
}

// fixture issues one certificate on an in-memory ledger.
type fixture struct {
	certificates CertificateService
	ledger       *ledger.MemoryLedger
	record       *model.CertificateRecord
	request      model.CertificateFields
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := ledger.NewMemoryLedger(zaptest.NewLogger(t))
	certificates := NewCertificateService(l, newTestHasher(t), &mockPublisher{}, time.Second, zaptest.NewLogger(t))

	request := sampleRequest()
	record, err := certificates.Issue(context.Background(), request)
	if err != nil {
		t.Fatalf("failed to issue certificate: %v", err)
	}
	return &fixture{certificates: certificates, ledger: l, record: record, request: request}
}

func (f *fixture) verifier(t *testing.T, o oracle.Client, opts VerifyOptions) (VerificationService, *mockPublisher) {
	events := &mockPublisher{}
	return NewVerificationService(f.ledger, o, newTestHasher(t), events, opts, zaptest.NewLogger(t)), events
}

func hasDetail(result *model.VerificationResult, fragment string) bool {
	for _, d := range result.Details {
		if strings.Contains(d, fragment) {
			return true
		}
	}
	return false
}

func TestVerifyRoundTrip(t *testing.T) {
	f := newFixture(t)
	svc, events := f.verifier(t, confidentOracle(85), defaultOptions())

	result, err := svc.Verify(context.Background(), f.record.ID, &f.request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Verdict != model.VerdictVerified {
		t.Errorf("expected VERIFIED, but got %s (%v)", result.Verdict, result.Details)
	}
	if result.HashMatch == nil || !*result.HashMatch {
		t.Errorf("expected hashMatch true, got %v", result.HashMatch)
	}
	if result.TrustScore != 85 || !result.Exists || !result.IsValid {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Record == nil || result.Record.ID != f.record.ID {
		t.Errorf("expected record snapshot, got %+v", result.Record)
	}
	if len(events.verified) != 1 {
		t.Errorf("expected one verified event, got %d", len(events.verified))
	}
}

func TestVerifyCanonicalEquivalentData(t *testing.T) {
	f := newFixture(t)
	svc, _ := f.verifier(t, confidentOracle(85), defaultOptions())

	claimed := f.request
	claimed.RecipientName = "  " + claimed.RecipientName + "  "
	claimed.IssueDate = "2024-03-15T00:00:00Z"

	result, err := svc.Verify(context.Background(), f.record.ID, &claimed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.HashMatch == nil || !*result.HashMatch || result.Verdict != model.VerdictVerified {
		t.Errorf("expected canonical-equivalent data to verify, got %+v", result)
	}
}

func TestVerifyTamperDetection(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(f *model.CertificateFields)
		confidence int
		expected   model.Verdict
	}{
		{name: "recipient_changed_high_trust", mutate: func(f *model.CertificateFields) { f.RecipientName = "Ada Lovelacf" }, confidence: 80, expected: model.VerdictSuspicious},
		{name: "course_changed_low_trust", mutate: func(f *model.CertificateFields) { f.Course = "Computing 102" }, confidence: 20, expected: model.VerdictTamperingDetected},
		{name: "issuer_changed_threshold", mutate: func(f *model.CertificateFields) { f.IssuerName += "!" }, confidence: 60, expected: model.VerdictSuspicious},
		{name: "date_changed", mutate: func(f *model.CertificateFields) { f.IssueDate = "2024-03-16" }, confidence: 59, expected: model.VerdictTamperingDetected},
		{name: "extra_info_changed", mutate: func(f *model.CertificateFields) { f.AdditionalInfo = "" }, confidence: 99, expected: model.VerdictSuspicious},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			svc, _ := f.verifier(t, confidentOracle(tt.confidence), defaultOptions())

			claimed := f.request
			tt.mutate(&claimed)

			result, err := svc.Verify(context.Background(), f.record.ID, &claimed)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.HashMatch == nil || *result.HashMatch {
				t.Errorf("expected hashMatch false, got %v", result.HashMatch)
			}
			if result.Verdict == model.VerdictVerified {
				t.Fatalf("tampered data must never verify")
			}
			if result.Verdict != tt.expected {
				t.Errorf("expected verdict %s, but got %s", tt.expected, result.Verdict)
			}
			if result.TrustScore != tt.confidence {
				t.Errorf("expected trust score %d, but got %d", tt.confidence, result.TrustScore)
			}
		})
	}
}

func TestVerifyUnknownID(t *testing.T) {
	oracles := map[string]*mockOracle{
		"healthy_oracle": confidentOracle(100),
		"broken_oracle": {scoreFunc: func(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error) {
			return nil, apperr.New(apperr.KindUnavailable, "down")
		}},
	}

	for name, o := range oracles {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			svc, _ := f.verifier(t, o, defaultOptions())

			for _, claimed := range []*model.CertificateFields{nil, &f.request} {
				result, err := svc.Verify(context.Background(), "NON-EXISTENT-ID", claimed)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if result.Verdict != model.VerdictTamperingDetected || result.TrustScore != 0 {
					t.Errorf("unexpected result: %+v", result)
				}
				if result.HashMatch != nil || result.Exists || result.IsValid {
					t.Errorf("expected no hash comparison for unknown id, got %+v", result)
				}
			}
			if n := o.calls.Load(); n != 0 {
				t.Errorf("oracle must not be consulted for unknown ids, got %d calls", n)
			}
		})
	}
}

func TestVerifyRevoked(t *testing.T) {
	f := newFixture(t)
	if _, err := f.certificates.Revoke(context.Background(), f.record.ID, "fraud"); err != nil {
		t.Fatalf("failed to revoke: %v", err)
	}
	if _, err := f.certificates.Revoke(context.Background(), f.record.ID, "fraud again"); err != nil {
		t.Fatalf("second revoke failed: %v", err)
	}

	o := confidentOracle(100)
	svc, _ := f.verifier(t, o, defaultOptions())

	tampered := f.request
	tampered.Course = "Something else"

	for _, claimed := range []*model.CertificateFields{nil, &f.request, &tampered} {
		result, err := svc.Verify(context.Background(), f.record.ID, claimed)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Verdict != model.VerdictRevoked || result.TrustScore != 0 {
			t.Errorf("expected REVOKED with score 0, got %+v", result)
		}
		if !result.Exists || result.IsValid {
			t.Errorf("expected exists && !isValid, got %+v", result)
		}
		if !hasDetail(result, "fraud") {
			t.Errorf("expected revocation reason in details, got %v", result.Details)
		}
	}
}

func TestVerifyOracleDegradation(t *testing.T) {
	tests := []struct {
		name           string
		scoreFunc      func(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error)
		oracleTimeout  time.Duration
		expectedDetail string
	}{
		{
			name: "oracle_unavailable",
			scoreFunc: func(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error) {
				return nil, apperr.New(apperr.KindUnavailable, "connection refused")
			},
			expectedDetail: "oracle unavailable",
		},
		{
			name: "oracle_timeout",
			scoreFunc: func(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error) {
				<-ctx.Done()
				return nil, apperr.Wrap(apperr.KindUnavailable, ctx.Err(), "oracle request failed")
			},
			oracleTimeout:  20 * time.Millisecond,
			expectedDetail: "oracle unavailable",
		},
		{
			name: "oracle_malformed",
			scoreFunc: func(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error) {
				return nil, apperr.New(apperr.KindParse, "failed to decode oracle response")
			},
			expectedDetail: "oracle response malformed",
		},
		{
			name: "oracle_untyped_error",
			scoreFunc: func(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error) {
				return nil, errors.New("unexpected")
			},
			expectedDetail: "oracle unavailable",
		},
		{
			name: "oracle_empty_reply",
			scoreFunc: func(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error) {
				return nil, nil
			},
			expectedDetail: "oracle response malformed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			opts := defaultOptions()
			if tt.oracleTimeout > 0 {
				opts.OracleTimeout = tt.oracleTimeout
			}
			svc, _ := f.verifier(t, &mockOracle{scoreFunc: tt.scoreFunc}, opts)

			result, err := svc.Verify(context.Background(), f.record.ID, &f.request)
			if err != nil {
				t.Fatalf("expected degraded verification, but got error %v", err)
			}
			if result.Verdict != model.VerdictVerified || result.TrustScore != 100 {
				t.Errorf("expected VERIFIED with score 100, got %s %d", result.Verdict, result.TrustScore)
			}
			if !hasDetail(result, tt.expectedDetail) {
				t.Errorf("expected detail %q, got %v", tt.expectedDetail, result.Details)
			}
			if result.Oracle == nil || result.Oracle.Confidence != 70 || !result.Oracle.IsAuthentic {
				t.Errorf("expected neutral assessment, got %+v", result.Oracle)
			}

			tampered := f.request
			tampered.RecipientName = "Charles Babbage"
			result, err = svc.Verify(context.Background(), f.record.ID, &tampered)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Verdict != model.VerdictSuspicious || result.TrustScore != 0 {
				t.Errorf("expected SUSPICIOUS with score 0 for mismatch without oracle, got %s %d", result.Verdict, result.TrustScore)
			}
		})
	}
}

func TestVerifyExistenceOnly(t *testing.T) {
	f := newFixture(t)
	o := confidentOracle(10)
	svc, _ := f.verifier(t, o, defaultOptions())

	result, err := svc.Verify(context.Background(), f.record.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verdict != model.VerdictVerified || result.TrustScore != 100 || result.HashMatch != nil {
		t.Errorf("unexpected result: %+v", result)
	}
	if o.calls.Load() != 0 {
		t.Errorf("oracle must not be consulted without claimed data")
	}
}

func TestVerifyLowTrustOnMatchingContent(t *testing.T) {
	f := newFixture(t)
	svc, _ := f.verifier(t, &mockOracle{
		scoreFunc: func(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error) {
			return &model.TrustAssessment{IsAuthentic: false, Confidence: 25, Reason: "issue date precedes course launch"}, nil
		},
	}, defaultOptions())

	result, err := svc.Verify(context.Background(), f.record.ID, &f.request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verdict != model.VerdictSuspicious || result.TrustScore != 25 {
		t.Errorf("expected SUSPICIOUS with score 25, got %s %d", result.Verdict, result.TrustScore)
	}
	if !hasDetail(result, "not authentic") || !hasDetail(result, "issue date precedes course launch") {
		t.Errorf("expected oracle notes in details, got %v", result.Details)
	}
}

func TestVerifyOmittedIssueDate(t *testing.T) {
	l := ledger.NewMemoryLedger(zaptest.NewLogger(t))
	certificates := NewCertificateService(l, newTestHasher(t), &mockPublisher{}, time.Second, zaptest.NewLogger(t))

	request := model.CertificateFields{
		RecipientName: "Ada Lovelace",
		IssuerName:    "Analytical Engine Institute",
		Course:        "Computing 101",
	}
	record, err := certificates.Issue(context.Background(), request)
	if err != nil {
		t.Fatalf("failed to issue certificate: %v", err)
	}

	tests := []struct {
		name            string
		issueDate       string
		expectedVerdict model.Verdict
		expectedMatch   bool
	}{
		{name: "same_request", issueDate: "", expectedVerdict: model.VerdictVerified, expectedMatch: true},
		{name: "blank_date", issueDate: "   ", expectedVerdict: model.VerdictVerified, expectedMatch: true},
		{name: "recorded_date", issueDate: record.IssueDate, expectedVerdict: model.VerdictVerified, expectedMatch: true},
		{name: "other_date", issueDate: "1999-01-01", expectedVerdict: model.VerdictSuspicious, expectedMatch: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var scored model.CertificateFields
			o := &mockOracle{
				scoreFunc: func(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error) {
					scored = fields
					return &model.TrustAssessment{IsAuthentic: true, Confidence: 85}, nil
				},
			}
			svc := NewVerificationService(l, o, newTestHasher(t), &mockPublisher{}, defaultOptions(), zaptest.NewLogger(t))

			claimed := request
			claimed.IssueDate = tt.issueDate
			result, err := svc.Verify(context.Background(), record.ID, &claimed)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Verdict != tt.expectedVerdict {
				t.Errorf("expected %s, but got %s (%v)", tt.expectedVerdict, result.Verdict, result.Details)
			}
			if result.HashMatch == nil || *result.HashMatch != tt.expectedMatch {
				t.Errorf("expected hashMatch %t, got %v", tt.expectedMatch, result.HashMatch)
			}
			if tt.expectedMatch && scored.IssueDate != record.IssueDate {
				t.Errorf("expected oracle to see recorded issue date %s, got %q", record.IssueDate, scored.IssueDate)
			}
		})
	}
}

func TestVerifyAfterAlgorithmChange(t *testing.T) {
	l := ledger.NewMemoryLedger(zaptest.NewLogger(t))
	sha3Hasher, err := hasher.New(hasher.AlgorithmSHA3256)
	if err != nil {
		t.Fatalf("failed to create hasher: %v", err)
	}
	certificates := NewCertificateService(l, sha3Hasher, &mockPublisher{}, time.Second, zaptest.NewLogger(t))

	request := sampleRequest()
	record, err := certificates.Issue(context.Background(), request)
	if err != nil {
		t.Fatalf("failed to issue certificate: %v", err)
	}
	if !strings.HasPrefix(record.ContentHash, hasher.AlgorithmSHA3256+":") {
		t.Fatalf("expected tagged content hash, got %s", record.ContentHash)
	}

	legacy := &model.CertificateRecord{
		ID:             "CERT-LEGACY",
		Issuer:         request.IssuerName,
		Recipient:      request.RecipientName,
		Course:         request.Course,
		IssueDate:      request.IssueDate,
		AdditionalInfo: request.AdditionalInfo,
	}
	legacy.ContentHash = newTestHasher(t).Hash(fieldsOf(legacy.ID, legacy.Fields())).Hex()
	if _, err := l.Store(context.Background(), legacy); err != nil {
		t.Fatalf("failed to store legacy record: %v", err)
	}

	svc := NewVerificationService(l, confidentOracle(85), newTestHasher(t), &mockPublisher{}, defaultOptions(), zaptest.NewLogger(t))

	tests := []struct {
		name         string
		id           string
		recordedWith string
	}{
		{name: "tagged_other_algorithm", id: record.ID, recordedWith: hasher.AlgorithmSHA3256},
		{name: "untagged_hash", id: legacy.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.Verify(context.Background(), tt.id, &request)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Verdict != model.VerdictVerified || result.HashMatch == nil || !*result.HashMatch {
				t.Errorf("expected VERIFIED with matching hash, got %s (%v)", result.Verdict, result.Details)
			}
			if tt.recordedWith != "" && !hasDetail(result, "recorded with "+tt.recordedWith) {
				t.Errorf("expected algorithm note in details, got %v", result.Details)
			}
		})
	}
}

func TestVerifyErrors(t *testing.T) {
	tests := []struct {
		name         string
		id           string
		lookupError  error
		expectedKind apperr.Kind
	}{
		{name: "empty_id", id: "  ", expectedKind: apperr.KindValidation},
		{name: "ledger_unavailable", id: "CERT-1", lookupError: apperr.New(apperr.KindUnavailable, "connection refused"), expectedKind: apperr.KindUnavailable},
		{name: "ledger_timeout", id: "CERT-1", lookupError: context.DeadlineExceeded, expectedKind: apperr.KindUnavailable},
		{name: "ledger_parse_error", id: "CERT-1", lookupError: apperr.New(apperr.KindParse, "bad payload"), expectedKind: apperr.KindParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &mockLedger{
				lookupFunc: func(ctx context.Context, id string) (*model.CertificateRecord, error) {
					return nil, tt.lookupError
				},
			}
			svc := NewVerificationService(l, confidentOracle(90), newTestHasher(t), &mockPublisher{}, defaultOptions(), zaptest.NewLogger(t))

			result, err := svc.Verify(context.Background(), tt.id, nil)
			if err == nil {
				t.Fatalf("expected error, but got result %+v", result)
			}
			if kind := apperr.KindOf(err); kind != tt.expectedKind {
				t.Errorf("expected kind %s, but got %s (%v)", tt.expectedKind, kind, err)
			}
		})
	}
}

func TestVerifyLedgerDeadline(t *testing.T) {
	l := &mockLedger{
		lookupFunc: func(ctx context.Context, id string) (*model.CertificateRecord, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	opts := defaultOptions()
	opts.LedgerTimeout = 20 * time.Millisecond
	svc := NewVerificationService(l, confidentOracle(90), newTestHasher(t), &mockPublisher{}, opts, zaptest.NewLogger(t))

	if _, err := svc.Verify(context.Background(), "CERT-1", nil); !apperr.Is(err, apperr.KindUnavailable) {
		t.Errorf("expected unavailable error after ledger timeout, but got %v", err)
	}
}

func TestVerifyConcurrent(t *testing.T) {
	f := newFixture(t)
	svc, _ := f.verifier(t, confidentOracle(90), defaultOptions())

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.Verify(context.Background(), f.record.ID, &f.request)
			if err != nil {
				errs <- err
				return
			}
			if result.Verdict != model.VerdictVerified {
				errs <- errors.New("unexpected verdict " + string(result.Verdict))
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
