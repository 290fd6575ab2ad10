package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"blockproof/internal/hasher"
	"blockproof/internal/messaging"
	"blockproof/internal/model"
)

// Mock для ledger.Client
type mockLedger struct {
	storeFunc  func(ctx context.Context, record *model.CertificateRecord) (*model.Receipt, error)
	lookupFunc func(ctx context.Context, id string) (*model.CertificateRecord, error)
	revokeFunc func(ctx context.Context, id, reason string) (*model.RevocationReceipt, error)
}

func (m *mockLedger) Store(ctx context.Context, record *model.CertificateRecord) (*model.Receipt, error) {
	if m.storeFunc != nil {
		return m.storeFunc(ctx, record)
	}
	return &model.Receipt{CertificateID: record.ID, TxRef: "mock-tx"}, nil
}

func (m *mockLedger) Lookup(ctx context.Context, id string) (*model.CertificateRecord, error) {
	if m.lookupFunc != nil {
		return m.lookupFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockLedger) Revoke(ctx context.Context, id, reason string) (*model.RevocationReceipt, error) {
	if m.revokeFunc != nil {
		return m.revokeFunc(ctx, id, reason)
	}
	return &model.RevocationReceipt{CertificateID: id, Revoked: true, Reason: reason}, nil
}

func (m *mockLedger) Status(ctx context.Context) model.ServiceStatus {
	return model.ServiceStatus{Driver: "mock", Mode: model.ModeReal, Healthy: true}
}

func (m *mockLedger) Close() error {
	return nil
}

// Mock для oracle.Client
type mockOracle struct {
	scoreFunc func(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error)
	calls     atomic.Int32
}

func (m *mockOracle) Score(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error) {
	m.calls.Add(1)
	if m.scoreFunc != nil {
		return m.scoreFunc(ctx, fields)
	}
	return &model.TrustAssessment{IsAuthentic: true, Confidence: 90}, nil
}

func (m *mockOracle) Status(ctx context.Context) model.ServiceStatus {
	return model.ServiceStatus{Driver: "mock", Mode: model.ModeReal, Healthy: true}
}

func confidentOracle(confidence int) *mockOracle {
	return &mockOracle{
		scoreFunc: func(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error) {
			return &model.TrustAssessment{IsAuthentic: confidence >= 60, Confidence: confidence}, nil
		},
	}
}

// Mock для EventPublisher
type mockPublisher struct {
	mu       sync.Mutex
	issued   []*model.CertificateRecord
	revoked  []*model.RevocationReceipt
	verified []*model.VerificationResult
	err      error
}

func (m *mockPublisher) PublishIssued(ctx context.Context, record *model.CertificateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued = append(m.issued, record)
	return m.err
}

func (m *mockPublisher) PublishRevoked(ctx context.Context, receipt *model.RevocationReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked = append(m.revoked, receipt)
	return m.err
}

func (m *mockPublisher) PublishVerified(ctx context.Context, result *model.VerificationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verified = append(m.verified, result)
	return m.err
}

func (m *mockPublisher) SubscribeToRevocations(ctx context.Context, handler func(*messaging.RevokedMessage)) error {
	return nil
}

func (m *mockPublisher) Close() {}

func newTestHasher(t *testing.T) *hasher.Hasher {
	t.Helper()
	h, err := hasher.New(hasher.AlgorithmSHA256)
	if err != nil {
		t.Fatalf("failed to create hasher: %v", err)
	}
	return h
}

func sampleRequest() model.CertificateFields {
	return model.CertificateFields{
		RecipientName:  "Ada Lovelace",
		IssuerName:     "Analytical Engine Institute",
		Course:         "Computing 101",
		IssueDate:      "2024-03-15",
		AdditionalInfo: "With distinction",
	}
}
