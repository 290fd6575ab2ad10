package messaging

import (
	"context"

	"blockproof/internal/model"
)

type noopPublisher struct{}

// NewNoopPublisher drops every event. Used when NATS is not configured.
func NewNoopPublisher() EventPublisher {
	return noopPublisher{}
}

func (noopPublisher) PublishIssued(context.Context, *model.CertificateRecord) error { return nil }

func (noopPublisher) PublishRevoked(context.Context, *model.RevocationReceipt) error { return nil }

func (noopPublisher) PublishVerified(context.Context, *model.VerificationResult) error { return nil }

func (noopPublisher) SubscribeToRevocations(context.Context, func(*RevokedMessage)) error {
	return nil
}

func (noopPublisher) Close() {}
