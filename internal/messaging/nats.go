package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"blockproof/internal/model"
)

const (
	SubjectIssued   = "certificates.issued"
	SubjectRevoked  = "certificates.revoked"
	SubjectVerified = "certificates.verified"
)

type EventPublisher interface {
	PublishIssued(ctx context.Context, record *model.CertificateRecord) error
	PublishRevoked(ctx context.Context, receipt *model.RevocationReceipt) error
	PublishVerified(ctx context.Context, result *model.VerificationResult) error
	SubscribeToRevocations(ctx context.Context, handler func(*RevokedMessage)) error
	Close()
}

// natsConnection is the part of *nats.Conn used by the publisher.
type natsConnection interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	Close()
}

type natsClient struct {
	conn   natsConnection
	logger *zap.Logger
}

// Connect opens a NATS connection that reconnects indefinitely.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("blockproof"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("connected to NATS", zap.String("url", url))
	return conn, nil
}

func NewEventPublisher(conn natsConnection, logger *zap.Logger) EventPublisher {
	return &natsClient{
		conn:   conn,
		logger: logger,
	}
}

type IssuedMessage struct {
	CertificateID string    `json:"certificate_id"`
	ContentHash   string    `json:"content_hash"`
	Issuer        string    `json:"issuer"`
	Recipient     string    `json:"recipient"`
	Course        string    `json:"course"`
	IssueDate     string    `json:"issue_date"`
	TxRef         string    `json:"tx_ref,omitempty"`
	RecordedAt    time.Time `json:"recorded_at"`
}

type RevokedMessage struct {
	CertificateID string    `json:"certificate_id"`
	Reason        string    `json:"reason"`
	RevokedAt     time.Time `json:"revoked_at"`
}

type VerifiedMessage struct {
	CertificateID string        `json:"certificate_id"`
	Verdict       model.Verdict `json:"verdict"`
	TrustScore    int           `json:"trust_score"`
	HashMatch     *bool         `json:"hash_match"`
	CheckedAt     time.Time     `json:"checked_at"`
}

func (c *natsClient) PublishIssued(ctx context.Context, record *model.CertificateRecord) error {
	msg := IssuedMessage{
		CertificateID: record.ID,
		ContentHash:   record.ContentHash,
		Issuer:        record.Issuer,
		Recipient:     record.Recipient,
		Course:        record.Course,
		IssueDate:     record.IssueDate,
		TxRef:         record.TxRef,
		RecordedAt:    record.RecordedAt,
	}
	return c.publish(SubjectIssued, record.ID, msg)
}

func (c *natsClient) PublishRevoked(ctx context.Context, receipt *model.RevocationReceipt) error {
	msg := RevokedMessage{
		CertificateID: receipt.CertificateID,
		Reason:        receipt.Reason,
		RevokedAt:     receipt.RevokedAt,
	}
	return c.publish(SubjectRevoked, receipt.CertificateID, msg)
}

func (c *natsClient) PublishVerified(ctx context.Context, result *model.VerificationResult) error {
	msg := VerifiedMessage{
		CertificateID: result.CertificateID,
		Verdict:       result.Verdict,
		TrustScore:    result.TrustScore,
		HashMatch:     result.HashMatch,
		CheckedAt:     result.CheckedAt,
	}
	return c.publish(SubjectVerified, result.CertificateID, msg)
}

func (c *natsClient) publish(subject, certificateID string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal event", zap.Error(err), zap.String("subject", subject))
		return fmt.Errorf("failed to marshal %s event: %w", subject, err)
	}

	err = c.conn.Publish(subject, data)
	if err != nil {
		c.logger.Error("failed to publish event", zap.Error(err), zap.String("subject", subject), zap.String("certificate_id", certificateID))
		return fmt.Errorf("failed to publish %s event: %w", subject, err)
	}

	c.logger.Debug("event published", zap.String("subject", subject), zap.String("certificate_id", certificateID))
	return nil
}

func (c *natsClient) SubscribeToRevocations(ctx context.Context, handler func(*RevokedMessage)) error {
	_, err := c.conn.Subscribe(SubjectRevoked, func(msg *nats.Msg) {
		var revoked RevokedMessage
		if err := json.Unmarshal(msg.Data, &revoked); err != nil {
			c.logger.Error("failed to unmarshal revoked message", zap.Error(err))
			return
		}

		handler(&revoked)
		c.logger.Info("revoked message processed", zap.String("certificate_id", revoked.CertificateID))
	})

	if err != nil {
		c.logger.Error("failed to subscribe to revocations", zap.Error(err))
		return fmt.Errorf("failed to subscribe to revocations: %w", err)
	}

	c.logger.Info("subscribed to revocation messages")
	return nil
}

func (c *natsClient) Close() {
	if c.conn != nil {
		c.conn.Close()
		c.logger.Info("NATS connection closed")
	}
}
