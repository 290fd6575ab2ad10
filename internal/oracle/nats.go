package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"blockproof/internal/apperr"
	"blockproof/internal/model"
)

// requester is the part of *nats.Conn used by the oracle.
type requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
	IsConnected() bool
}

type natsClient struct {
	conn    requester
	subject string
	logger  *zap.Logger
}

// NewNATSClient scores certificates with a request/reply round trip on subject.
func NewNATSClient(conn requester, subject string, logger *zap.Logger) Client {
	return &natsClient{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}
}

func (c *natsClient) Score(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error) {
	data, err := json.Marshal(ScoreRequest{Certificate: fields})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	msg, err := c.conn.RequestWithContext(ctx, c.subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			c.logger.Warn("no oracle responders", zap.String("subject", c.subject))
		} else {
			c.logger.Warn("oracle request failed", zap.Error(err), zap.String("subject", c.subject))
		}
		return nil, apperr.Wrap(apperr.KindUnavailable, err, "oracle request failed")
	}

	assessment, err := decodeAssessment(msg.Data)
	if err != nil {
		c.logger.Warn("malformed oracle response", zap.Error(err), zap.String("subject", c.subject))
		return nil, err
	}
	return assessment, nil
}

func (c *natsClient) Status(ctx context.Context) model.ServiceStatus {
	status := model.ServiceStatus{Driver: "nats", Mode: model.ModeReal, Healthy: true}
	if !c.conn.IsConnected() {
		status.Healthy = false
		status.Error = "NATS connection is down"
	}
	return status
}
