// Package oracle talks to the external trust oracle that scores certificate
// content for plausibility. The oracle is advisory: callers are expected to
// degrade when Score fails rather than abort.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"blockproof/internal/apperr"
	"blockproof/internal/config"
	"blockproof/internal/model"
)

type Client interface {
	// Score returns the oracle's assessment. Failures are apperr.KindUnavailable
	// for transport problems and apperr.KindParse for malformed replies.
	Score(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error)
	Status(ctx context.Context) model.ServiceStatus
}

// ScoreRequest is the body sent to the oracle over every transport.
type ScoreRequest struct {
	Certificate model.CertificateFields `json:"certificate"`
}

// scoreResponse uses pointers so that missing fields can be told apart from
// zero values.
type scoreResponse struct {
	IsAuthentic *bool  `json:"isAuthentic"`
	Confidence  *int   `json:"confidence"`
	Reason      string `json:"reason"`
}

// New builds the client selected by cfg.Oracle.Driver. conn is only used by
// the nats driver.
func New(cfg *config.Config, conn *nats.Conn, logger *zap.Logger) (Client, error) {
	switch cfg.Oracle.Driver {
	case config.OracleNone:
		return NewNoneClient(), nil
	case config.OracleHTTP:
		return NewHTTPClient(cfg.Oracle.Endpoint, cfg.Oracle.APIKey, cfg.Oracle.Timeout, logger), nil
	case config.OracleNATS:
		if conn == nil {
			return nil, fmt.Errorf("nats oracle requires a NATS connection")
		}
		return NewNATSClient(conn, cfg.Oracle.Subject, logger), nil
	default:
		return nil, fmt.Errorf("unknown oracle driver %q", cfg.Oracle.Driver)
	}
}

// decodeAssessment parses and validates an oracle reply.
func decodeAssessment(data []byte) (*model.TrustAssessment, error) {
	var resp scoreResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, apperr.Wrap(apperr.KindParse, err, "failed to decode oracle response")
	}
	if resp.Confidence == nil {
		return nil, apperr.New(apperr.KindParse, "oracle response has no confidence")
	}
	if *resp.Confidence < 0 || *resp.Confidence > 100 {
		return nil, apperr.New(apperr.KindParse, "oracle confidence %d is out of range", *resp.Confidence)
	}
	if resp.IsAuthentic == nil {
		return nil, apperr.New(apperr.KindParse, "oracle response has no isAuthentic")
	}

	return &model.TrustAssessment{
		IsAuthentic: *resp.IsAuthentic,
		Confidence:  *resp.Confidence,
		Reason:      resp.Reason,
	}, nil
}
