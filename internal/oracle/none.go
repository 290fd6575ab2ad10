package oracle

import (
	"context"

	"blockproof/internal/apperr"
	"blockproof/internal/model"
)

type noneClient struct{}

// NewNoneClient returns an oracle that is never available, so every
// verification runs in degraded mode.
func NewNoneClient() Client {
	return noneClient{}
}

func (noneClient) Score(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error) {
	return nil, apperr.New(apperr.KindUnavailable, "no trust oracle configured")
}

func (noneClient) Status(ctx context.Context) model.ServiceStatus {
	return model.ServiceStatus{Driver: "none", Mode: model.ModeDegraded, Healthy: true}
}
