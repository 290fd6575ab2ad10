package oracle

import (
	"context"

	"go.uber.org/zap"

	"blockproof/internal/hasher"
	"blockproof/internal/model"
)

// ScoreCache stores oracle assessments by content hash.
type ScoreCache interface {
	// Get returns nil without error on a miss.
	Get(ctx context.Context, dataHash string) (*model.TrustAssessment, error)
	Put(ctx context.Context, dataHash string, assessment *model.TrustAssessment) error
}

// CachingClient remembers successful assessments so that the same content is
// scored by the oracle only once. Cache failures never fail a request.
type CachingClient struct {
	next   Client
	cache  ScoreCache
	hasher *hasher.Hasher
	logger *zap.Logger
}

func NewCachingClient(next Client, cache ScoreCache, h *hasher.Hasher, logger *zap.Logger) *CachingClient {
	return &CachingClient{
		next:   next,
		cache:  cache,
		hasher: h,
		logger: logger,
	}
}

func (c *CachingClient) Score(ctx context.Context, fields model.CertificateFields) (*model.TrustAssessment, error) {
	key := c.key(fields)

	cached, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("failed to read oracle score cache", zap.Error(err), zap.String("data_hash", key))
	} else if cached != nil {
		c.logger.Debug("oracle score served from cache", zap.String("data_hash", key))
		return cached, nil
	}

	assessment, err := c.next.Score(ctx, fields)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Put(ctx, key, assessment); err != nil {
		c.logger.Warn("failed to write oracle score cache", zap.Error(err), zap.String("data_hash", key))
	}
	return assessment, nil
}

func (c *CachingClient) Status(ctx context.Context) model.ServiceStatus {
	return c.next.Status(ctx)
}

// key hashes the claimed content without a certificate id, so identical
// content shares a cache entry.
func (c *CachingClient) key(fields model.CertificateFields) string {
	return c.hasher.Hash(hasher.Fields{
		Recipient:      fields.RecipientName,
		Issuer:         fields.IssuerName,
		Course:         fields.Course,
		IssueDate:      fields.IssueDate,
		AdditionalInfo: fields.AdditionalInfo,
	}).Hex()
}
