package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"blockproof/internal/model"
	"blockproof/types"
)

// dbPool is the subset of *pgxpool.Pool used by the repositories.
type dbPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ScoreCacheRepository interface {
	Get(ctx context.Context, dataHash string) (*model.TrustAssessment, error)
	Put(ctx context.Context, dataHash string, assessment *model.TrustAssessment) error
}

type scoreCacheRepository struct {
	db     dbPool
	logger *zap.Logger
}

func NewScoreCacheRepository(db *pgxpool.Pool, logger *zap.Logger) ScoreCacheRepository {
	return newScoreCacheRepository(db, logger)
}

func newScoreCacheRepository(db dbPool, logger *zap.Logger) *scoreCacheRepository {
	return &scoreCacheRepository{
		db:     db,
		logger: logger,
	}
}

// Get получает оценку оракула из кэша по хэшу содержимого
func (r *scoreCacheRepository) Get(ctx context.Context, dataHash string) (*model.TrustAssessment, error) {
	query := `
		SELECT data_hash, is_authentic, confidence, reason, created_at
		FROM oracle_score_cache
		WHERE data_hash = $1
	`

	var row types.OracleScoreCache
	err := r.db.QueryRow(ctx, query, dataHash).
		Scan(&row.DataHash, &row.IsAuthentic, &row.Confidence, &row.Reason, &row.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("failed to get cached score", zap.String("data_hash", dataHash), zap.Error(err))
		return nil, fmt.Errorf("failed to get cached score for hash %s: %w", dataHash, err)
	}

	r.logger.Debug("score retrieved from cache", zap.String("data_hash", dataHash))
	return &model.TrustAssessment{
		IsAuthentic: row.IsAuthentic,
		Confidence:  row.Confidence,
		Reason:      row.Reason,
	}, nil
}

// Put сохраняет оценку оракула, перезаписывая существующую
func (r *scoreCacheRepository) Put(ctx context.Context, dataHash string, assessment *model.TrustAssessment) error {
	if assessment == nil {
		return fmt.Errorf("assessment is required")
	}

	query := `
		INSERT INTO oracle_score_cache (data_hash, is_authentic, confidence, reason, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (data_hash) DO UPDATE
		SET is_authentic = EXCLUDED.is_authentic,
		    confidence = EXCLUDED.confidence,
		    reason = EXCLUDED.reason,
		    created_at = EXCLUDED.created_at
	`

	_, err := r.db.Exec(ctx, query, dataHash, assessment.IsAuthentic, assessment.Confidence, assessment.Reason)
	if err != nil {
		r.logger.Error("failed to cache score", zap.String("data_hash", dataHash), zap.Error(err))
		return fmt.Errorf("failed to cache score for hash %s: %w", dataHash, err)
	}

	r.logger.Debug("score cached", zap.String("data_hash", dataHash))
	return nil
}
