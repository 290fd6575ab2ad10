package types

import "time"

// OracleScoreCache представляет запись в таблице oracle_score_cache
type OracleScoreCache struct {
	DataHash    string    `json:"data_hash" db:"data_hash"`
	IsAuthentic bool      `json:"is_authentic" db:"is_authentic"`
	Confidence  int       `json:"confidence" db:"confidence"`
	Reason      string    `json:"reason" db:"reason"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
