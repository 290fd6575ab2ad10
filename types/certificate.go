package types

import "time"

// CertificateRow представляет запись в таблице certificates
type CertificateRow struct {
	ID               string     `json:"id" db:"id"`
	ContentHash      string     `json:"content_hash" db:"content_hash"`
	Issuer           string     `json:"issuer" db:"issuer"`
	Recipient        string     `json:"recipient" db:"recipient"`
	Course           string     `json:"course" db:"course"`
	IssueDate        string     `json:"issue_date" db:"issue_date"`
	AdditionalInfo   string     `json:"additional_info" db:"additional_info"`
	Revoked          bool       `json:"revoked" db:"revoked"`
	RevocationReason *string    `json:"revocation_reason,omitempty" db:"revocation_reason"` // NULL пока сертификат не отозван
	RevokedAt        *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	RecordedAt       time.Time  `json:"recorded_at" db:"recorded_at"`
	TxRef            string     `json:"tx_ref" db:"tx_ref"`
}
