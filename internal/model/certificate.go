package model

import "time"

// CertificateFields is the descriptive content of a certificate as supplied
// by an issuer at issuance or by a verifier as claimed data.
type CertificateFields struct {
	RecipientName  string `json:"recipientName"`
	IssuerName     string `json:"issuerName"`
	Course         string `json:"course"`
	IssueDate      string `json:"issueDate,omitempty"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`
}

// CertificateRecord is a certificate as held by the ledger.
type CertificateRecord struct {
	ID               string     `json:"id"`
	ContentHash      string     `json:"contentHash"`
	Issuer           string     `json:"issuer"`
	Recipient        string     `json:"recipient"`
	Course           string     `json:"course"`
	IssueDate        string     `json:"issueDate"`
	AdditionalInfo   string     `json:"additionalInfo,omitempty"`
	Revoked          bool       `json:"revoked"`
	RevocationReason string     `json:"revocationReason,omitempty"`
	RevokedAt        *time.Time `json:"revokedAt,omitempty"`
	RecordedAt       time.Time  `json:"recordedAt"`
	TxRef            string     `json:"txRef,omitempty"`
}

// Fields returns the descriptive content of the record.
func (r *CertificateRecord) Fields() CertificateFields {
	return CertificateFields{
		RecipientName:  r.Recipient,
		IssuerName:     r.Issuer,
		Course:         r.Course,
		IssueDate:      r.IssueDate,
		AdditionalInfo: r.AdditionalInfo,
	}
}

// Clone returns a deep copy of the record.
func (r *CertificateRecord) Clone() *CertificateRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.RevokedAt != nil {
		t := *r.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}

// Receipt acknowledges a ledger write.
type Receipt struct {
	CertificateID string    `json:"certificateId"`
	TxRef         string    `json:"txRef,omitempty"`
	RecordedAt    time.Time `json:"recordedAt"`
}

// RevocationReceipt acknowledges a revocation. AlreadyRevoked is set when
// the certificate had been revoked before this call; Reason and RevokedAt
// then describe the original revocation.
type RevocationReceipt struct {
	CertificateID  string    `json:"certificateId"`
	Revoked        bool      `json:"revoked"`
	Reason         string    `json:"reason"`
	RevokedAt      time.Time `json:"revokedAt"`
	AlreadyRevoked bool      `json:"alreadyRevoked"`
	TxRef          string    `json:"txRef,omitempty"`
}
