package model

import "time"

// Verdict is the final classification of a verification request.
type Verdict string

const (
	VerdictVerified          Verdict = "VERIFIED"
	VerdictSuspicious        Verdict = "SUSPICIOUS"
	VerdictTamperingDetected Verdict = "TAMPERING_DETECTED"
	VerdictRevoked           Verdict = "REVOKED"
)

// TrustAssessment is the trust oracle's opinion of certificate content.
type TrustAssessment struct {
	IsAuthentic bool   `json:"isAuthentic"`
	Confidence  int    `json:"confidence"`
	Reason      string `json:"reason,omitempty"`
}

// VerificationResult is derived per request and never stored.
type VerificationResult struct {
	CertificateID string             `json:"certificateId"`
	Exists        bool               `json:"exists"`
	IsValid       bool               `json:"isValid"`
	HashMatch     *bool              `json:"hashMatch"`
	TrustScore    int                `json:"trustScore"`
	Verdict       Verdict            `json:"verdict"`
	Details       []string           `json:"details"`
	Oracle        *TrustAssessment   `json:"oracle,omitempty"`
	Record        *CertificateRecord `json:"record,omitempty"`
	CheckedAt     time.Time          `json:"checkedAt"`
}

const (
	ModeReal     = "real"
	ModeDegraded = "degraded"
)

// ServiceStatus describes a backing service for health reporting.
type ServiceStatus struct {
	Driver  string `json:"driver"`
	Mode    string `json:"mode"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}
