package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"blockproof/internal/apperr"
	"blockproof/internal/model"
	"blockproof/internal/service"
)

const (
	maxJSONBody        = 1 << 20
	maxFingerprintBody = 10 << 20
)

// StatusSource reports the health of a backing service.
type StatusSource interface {
	Status(ctx context.Context) model.ServiceStatus
}

// Info is static service metadata returned by GET /status.
type Info struct {
	Version           string   `json:"version"`
	HashAlgorithm     string   `json:"hashAlgorithm"`
	TrustThreshold    int      `json:"trustThreshold"`
	NeutralConfidence int      `json:"neutralConfidence"`
	LedgerDriver      string   `json:"ledgerDriver"`
	OracleDriver      string   `json:"oracleDriver"`
	Features          []string `json:"features"`
}

type Handler struct {
	certificates service.CertificateService
	verification service.VerificationService
	ledger       StatusSource
	oracle       StatusSource
	info         Info
	logger       *zap.Logger
}

func NewHandler(certificates service.CertificateService, verification service.VerificationService, ledger, oracle StatusSource, info Info, logger *zap.Logger) *Handler {
	return &Handler{
		certificates: certificates,
		verification: verification,
		ledger:       ledger,
		oracle:       oracle,
		info:         info,
		logger:       logger,
	}
}

type VerifyRequest struct {
	CertificateID   string                   `json:"certificateId"`
	CertificateData *model.CertificateFields `json:"certificateData,omitempty"`
}

type RevokeRequest struct {
	Reason string `json:"reason"`
}

type FingerprintResponse struct {
	Algorithm string `json:"algorithm"`
	Digest    string `json:"digest"`
	Size      int    `json:"size"`
}

type HealthResponse struct {
	Status string              `json:"status"`
	Ledger model.ServiceStatus `json:"ledger"`
	Oracle model.ServiceStatus `json:"oracle"`
}

// decodeJSON reads a bounded JSON body into dst. An empty body is accepted
// when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		RespondError(w, http.StatusRequestEntityTooLarge, "too_large", "request body too large")
		return false
	}
	RespondError(w, http.StatusBadRequest, apperr.KindValidation.String(), "invalid JSON body: "+err.Error())
	return false
}

// IssueCertificate обрабатывает POST /certificates/issue
func (h *Handler) IssueCertificate(w http.ResponseWriter, r *http.Request) {
	var req model.CertificateFields
	if !decodeJSON(w, r, &req, false) {
		return
	}

	record, err := h.certificates.Issue(r.Context(), req)
	if err != nil {
		RespondServiceError(w, r, h.logger, err)
		return
	}

	RespondJSON(w, http.StatusCreated, record)
}

// VerifyCertificate обрабатывает POST /certificates/verify
func (h *Handler) VerifyCertificate(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	result, err := h.verification.Verify(r.Context(), req.CertificateID, req.CertificateData)
	if err != nil {
		RespondServiceError(w, r, h.logger, err)
		return
	}

	RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) GetCertificate(w http.ResponseWriter, r *http.Request) {
	record, err := h.certificates.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		RespondServiceError(w, r, h.logger, err)
		return
	}

	RespondJSON(w, http.StatusOK, record)
}

func (h *Handler) RevokeCertificate(w http.ResponseWriter, r *http.Request) {
	var req RevokeRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	receipt, err := h.certificates.Revoke(r.Context(), mux.Vars(r)["id"], req.Reason)
	if err != nil {
		RespondServiceError(w, r, h.logger, err)
		return
	}

	RespondJSON(w, http.StatusOK, receipt)
}

// Fingerprint digests an uploaded file with the configured algorithm.
func (h *Handler) Fingerprint(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFingerprintBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondError(w, http.StatusRequestEntityTooLarge, "too_large", "file exceeds 10 MiB")
			return
		}
		RespondError(w, http.StatusBadRequest, apperr.KindValidation.String(), "failed to read body: "+err.Error())
		return
	}
	if len(data) == 0 {
		RespondError(w, http.StatusBadRequest, apperr.KindValidation.String(), "request body is empty")
		return
	}

	digest := h.certificates.Fingerprint(data)
	RespondJSON(w, http.StatusOK, FingerprintResponse{
		Algorithm: digest.Algorithm(),
		Digest:    digest.Hex(),
		Size:      len(data),
	})
}

// Health answers 503 only when the ledger is unhealthy. A missing or failing
// oracle reports "degraded".
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Ledger: h.ledger.Status(r.Context()),
		Oracle: h.oracle.Status(r.Context()),
	}

	status := http.StatusOK
	if !resp.Ledger.Healthy {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	} else if !resp.Oracle.Healthy || resp.Oracle.Mode == model.ModeDegraded {
		resp.Status = "degraded"
	}

	RespondJSON(w, status, resp)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, h.info)
}
