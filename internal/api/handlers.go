package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/arcsign/compliance-relayer/internal/apperr"
	"github.com/arcsign/compliance-relayer/internal/audit"
	"github.com/arcsign/compliance-relayer/internal/domain"
	"github.com/arcsign/compliance-relayer/internal/webhook"
)

// submitTransferRequest is the wire shape accepted by POST /transfer-requests.
type submitTransferRequest struct {
	FromAddress     string                 `json:"from_address"`
	ToAddress       string                 `json:"to_address"`
	TransferDetails domain.TransferDetails `json:"transfer_details"`
	TokenMint       *string                `json:"token_mint"`
	ClientSignature string                 `json:"client_signature"`
	Nonce           string                 `json:"nonce"`
}

// handleSubmitTransfer validates, verifies the client signature, checks
// idempotency, screens for compliance, and persists the request.
func (s *Server) handleSubmitTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload submitTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apperr.Wrap(apperr.KindDeserialize, "invalid request body", err), 0)
		return
	}

	req := &domain.TransferRequest{
		FromAddress:      payload.FromAddress,
		ToAddress:        payload.ToAddress,
		TransferDetails:  payload.TransferDetails,
		TokenMint:        payload.TokenMint,
		ClientSignature:  payload.ClientSignature,
		Nonce:            payload.Nonce,
		ComplianceStatus: domain.CompliancePending,
		BlockchainStatus: domain.BlockchainPending,
	}

	if err := domain.ValidateSubmission(req); err != nil {
		writeError(w, err, 0)
		return
	}
	if err := domain.VerifyClientSignature(req); err != nil {
		writeError(w, err, 0)
		return
	}

	if existing, err := s.store.GetByNonce(ctx, req.FromAddress, req.Nonce); err != nil {
		writeError(w, err, 0)
		return
	} else if existing != nil {
		writeJSON(w, http.StatusOK, existing)
		return
	}

	outcome, err := s.risk.Screen(ctx, req.FromAddress, true)
	if err != nil {
		writeError(w, err, 0)
		return
	}
	req.ComplianceStatus = outcome.ComplianceStatus

	if outcome.ComplianceStatus == domain.ComplianceApproved {
		s.submitInline(ctx, req)
	}

	if err := s.store.CreateTransferRequest(ctx, req); err != nil {
		writeError(w, err, 0)
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// submitInline attempts one synchronous submission for an Approved row
// before it is persisted. On success req ends up Submitted with a
// signature; on failure it falls back to PendingSubmission so the
// background worker picks it up on its next cycle.
func (s *Server) submitInline(ctx context.Context, req *domain.TransferRequest) {
	start := time.Now()
	signature, err := s.adapter.Submit(ctx, req)
	s.metrics.RecordSubmission(time.Since(start), err == nil)

	if err == nil {
		req.BlockchainStatus = domain.BlockchainSubmitted
		req.BlockchainSignature = &signature
		return
	}

	req.BlockchainStatus = domain.BlockchainPendingSubmission
	reason := err.Error()
	req.BlockchainLastError = &reason
	nextRetry := time.Now().Add(time.Second)
	req.BlockchainNextRetry = &nextRetry
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := s.cfg.DefaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, apperr.New(apperr.KindValidation, "limit must be an integer"), 0)
			return
		}
		limit = n
	}
	if limit < 1 {
		limit = 1
	}
	if limit > s.cfg.MaxPageLimit {
		limit = s.cfg.MaxPageLimit
	}
	cursor := r.URL.Query().Get("cursor")

	page, err := s.store.ListTransferRequests(ctx, limit, cursor)
	if err != nil {
		writeError(w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	row, err := s.store.GetTransferRequest(r.Context(), id)
	if err != nil {
		writeError(w, err, 0)
		return
	}
	if row == nil {
		writeError(w, apperr.New(apperr.KindNotFound, "transfer request not found"), 0)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// handleRetryTransfer implements the Open Question resolution recorded in
// SPEC_FULL.md: a Failed row has its retry count and last error cleared and
// is re-queued; a PendingSubmission row just has its next-retry time set to
// now so the worker picks it up on the next cycle. Any other state is ineligible.
func (s *Server) handleRetryTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	row, err := s.store.GetTransferRequest(ctx, id)
	if err != nil {
		writeError(w, err, 0)
		return
	}
	if row == nil {
		writeError(w, apperr.New(apperr.KindNotFound, "transfer request not found"), 0)
		return
	}

	switch row.BlockchainStatus {
	case domain.BlockchainFailed:
		if err := s.store.ResetRetryCount(ctx, id); err != nil {
			writeError(w, err, 0)
			return
		}
		if err := s.store.MarkPendingSubmission(ctx, id, "", time.Now()); err != nil {
			writeError(w, err, 0)
			return
		}
	case domain.BlockchainPendingSubmission:
		if err := s.store.MarkPendingSubmission(ctx, id, "", time.Now()); err != nil {
			writeError(w, err, 0)
			return
		}
	default:
		writeError(w, apperr.New(apperr.KindValidation, "transfer request is not eligible for retry"), 0)
		return
	}

	row, err = s.store.GetTransferRequest(ctx, id)
	if err != nil {
		writeError(w, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type riskCheckRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleRiskCheck(w http.ResponseWriter, r *http.Request) {
	var payload riskCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apperr.Wrap(apperr.KindDeserialize, "invalid request body", err), 0)
		return
	}
	if payload.Address == "" {
		writeError(w, apperr.New(apperr.KindValidation, "address is required"), 0)
		return
	}

	start := time.Now()
	outcome, err := s.risk.Screen(r.Context(), payload.Address, false)
	if err != nil {
		writeError(w, err, 0)
		return
	}
	tier := "analyzed"
	if outcome.Blocked {
		tier = "blocked"
	}
	s.metrics.RecordRiskCheck(time.Since(start), tier)

	writeJSON(w, http.StatusOK, outcome)
}

type addBlocklistRequest struct {
	Address string `json:"address"`
	Reason  string `json:"reason"`
}

type blocklistResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleAddBlocklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload addBlocklistRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apperr.Wrap(apperr.KindDeserialize, "invalid request body", err), 0)
		return
	}
	if payload.Address == "" {
		writeError(w, apperr.New(apperr.KindValidation, "address is required"), 0)
		return
	}
	if payload.Reason == "" {
		writeError(w, apperr.New(apperr.KindValidation, "reason is required"), 0)
		return
	}

	now := time.Now()
	entry := &domain.BlocklistEntry{Address: payload.Address, Reason: payload.Reason, CreatedAt: now, UpdatedAt: now}
	err := s.risk.AddToDenylist(ctx, entry)

	s.logAudit(audit.Entry{
		Action:  "BLOCKLIST_ADD",
		Address: payload.Address,
		Reason:  payload.Reason,
		Status:  statusFor(err),
		Error:   errString(err),
	})
	if err != nil {
		writeError(w, err, 0)
		return
	}

	writeJSON(w, http.StatusOK, blocklistResponse{Success: true, Message: "address added to blocklist"})
}

func (s *Server) handleRemoveBlocklist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address := mux.Vars(r)["address"]

	removed, err := s.risk.RemoveFromDenylist(ctx, address)

	s.logAudit(audit.Entry{
		Action:  "BLOCKLIST_REMOVE",
		Address: address,
		Status:  statusFor(err),
		Error:   errString(err),
	})
	if err != nil {
		writeError(w, err, 0)
		return
	}
	if !removed {
		writeError(w, apperr.New(apperr.KindNotFound, "address not found in blocklist"), 0)
		return
	}

	writeJSON(w, http.StatusOK, blocklistResponse{Success: true, Message: "address removed from blocklist"})
}

func (s *Server) handleListBlocklist(w http.ResponseWriter, r *http.Request) {
	entries := s.risk.ListDenylist()
	writeJSON(w, http.StatusOK, struct {
		Count   int                     `json:"count"`
		Entries []domain.BlocklistEntry `json:"entries"`
	}{Count: len(entries), Entries: entries})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]

	if err := s.webhook.Authenticate(provider, r.Header.Get("Authorization")); err != nil {
		writeError(w, err, 0)
		return
	}

	var events []webhook.Event
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeError(w, apperr.Wrap(apperr.KindDeserialize, "invalid webhook payload", err), 0)
		return
	}

	if err := s.webhook.Process(r.Context(), provider, events); err != nil {
		writeError(w, err, 0)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type healthResponse struct {
	Status     string    `json:"status"`
	Database   string    `json:"database"`
	Blockchain string    `json:"blockchain"`
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version"`
}

// evaluateHealth classifies the database and chain adapter independently,
// then combines them with a worst-of-two rule: any unhealthy component
// makes the whole system unhealthy, otherwise any non-healthy component
// makes it degraded.
func (s *Server) evaluateHealth(r *http.Request) healthResponse {
	dbStatus := "healthy"
	if err := s.store.HealthCheck(r.Context()); err != nil {
		dbStatus = "unhealthy"
	}
	chainStatus := "healthy"
	if err := s.adapter.HealthCheck(r.Context()); err != nil {
		chainStatus = "unhealthy"
	}

	overall := "healthy"
	if dbStatus == "unhealthy" || chainStatus == "unhealthy" {
		overall = "unhealthy"
	} else if dbStatus != "healthy" || chainStatus != "healthy" {
		overall = "degraded"
	}

	return healthResponse{
		Status:     overall,
		Database:   dbStatus,
		Blockchain: chainStatus,
		Timestamp:  time.Now(),
		Version:    version,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.evaluateHealth(r))
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	health := s.evaluateHealth(r)
	if health.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(s.metrics.Export()))
}

func (s *Server) logAudit(entry audit.Entry) {
	entry.ID = newRequestID()
	entry.Timestamp = time.Now()
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(entry); err != nil {
		s.log.Error("failed to write audit log entry", zap.Error(err))
	}
}

func statusFor(err error) string {
	if err != nil {
		return "FAILURE"
	}
	return "SUCCESS"
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
