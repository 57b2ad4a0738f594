package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/rkonrad/go-concord/internal/domain"
	"github.com/rkonrad/go-concord/internal/ports"
)

type createReviewRequest struct {
	// ID is optional; a UUID is generated when omitted.
	ID string `json:"id" validate:"omitempty,max=128"`
}

type putOrderingRequest struct {
	Participant string   `json:"participant"`
	Items       []string `json:"items"`
	Source      string   `json:"source"`
}

type mergeRequest struct {
	Items []string `json:"items"`
	// Weight overrides the profile's default blend when present.
	Weight *float64 `json:"weight" validate:"omitempty,gte=0,lte=1"`
}

type diffRequest struct {
	A []string `json:"a"`
	B []string `json:"b"`
}

type reconcileRequest struct {
	ReviewIDs []string `json:"review_ids" validate:"required,min=1"`
}

type consensusResponse struct {
	ReviewID  string           `json:"review_id"`
	Consensus domain.Consensus `json:"consensus"`
	Metadata  domain.Metadata  `json:"metadata"`
}

type reconcileResult struct {
	ReviewID  string           `json:"review_id"`
	Consensus domain.Consensus `json:"consensus,omitempty"`
	Metadata  *domain.Metadata `json:"metadata,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest
	if r.ContentLength != 0 {
		if !s.readJSON(w, r, &req) {
			return
		}
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	if err := s.reconciler.CreateReview(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	ids, err := s.reconciler.ListReviews(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"reviews": ids})
}

func (s *Server) handlePutOrdering(w http.ResponseWriter, r *http.Request) {
	var req putOrderingRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	ordering := domain.Ordering{
		Participant: req.Participant,
		Items:       req.Items,
		Source:      req.Source,
	}
	if err := s.reconciler.Submit(r.Context(), mux.Vars(r)["id"], ordering); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteOrdering(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.reconciler.RemoveOrdering(r.Context(), vars["id"], vars["participant"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConsensus(w http.ResponseWriter, r *http.Request) {
	limit := s.config.ConflictLimit
	if raw := r.URL.Query().Get("conflict_limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeErrorPayload(w, http.StatusBadRequest, "invalid_input",
				"conflict_limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	reviewID := mux.Vars(r)["id"]
	consensus, metadata, err := s.reconciler.Consensus(r.Context(), reviewID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// The engine returns the full conflict list; truncation is a
	// presentation concern. A zero limit returns everything.
	if limit > 0 && len(metadata.Conflicts) > limit {
		metadata.Conflicts = metadata.Conflicts[:limit]
	}
	writeJSON(w, http.StatusOK, consensusResponse{
		ReviewID:  reviewID,
		Consensus: consensus,
		Metadata:  metadata,
	})
}

func (s *Server) handleValidation(w http.ResponseWriter, r *http.Request) {
	result, err := s.reconciler.Validate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	reviewID := mux.Vars(r)["id"]
	merged, err := s.reconciler.Merge(r.Context(), reviewID, req.Items, req.Weight)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"review_id": reviewID,
		"merged":    merged,
	})
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	var req diffRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	diff, renames, err := s.reconciler.Diff(r.Context(), req.A, req.B)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if renames == nil {
		renames = []domain.RenamePair{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"diff":    diff,
		"renames": renames,
	})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if !s.readJSON(w, r, &req) {
		return
	}

	results, err := s.reconciler.ReconcileAll(r.Context(), req.ReviewIDs)
	if err != nil {
		s.writeError(w, err)
		return
	}

	payload := make([]reconcileResult, 0, len(results))
	for _, res := range results {
		entry := reconcileResult{ReviewID: res.ReviewID}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		} else {
			md := res.Metadata
			entry.Consensus = res.Consensus
			entry.Metadata = &md
		}
		payload = append(payload, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": payload})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(s.uptime().Seconds()),
	})
}

// readJSON decodes and validates a request payload, writing the error
// response itself when the payload is unusable.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeErrorPayload(w, http.StatusRequestEntityTooLarge, "payload_too_large",
				"payload exceeds limit")
			return false
		}
		writeErrorPayload(w, http.StatusBadRequest, "invalid_input", "invalid JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeErrorPayload(w, http.StatusBadRequest, "invalid_input", err.Error())
		return false
	}
	return true
}

// writeError maps sentinel errors onto HTTP statuses. Unclassified errors
// are logged and masked as plain internal failures.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Printf("httpapi: internal error: %v", err)
		msg = "internal error"
	}
	writeErrorPayload(w, status, code, msg)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ports.ErrReviewNotFound),
		errors.Is(err, ports.ErrOrderingNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ports.ErrReviewExists):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidOrderingShape),
		errors.Is(err, domain.ErrDuplicateItem),
		errors.Is(err, domain.ErrInvalidWeight):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, ports.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeErrorPayload(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
