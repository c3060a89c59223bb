package httpserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"bot-sankalp/internal/repo"
)

// adminOnly wraps a handler with key authentication. The key is accepted
// from the X-Admin-Key header or the admin_key cookie; query parameters are
// rejected so keys never land in access logs.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := s.deps.AdminKey
		if key == "" {
			http.Error(w, "admin api disabled", http.StatusServiceUnavailable)
			return
		}
		provided := r.Header.Get("X-Admin-Key")
		if provided == "" {
			if c, err := r.Cookie("admin_key"); err == nil {
				provided = c.Value
			}
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			s.metrics.Errors.WithLabelValues("admin_auth").Inc()
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleBroadcastDaily(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Workers == nil {
		http.Error(w, "workers unavailable", http.StatusServiceUnavailable)
		return
	}
	// The broadcast outlives the request; detach it from the request context.
	go func() {
		if err := s.deps.Workers.RunDailyBroadcast(context.Background()); err != nil {
			s.logger.Error("daily broadcast failed", "error", err)
		}
	}()
	writeJSON(w, map[string]string{"status": "started"})
}

func (s *Server) handleBroadcastWeekly(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Workers == nil {
		http.Error(w, "workers unavailable", http.StatusServiceUnavailable)
		return
	}
	go func() {
		if err := s.deps.Workers.RunWeeklyPrompt(context.Background()); err != nil {
			s.logger.Error("weekly prompt run failed", "error", err)
		}
	}()
	writeJSON(w, map[string]string{"status": "started"})
}

type batchCreateRequest struct {
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

func (s *Server) handleBatchCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req batchCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	start, err := time.Parse("2006-01-02", req.PeriodStart)
	if err != nil {
		http.Error(w, "invalid period_start", http.StatusBadRequest)
		return
	}
	end, err := time.Parse("2006-01-02", req.PeriodEnd)
	if err != nil {
		http.Error(w, "invalid period_end", http.StatusBadRequest)
		return
	}
	if end.Before(start) {
		http.Error(w, "period_end before period_start", http.StatusBadRequest)
		return
	}

	batch, err := s.deps.Store.CreateSevaBatch(r.Context(), start, end)
	if err != nil {
		s.logger.Error("failed creating seva batch", "error", err)
		http.Error(w, "failed creating seva batch", http.StatusInternalServerError)
		return
	}
	writeJSON(w, batch)
}

type batchTransferRequest struct {
	BatchID           string `json:"batch_id"`
	TransferReference string `json:"transfer_reference"`
}

func (s *Server) handleBatchTransferred(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req batchTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.BatchID == "" || req.TransferReference == "" {
		http.Error(w, "batch_id and transfer_reference are required", http.StatusBadRequest)
		return
	}

	if err := s.deps.Store.MarkBatchTransferred(r.Context(), req.BatchID, req.TransferReference); err != nil {
		s.logger.Error("failed marking batch transferred", "error", err, "batch_id", req.BatchID)
		http.Error(w, "failed marking batch transferred", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "ok", "batch_id": req.BatchID})
}

func (s *Server) handleBatchList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	batches, err := s.deps.Store.ListSevaBatches(r.Context())
	if err != nil {
		s.logger.Error("failed listing seva batches", "error", err)
		http.Error(w, "failed listing seva batches", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"batches": batches, "count": len(batches)})
}

type mediaAddRequest struct {
	MediaURL    string `json:"media_url"`
	MediaType   string `json:"media_type"`
	TempleName  string `json:"temple_name"`
	Location    string `json:"location"`
	SevaDate    string `json:"seva_date"`
	FamiliesFed int    `json:"families_fed"`
	Caption     string `json:"caption"`
}

func (s *Server) handleMediaAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req mediaAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.MediaURL == "" {
		http.Error(w, "media_url is required", http.StatusBadRequest)
		return
	}
	switch req.MediaType {
	case "image", "video":
	default:
		http.Error(w, "media_type must be image or video", http.StatusBadRequest)
		return
	}

	media := repo.SevaMedia{
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
	}
	if req.TempleName != "" {
		media.TempleName = &req.TempleName
	}
	if req.Location != "" {
		media.Location = &req.Location
	}
	if req.Caption != "" {
		media.Caption = &req.Caption
	}
	if req.FamiliesFed > 0 {
		media.FamiliesFed = &req.FamiliesFed
	}
	if req.SevaDate != "" {
		parsed, err := time.Parse("2006-01-02", req.SevaDate)
		if err != nil {
			http.Error(w, "invalid seva_date", http.StatusBadRequest)
			return
		}
		media.SevaDate = &parsed
	}

	saved, err := s.deps.Store.AddSevaMedia(r.Context(), media)
	if err != nil {
		s.logger.Error("failed adding seva media", "error", err)
		http.Error(w, "failed adding seva media", http.StatusInternalServerError)
		return
	}
	writeJSON(w, saved)
}

func (s *Server) handleMediaStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.deps.Store.GetMediaPoolStats(r.Context())
	if err != nil {
		s.logger.Error("failed loading media pool stats", "error", err)
		http.Error(w, "failed loading media pool stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.deps.Migrations == nil {
		http.Error(w, "migrations unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := s.deps.Store.RunMigrations(r.Context(), s.deps.Migrations); err != nil {
		s.logger.Error("migration run failed", "error", err)
		http.Error(w, "migration run failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "migrated"})
}
