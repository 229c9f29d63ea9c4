package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/courierhq/sendcore/internal/dispatch"
	"github.com/courierhq/sendcore/internal/service/sending"
)

type handlers struct {
	orch *dispatch.Orchestrator
	sc   *dispatch.SendingContext
}

type sendRequest struct {
	// ItemIDs limits the send to specific items, the "resend these
	// recipients" path. Empty sends everything still pending.
	ItemIDs []string `json:"item_ids"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) enqueueCampaign(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	campaignID := chi.URLParam(r, "campaignID")

	var req sendRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if !h.orch.EnqueueCampaign(r.Context(), h.sc, tenantID, campaignID, req.ItemIDs) {
		respondError(w, http.StatusConflict, "campaign not found or nothing to send")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"campaign_id":    campaignID,
		"selected_items": len(req.ItemIDs),
	})
}

func (h *handlers) cancelCampaign(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	campaignID := chi.URLParam(r, "campaignID")

	if !h.orch.CancelCampaign(r.Context(), h.sc, tenantID, campaignID) {
		respondError(w, http.StatusNotFound, "campaign is not sending")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"campaign_id": campaignID, "status": "cancelled"})
}

func (h *handlers) pauseCampaign(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	campaignID := chi.URLParam(r, "campaignID")

	if !h.orch.PauseCampaign(r.Context(), h.sc, tenantID, campaignID) {
		respondError(w, http.StatusNotFound, "campaign is not sending")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"campaign_id": campaignID, "status": "paused"})
}

func (h *handlers) campaignProgress(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")

	c, err := h.sc.Repo.LoadCampaign(r.Context(), campaignID)
	if err != nil {
		if errors.Is(err, sending.ErrNotFound) {
			respondError(w, http.StatusNotFound, "campaign not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "load campaign failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id":  c.ID,
		"status":       c.Status,
		"total_count":  c.TotalCount,
		"sent_count":   c.SentCount,
		"failed_count": c.FailedCount,
	})
}

func (h *handlers) outboxStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"outboxes": h.orch.Registry().Snapshot(),
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
