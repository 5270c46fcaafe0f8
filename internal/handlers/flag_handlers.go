package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ugc-maroc-backend/internal/flags"
	"ugc-maroc-backend/internal/kv"
	"ugc-maroc-backend/internal/models"
	"ugc-maroc-backend/internal/notify"
	"ugc-maroc-backend/pkg/httputil"
)

// FlagHandlers exposes the admin surface for feature flags. Reads outside
// this surface go through flags.Service.Enabled and never fail open requests.
type FlagHandlers struct {
	flagService *flags.Service
	notifier    *notify.OpsNotifier // nil when Slack is not configured
}

func NewFlagHandlers(flagSvc *flags.Service, notifier *notify.OpsNotifier) *FlagHandlers {
	return &FlagHandlers{
		flagService: flagSvc,
		notifier:    notifier,
	}
}

// HandleListFlags handles GET /v1/admin/flags.
func (h *FlagHandlers) HandleListFlags(w http.ResponseWriter, r *http.Request) {
	list, err := h.flagService.List(r.Context())
	if err != nil {
		log.Printf("ListFlags handler failed: %v", err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to list flags")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, list)
}

// HandleGetFlag handles GET /v1/admin/flags/{name}.
func (h *FlagHandlers) HandleGetFlag(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	flag, err := h.flagService.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, kv.ErrKeyNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Flag not found")
			return
		}
		log.Printf("GetFlag handler failed for %s: %v", name, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to read flag")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, flag)
}

// HandleSetFlag handles PUT /v1/admin/flags/{name}.
func (h *FlagHandlers) HandleSetFlag(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req models.SetFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	flag, err := h.flagService.Set(r.Context(), name, req.Enabled)
	if err != nil {
		log.Printf("SetFlag handler failed for %s: %v", name, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to update flag")
		return
	}
	h.notifier.FlagChanged(r.Context(), name, req.Enabled)
	httputil.RespondJSON(w, http.StatusOK, flag)
}
