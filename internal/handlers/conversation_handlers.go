package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ugc-maroc-backend/internal/auth"
	"ugc-maroc-backend/internal/models"
	"ugc-maroc-backend/internal/services"
	"ugc-maroc-backend/internal/store"
	"ugc-maroc-backend/pkg/httputil"
)

// PrincipalSource resolves an authenticated user's profile, consulting the
// session cache before the relational store.
type PrincipalSource interface {
	Load(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

type ConversationHandlers struct {
	convService *services.ConversationService
	principals  PrincipalSource
}

func NewConversationHandlers(convSvc *services.ConversationService, principals PrincipalSource) *ConversationHandlers {
	return &ConversationHandlers{
		convService: convSvc,
		principals:  principals,
	}
}

// requirePrincipal returns the authenticated user id. The auth middleware
// only peeks at the session cache, so when it missed this resolves the
// principal through the cache-aside path, which both populates the cache and
// rejects tokens whose account has since been deleted.
func (h *ConversationHandlers) requirePrincipal(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, http.StatusUnauthorized, "Authentication required")
		return uuid.Nil, false
	}
	if _, cached := auth.GetPrincipalFromContext(r.Context()); cached || h.principals == nil {
		return userID, true
	}
	if _, err := h.principals.Load(r.Context(), userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusUnauthorized, "Account no longer exists")
			return uuid.Nil, false
		}
		// A degraded cache or store must not fail a request the token
		// signature already authorized.
		log.Printf("WARN [ConversationHandlers] principal load failed for %s: %v", userID, err)
	}
	return userID, true
}

// respondConversationError maps service errors to HTTP status codes shared by
// every conversation endpoint.
func respondConversationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error()) // 400
	case errors.Is(err, services.ErrNotParticipant):
		httputil.RespondError(w, http.StatusForbidden, err.Error()) // 403
	case errors.Is(err, store.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, "Conversation not found") // 404
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "Internal server error") // 500
	}
}

// HandleCreateConversation handles POST /v1/conversations.
func (h *ConversationHandlers) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}

	var req models.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	resp, err := h.convService.Create(r.Context(), userID, req)
	if err != nil {
		log.Printf("CreateConversation handler failed for user %s: %v", userID, err)
		respondConversationError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, resp)
}

// HandleListConversations handles GET /v1/conversations?user_id=...
// The user_id query parameter keys the response in the edge cache; it must
// match the authenticated principal.
func (h *ConversationHandlers) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}

	// user_id is mandatory: it keys the response in the edge cache, so a
	// shared key across principals would leak one user's inbox to another.
	raw := r.URL.Query().Get("user_id")
	if raw == "" {
		httputil.RespondError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}
	requested, err := uuid.Parse(raw)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid user_id")
		return
	}
	if requested != userID {
		httputil.RespondError(w, http.StatusForbidden, "Cannot list another user's conversations")
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	resp, err := h.convService.ListForUser(r.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("ListConversations handler failed for user %s: %v", userID, err)
		respondConversationError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}

// HandleGetMessages handles GET /v1/conversations/{conversationID}/messages.
// Pages are newest first; limit and offset address the conversation's live log.
func (h *ConversationHandlers) HandleGetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	page, err := h.convService.Messages(r.Context(), conversationID, userID, limit, offset)
	if err != nil {
		log.Printf("GetMessages handler failed for conversation %s: %v", conversationID, err)
		respondConversationError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, page)
}

// HandleSendMessage handles POST /v1/conversations/{conversationID}/send.
func (h *ConversationHandlers) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	msg, err := h.convService.Send(r.Context(), conversationID, userID, req.Content, req.Kind)
	if err != nil {
		log.Printf("SendMessage handler failed for conversation %s: %v", conversationID, err)
		respondConversationError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, msg)
}

// HandleMarkRead handles POST /v1/conversations/{conversationID}/read.
func (h *ConversationHandlers) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	var req models.MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	defer r.Body.Close()

	if err := h.convService.MarkRead(r.Context(), conversationID, userID, req.MessageID); err != nil {
		log.Printf("MarkRead handler failed for conversation %s: %v", conversationID, err)
		respondConversationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
