package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ugc-maroc-backend/internal/auth"
	"ugc-maroc-backend/internal/chat"
	"ugc-maroc-backend/internal/config"
	"ugc-maroc-backend/internal/services"
	"ugc-maroc-backend/internal/store"
	"ugc-maroc-backend/pkg/httputil"
)

// WSHandlers upgrades authenticated requests to duplex conversation channels.
// One websocket connection maps to one chat.Session on one conversation.
type WSHandlers struct {
	convService *services.ConversationService
	cfg         *config.Config
	upgrader    websocket.Upgrader
}

func NewWSHandlers(convSvc *services.ConversationService, cfg *config.Config) *WSHandlers {
	return &WSHandlers{
		convService: convSvc,
		cfg:         cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement is handled by the CORS layer for REST;
			// the browser clients connect from the same origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleConversationSocket handles GET /v1/conversations/{conversationID}/ws.
// Browsers cannot set headers on websocket requests, so the access token is
// also accepted as a ?token= query parameter.
func (h *WSHandlers) HandleConversationSocket(w http.ResponseWriter, r *http.Request) {
	conversationID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid conversation ID")
		return
	}

	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		header := r.Header.Get("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			tokenString = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if tokenString == "" {
		httputil.RespondError(w, http.StatusUnauthorized, "Authorization token required")
		return
	}

	claims, err := auth.VerifyToken(tokenString, h.cfg.JWTSecret)
	if err != nil {
		httputil.RespondError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	userID := claims.UserID

	// Authorize before upgrading so rejections stay plain HTTP.
	if err := h.convService.Authorize(r.Context(), conversationID, userID); err != nil {
		switch {
		case errors.Is(err, services.ErrNotParticipant):
			httputil.RespondError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, store.ErrNotFound):
			httputil.RespondError(w, http.StatusNotFound, "Conversation not found")
		default:
			httputil.RespondError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		log.Printf("WS upgrade failed for conversation %s: %v", conversationID, err)
		return
	}

	// The attach pushes the history snapshot through the session before any
	// later broadcast can reach it.
	sess, err := h.convService.Attach(r.Context(), conversationID, userID, conn)
	if err != nil {
		log.Printf("WS attach failed for conversation %s: %v", conversationID, err)
		conn.Close()
		return
	}

	h.readLoop(r, conversationID, userID, sess, conn)
}

// readLoop drains inbound frames until the client disconnects, dispatching
// each command to the conversation's actor. Per-command failures go back to
// this session only; the connection stays up.
func (h *WSHandlers) readLoop(r *http.Request, conversationID, userID uuid.UUID, sess *chat.Session, conn *websocket.Conn) {
	ctx := r.Context()
	defer func() {
		h.convService.Detach(ctx, conversationID, sess)
		sess.Close()
	}()

	for {
		var cmd chat.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WS read error on conversation %s: %v", conversationID, err)
			}
			return
		}

		switch cmd.Type {
		case chat.CmdJoin:
			// Attach already happened on upgrade; join is a no-op kept for
			// clients that send it as their first frame.
		case chat.CmdMessage:
			if _, err := h.convService.Send(ctx, conversationID, userID, cmd.Content, cmd.Kind); err != nil {
				sendError(sess, err)
			}
		case chat.CmdTyping:
			if err := h.convService.Typing(ctx, conversationID, userID, cmd.IsTyping); err != nil {
				sendError(sess, err)
			}
		case chat.CmdRead:
			if err := h.convService.MarkRead(ctx, conversationID, userID, cmd.MessageID); err != nil {
				sendError(sess, err)
			}
		default:
			sendError(sess, errors.New("unknown command type"))
		}
	}
}

// sendError goes through the session's writer goroutine so it never races the
// actor's broadcasts on the underlying connection.
func sendError(sess *chat.Session, err error) {
	sess.Notify(chat.ErrorFrame{Type: chat.FrameError, Error: err.Error()})
}
