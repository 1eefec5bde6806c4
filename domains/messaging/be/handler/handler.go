package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hardhat-labs/crewdeck/domains/messaging/be/service"
	"github.com/hardhat-labs/crewdeck/domains/profiles/be/access"
	platformlogging "github.com/hardhat-labs/crewdeck/platform/go/logging"
	"github.com/hardhat-labs/crewdeck/platform/go/problem"
)

type operation string

const (
	openOperation     operation = "messagingOpen"
	listOperation     operation = "messagingList"
	getOperation      operation = "messagingGet"
	sendOperation     operation = "messagingSend"
	markReadOperation operation = "messagingMarkRead"
)

// Handler serves the messaging endpoints.
type Handler struct {
	svc    service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("messaging service is required")
	}
	if logger == nil {
		panic("logger is required")
	}

	return &Handler{svc: svc, logger: logger}
}

type conversationResponse struct {
	ID            string    `json:"id"`
	AgencyID      string    `json:"agencyId"`
	RequesterID   string    `json:"requesterId"`
	Subject       string    `json:"subject"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

type conversationListItemResponse struct {
	conversationResponse
	AgencyName  string `json:"agencyName"`
	UnreadCount int    `json:"unreadCount"`
}

type listResponse struct {
	Items      []conversationListItemResponse `json:"items"`
	Page       int                            `json:"page"`
	PageSize   int                            `json:"pageSize"`
	TotalItems int                            `json:"totalItems"`
	TotalPages int                            `json:"totalPages"`
}

type messageResponse struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	Body           string     `json:"body"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type detailResponse struct {
	Conversation conversationResponse `json:"conversation"`
	Messages     []messageResponse    `json:"messages"`
}

type openRequest struct {
	AgencyID string `json:"agencyId"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

// Open starts a conversation with an agency.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var body openRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
			"Invalid request body", "request body must be valid JSON"))
		return
	}

	agencyID, err := uuid.Parse(body.AgencyID)
	if err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
			"Validation failed", "agencyId must be a UUID"))
		return
	}

	conversation, err := h.svc.Open(r.Context(), actor, service.OpenInput{
		AgencyID: agencyID,
		Subject:  body.Subject,
		Body:     body.Body,
	})
	if err != nil {
		h.writeError(w, r, err, openOperation)
		return
	}

	writeJSON(w, http.StatusCreated, toConversationResponse(conversation))
}

// List returns the caller's conversations ordered by last activity.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	opts := service.ListOptions{}
	q := r.URL.Query()
	opts.Page = intQuery(q.Get("page"))
	opts.PageSize = intQuery(q.Get("pageSize"))

	result, err := h.svc.List(r.Context(), actor, opts)
	if err != nil {
		h.writeError(w, r, err, listOperation)
		return
	}

	items := make([]conversationListItemResponse, 0, len(result.Conversations))
	for _, item := range result.Conversations {
		items = append(items, conversationListItemResponse{
			conversationResponse: toConversationResponse(item.Conversation),
			AgencyName:           item.AgencyName,
			UnreadCount:          item.UnreadCount,
		})
	}

	writeJSON(w, http.StatusOK, listResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

// Get returns one conversation with its full message history.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	detail, err := h.svc.Get(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err, getOperation)
		return
	}

	messages := make([]messageResponse, 0, len(detail.Messages))
	for _, message := range detail.Messages {
		messages = append(messages, toMessageResponse(message))
	}

	writeJSON(w, http.StatusOK, detailResponse{
		Conversation: toConversationResponse(detail.Conversation),
		Messages:     messages,
	})
}

type sendRequest struct {
	Body string `json:"body"`
}

// Send appends a message to a conversation.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var body sendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		problem.Write(w, problem.New(http.StatusBadRequest, problem.CodeValidation,
			"Invalid request body", "request body must be valid JSON"))
		return
	}

	message, err := h.svc.Send(r.Context(), actor, id, body.Body)
	if err != nil {
		h.writeError(w, r, err, sendOperation)
		return
	}

	writeJSON(w, http.StatusCreated, toMessageResponse(message))
}

type markReadResponse struct {
	MarkedRead int `json:"markedRead"`
}

// MarkRead stamps every counterparty message in the conversation as read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	count, err := h.svc.MarkRead(r.Context(), actor, id)
	if err != nil {
		h.writeError(w, r, err, markReadOperation)
		return
	}

	writeJSON(w, http.StatusOK, markReadResponse{MarkedRead: count})
}

func toConversationResponse(conversation service.Conversation) conversationResponse {
	return conversationResponse{
		ID:            conversation.ID.String(),
		AgencyID:      conversation.AgencyID.String(),
		RequesterID:   conversation.RequesterID.String(),
		Subject:       conversation.Subject,
		LastMessageAt: conversation.LastMessageAt,
		CreatedAt:     conversation.CreatedAt,
	}
}

func toMessageResponse(message service.Message) messageResponse {
	return messageResponse{
		ID:             message.ID.String(),
		ConversationID: message.ConversationID.String(),
		SenderID:       message.SenderID.String(),
		Body:           message.Body,
		ReadAt:         message.ReadAt,
		CreatedAt:      message.CreatedAt,
	}
}

func requireActor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	profile, ok := access.FromContext(r.Context())
	if !ok {
		problem.Write(w, problem.New(http.StatusUnauthorized, problem.CodeUnauthorized,
			"Unauthorized", "authentication is required"))
		return service.Actor{}, false
	}

	return service.Actor{ProfileID: profile.ID, Role: profile.Role}, true
}

func conversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "conversationId")
	id, err := uuid.Parse(raw)
	if err != nil {
		problem.Write(w, problem.New(http.StatusNotFound, problem.CodeNotFound,
			"Resource not found", "conversation not found"))
		return uuid.Nil, false
	}

	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, op operation) {
	details := classifyError(err)

	logger := platformlogging.FromRequest(r, h.logger)
	logFields := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int("status", details.Status),
	}

	switch {
	case details.Status >= http.StatusInternalServerError:
		logger.Error("messaging operation failed", append(logFields, zap.Error(err))...)
	case details.Status == http.StatusNotFound:
		logger.Info("messaging resource not found", append(logFields, zap.Error(err))...)
	default:
		logger.Warn("messaging request rejected", append(logFields, zap.Error(err))...)
	}

	problem.Write(w, details)
}

func classifyError(err error) problem.Details {
	var validationErr *service.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return problem.New(http.StatusBadRequest, problem.CodeValidation,
			"Validation failed", "one or more fields are invalid").
			WithFields(validationErr.Fields)
	case errors.Is(err, service.ErrNotFound):
		return problem.New(http.StatusNotFound, problem.CodeNotFound,
			"Resource not found", "conversation not found")
	case errors.Is(err, service.ErrForbidden):
		return problem.New(http.StatusForbidden, problem.CodeForbidden,
			"Forbidden", "caller is not a participant of this conversation")
	default:
		return problem.New(http.StatusInternalServerError, problem.CodeDatabase,
			"Internal server error", "an unexpected error occurred")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func intQuery(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
