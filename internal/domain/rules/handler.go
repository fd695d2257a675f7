package rules

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/centavohq/centavo/pkg/auth"
	"github.com/centavohq/centavo/pkg/httputil"
)

// Handler exposes rule CRUD over HTTP.
type Handler struct {
	svc    *RuleService
	logger *slog.Logger
}

func NewHandler(svc *RuleService, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the rule endpoints on r. The caller wraps the router in
// the auth middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

type rulePayload struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	ConditionType     string    `json:"condition_type"`
	ConditionOperator string    `json:"condition_operator"`
	ConditionValue    string    `json:"condition_value"`
	ActionType        string    `json:"action_type"`
	ActionValue       string    `json:"action_value"`
	IsActive          bool      `json:"is_active"`
	Order             int       `json:"order"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toRulePayload(rule *Rule) rulePayload {
	return rulePayload{
		ID:                rule.ID,
		Name:              rule.Name,
		ConditionType:     string(rule.Condition.Type),
		ConditionOperator: string(rule.Condition.Operator),
		ConditionValue:    rule.Condition.Value,
		ActionType:        string(rule.Action.Type),
		ActionValue:       rule.Action.Value,
		IsActive:          rule.IsActive,
		Order:             rule.Order,
		CreatedAt:         rule.CreatedAt,
		UpdatedAt:         rule.UpdatedAt,
	}
}

type ruleRequest struct {
	Name              string `json:"name"`
	ConditionType     string `json:"condition_type"`
	ConditionOperator string `json:"condition_operator"`
	ConditionValue    string `json:"condition_value"`
	ActionType        string `json:"action_type"`
	ActionValue       string `json:"action_value"`
	IsActive          *bool  `json:"is_active"`
	Order             int    `json:"order"`
}

func (req *ruleRequest) toParams() RuleParams {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return RuleParams{
		Name: req.Name,
		Condition: Condition{
			Type:     ConditionType(req.ConditionType),
			Operator: Operator(req.ConditionOperator),
			Value:    req.ConditionValue,
		},
		Action: Action{
			Type:  ActionType(req.ActionType),
			Value: req.ActionValue,
		},
		IsActive: active,
		Order:    req.Order,
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httputil.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	list, err := h.svc.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list rules", "user_id", userID, "error", err)
		httputil.SendJSONError(w, "internal error", http.StatusInternalServerError)
		return
	}
	payload := make([]rulePayload, 0, len(list))
	for _, rule := range list {
		payload = append(payload, toRulePayload(rule))
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]any{"rules": payload})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httputil.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req ruleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rule, err := h.svc.Create(r.Context(), userID, req.toParams())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusCreated, toRulePayload(rule))
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httputil.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	ruleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.SendJSONError(w, "invalid rule id", http.StatusBadRequest)
		return
	}

	var req ruleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	rule, err := h.svc.Update(r.Context(), userID, ruleID, req.toParams())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, toRulePayload(rule))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httputil.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	ruleID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.SendJSONError(w, "invalid rule id", http.StatusBadRequest)
		return
	}

	if err := h.svc.Delete(r.Context(), userID, ruleID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps service errors to statuses; ownership violations read as
// not-found so rule IDs cannot be probed.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRuleNotFound), errors.Is(err, ErrNotRuleOwner):
		httputil.SendJSONError(w, "rule not found", http.StatusNotFound)
	default:
		httputil.SendJSONError(w, err.Error(), http.StatusBadRequest)
	}
}
