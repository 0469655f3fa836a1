package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/DeafMist/api-directory/internal/agent"
	"github.com/DeafMist/api-directory/internal/logger"
)

const (
	maxBodyBytes     = 1 << 20
	noResponseText   = "No response generated."
	unserializable   = "[Unserializable Tool Result]"
	toolResultsName  = "ToolResults"
	invalidRequest   = `Invalid Request: jsonrpc must be "2.0" and id is required`
	malformedRequest = "Invalid Request: body is not a valid JSON envelope"
)

// Handler adapts the task envelope to registered agents.
type Handler struct {
	registry *agent.Registry
	log      *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewHandler creates a Handler resolving agents from registry.
func NewHandler(registry *agent.Registry, log *slog.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		registry: registry,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Mount registers the task route on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/a2a/agent/{agentID}", h.ServeHTTP)
}

// ServeHTTP reads the envelope and writes the response envelope.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.log.Warn("read a2a body", slog.Any("err", err))
		writeJSON(w, http.StatusBadRequest, errorResponse(nil, CodeInvalidRequest, malformedRequest, nil))
		return
	}

	status, resp := h.Handle(r.Context(), agentID, body)
	writeJSON(w, status, resp)
}

// Handle processes one envelope and returns the HTTP status with the response envelope.
func (h *Handler) Handle(ctx context.Context, agentID string, body []byte) (status int, resp Response) {
	defer func() {
		if r := recover(); r != nil {
			status, resp = h.internalError(agentID, fmt.Errorf("panic: %v", r))
		}
	}()

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.log.Warn("decode a2a request", slog.Any("err", err))
		return http.StatusBadRequest, errorResponse(nil, CodeInvalidRequest, malformedRequest, nil)
	}

	version := req.JSONRPC
	if version == "" {
		version = req.ProtocolVersion
	}
	if version != Version || missingID(req.ID) {
		id := req.ID
		if missingID(id) {
			id = nil
		}
		return http.StatusBadRequest, errorResponse(id, CodeInvalidRequest, invalidRequest, nil)
	}

	a, err := h.registry.Get(agentID)
	if err != nil {
		if errors.Is(err, agent.ErrUnknownAgent) {
			return http.StatusNotFound, errorResponse(req.ID, CodeInvalidParams, fmt.Sprintf("Agent '%s' not found", agentID), nil)
		}
		return h.internalError(agentID, err)
	}

	messages := req.Params.messages()
	turns, err := toTurns(messages)
	if err != nil {
		return h.internalError(agentID, err)
	}

	out, err := a.Respond(ctx, turns)
	if err != nil {
		return h.internalError(agentID, err)
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		text = noResponseText
	}

	task := Task{
		ID:        orDefault(req.Params.TaskID, "task-"+h.newID()),
		ContextID: orDefault(req.Params.ContextID, "ctx-"+h.newID()),
		Status: Status{
			State:     "completed",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
			Message:   h.agentMessage(text),
		},
		Artifacts: h.artifacts(agentID, text, out.ToolResults),
		History:   h.history(messages, text),
		Kind:      "task",
	}

	h.log.Info("a2a task completed",
		slog.String("agent", agentID),
		slog.String("task_id", task.ID),
		slog.Int("turns", len(turns)),
		slog.Int("tool_results", len(out.ToolResults)),
	)

	return http.StatusOK, Response{JSONRPC: Version, ProtocolVersion: Version, ID: req.ID, Result: &task}
}

func (h *Handler) internalError(agentID string, err error) (int, Response) {
	h.log.Error("a2a request failed", slog.String("agent", agentID), slog.Any("err", err))
	return http.StatusInternalServerError,
		errorResponse(nil, CodeInternalError, "Internal error", ErrorDetails{Details: err.Error()})
}

func (h *Handler) agentMessage(text string) Message {
	return Message{
		Kind:      "message",
		Role:      agent.RoleAgent,
		Parts:     []Part{textPart(text)},
		MessageID: "msg-" + h.newID(),
	}
}

func (h *Handler) artifacts(agentID, text string, results []agent.ToolResult) []Artifact {
	artifacts := []Artifact{{
		ArtifactID: "artifact-" + h.newID(),
		Name:       agentID + "Response",
		Parts:      []Part{textPart(text)},
	}}
	if len(results) == 0 {
		return artifacts
	}

	parts := make([]Part, 0, len(results))
	for _, r := range results {
		raw, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			h.log.Warn("serialize tool result", slog.String("tool", r.Tool), slog.Any("err", err))
			parts = append(parts, textPart(unserializable))
			continue
		}
		parts = append(parts, textPart(string(raw)))
	}
	return append(artifacts, Artifact{
		ArtifactID: "artifact-" + h.newID(),
		Name:       toolResultsName,
		Parts:      parts,
	})
}

func (h *Handler) history(messages []Message, text string) []Message {
	history := make([]Message, 0, len(messages)+1)
	for _, m := range messages {
		m.Kind = "message"
		if m.MessageID == "" {
			m.MessageID = "msg-" + h.newID()
		}
		history = append(history, m)
	}
	return append(history, h.agentMessage(text))
}

func (p Params) messages() []Message {
	if p.Message != nil {
		return []Message{*p.Message}
	}
	return p.Messages
}

func toTurns(messages []Message) ([]agent.Turn, error) {
	turns := make([]agent.Turn, 0, len(messages))
	for _, m := range messages {
		texts := make([]string, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Kind {
			case PartText:
				texts = append(texts, p.Text)
			case PartData:
				data, err := compact(p.Data)
				if err != nil {
					return nil, fmt.Errorf("data part of %s message: %w", m.Role, err)
				}
				texts = append(texts, data)
			default:
				texts = append(texts, "")
			}
		}
		turns = append(turns, agent.Turn{Role: m.Role, Content: strings.Join(texts, "\n")})
	}
	return turns, nil
}

func compact(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "null", nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func missingID(id json.RawMessage) bool {
	s := strings.TrimSpace(string(id))
	return s == "" || s == "null" || s == `""`
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func errorResponse(id json.RawMessage, code int, message string, data any) Response {
	return Response{
		JSONRPC:         Version,
		ProtocolVersion: Version,
		ID:              id,
		Error:           &RPCError{Code: code, Message: message, Data: data},
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
