package a2a

import "encoding/json"

// Version is the only envelope version accepted and emitted.
const Version = "2.0"

// JSON-RPC error codes used by the adapter.
const (
	CodeInvalidRequest = -32600
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Part kinds.
const (
	PartText = "text"
	PartData = "data"
)

// Request is the inbound task envelope. ProtocolVersion is accepted as an alias of JSONRPC.
type Request struct {
	JSONRPC         string          `json:"jsonrpc"`
	ProtocolVersion string          `json:"protocolVersion,omitempty"`
	ID              json.RawMessage `json:"id"`
	Params          Params          `json:"params"`
}

// Params carries either a single message or a list of them.
type Params struct {
	Message   *Message  `json:"message,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
	ContextID string    `json:"contextId,omitempty"`
	TaskID    string    `json:"taskId,omitempty"`
}

// Message is one conversation entry in envelope form.
type Message struct {
	Kind      string `json:"kind,omitempty"`
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
	MessageID string `json:"messageId,omitempty"`
}

// Part is a text or structured-data fragment of a message.
type Part struct {
	Kind string          `json:"kind"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON always writes text for text parts, even when it is empty.
func (p Part) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind string          `json:"kind"`
		Text *string         `json:"text,omitempty"`
		Data json.RawMessage `json:"data,omitempty"`
	}{Kind: p.Kind, Data: p.Data}
	if p.Kind == PartText || p.Text != "" {
		out.Text = &p.Text
	}
	return json.Marshal(out)
}

// Response is the outbound envelope; exactly one of Result or Error is set.
// The version is written under both marker names.
type Response struct {
	JSONRPC         string          `json:"jsonrpc"`
	ProtocolVersion string          `json:"protocolVersion"`
	ID              json.RawMessage `json:"id"`
	Result          *Task           `json:"result,omitempty"`
	Error           *RPCError       `json:"error,omitempty"`
}

// Task is the result of a completed agent invocation.
type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    Status     `json:"status"`
	Artifacts []Artifact `json:"artifacts"`
	History   []Message  `json:"history"`
	Kind      string     `json:"kind"`
}

// Status reports task state.
type Status struct {
	State     string  `json:"state"`
	Timestamp string  `json:"timestamp"`
	Message   Message `json:"message"`
}

// Artifact is a named output of the task.
type Artifact struct {
	ArtifactID string `json:"artifactId"`
	Name       string `json:"name"`
	Parts      []Part `json:"parts"`
}

// RPCError is the error member of a failed response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorDetails is attached to internal errors.
type ErrorDetails struct {
	Details string `json:"details"`
}

func textPart(text string) Part {
	return Part{Kind: PartText, Text: text}
}
