package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownAgent is returned by Registry.Get for names that were never registered.
var ErrUnknownAgent = errors.New("unknown agent")

// Roles used in conversation turns.
const (
	RoleUser      = "user"
	RoleAgent     = "agent"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is one message of the conversation in the agent's own vocabulary.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolResult records one tool invocation made while answering.
type ToolResult struct {
	Tool   string `json:"tool"`
	Input  any    `json:"input"`
	Output any    `json:"output"`
}

// Response is what an agent produces for a conversation.
type Response struct {
	Text        string
	ToolResults []ToolResult
}

// Agent answers a conversation.
type Agent interface {
	Respond(ctx context.Context, turns []Turn) (Response, error)
}

// Registry maps agent names to implementations.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds or replaces the agent stored under name.
func (r *Registry) Register(name string, a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[name] = a
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
	}
	return a, nil
}

// Names lists registered agents in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
