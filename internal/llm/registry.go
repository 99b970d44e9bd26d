package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/netpilot-ai/assistant-core/internal/model"
)

// Router selects the provider client serving a given model identifier.
type Router struct {
	clients []Client
}

// NewRouter creates a router over the configured provider clients.
func NewRouter(clients ...Client) *Router {
	return &Router{clients: clients}
}

// ClientFor returns the client serving modelID: an exact match against
// each client's model list first, then the conventional prefix routing
// (claude -> anthropic, gpt -> openai, deepseek -> deepseek).
func (r *Router) ClientFor(modelID string) (Client, error) {
	for _, c := range r.clients {
		for _, m := range c.Models() {
			if m == modelID {
				return c, nil
			}
		}
	}

	var want string
	switch {
	case strings.HasPrefix(modelID, "claude"):
		want = "anthropic"
	case strings.HasPrefix(modelID, "gpt"):
		want = "openai"
	case strings.HasPrefix(modelID, "deepseek"):
		want = "deepseek"
	default:
		return nil, fmt.Errorf("unsupported model: %s", modelID)
	}
	for _, c := range r.clients {
		if c.Name() == want {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no provider configured for model: %s", modelID)
}

// Registry exposes the catalog of selectable models and their
// provider-level connection status.
type Registry struct {
	infos  []model.ModelInfo
	router *Router
}

// NewRegistry creates a registry over the configured model catalog.
func NewRegistry(infos []model.ModelInfo, router *Router) *Registry {
	return &Registry{infos: infos, router: router}
}

// List returns the configured model catalog.
func (r *Registry) List() []model.ModelInfo {
	out := make([]model.ModelInfo, len(r.infos))
	copy(out, r.infos)
	return out
}

// Lookup finds a catalog entry by model identifier.
func (r *Registry) Lookup(modelID string) (model.ModelInfo, bool) {
	for _, info := range r.infos {
		if info.Value == modelID {
			return info, true
		}
	}
	return model.ModelInfo{}, false
}

// CheckConnection probes the provider owning modelID with a minimal
// request and reports reachability.
func (r *Registry) CheckConnection(ctx context.Context, modelID string) model.ModelConnectionStatus {
	status := model.ModelConnectionStatus{
		Model:     modelID,
		LastCheck: time.Now().Format(time.RFC3339),
	}

	if _, ok := r.Lookup(modelID); !ok {
		status.Message = "unsupported model: " + modelID
		return status
	}
	client, err := r.router.ClientFor(modelID)
	if err != nil {
		status.Message = err.Error()
		return status
	}

	_, err = client.Complete(ctx, &CompletionRequest{
		Model:     modelID,
		Messages:  []ChatMessage{{Role: "user", Content: "Hello"}},
		MaxTokens: 10,
	})
	if err != nil {
		status.Message = UserMessage(err)
		return status
	}

	status.Connected = true
	status.Message = client.Name() + " API reachable"
	return status
}
