package action

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Timing tells the client when to run a deferred command.
type Timing string

// Command timings.
const (
	TimingImmediate Timing = "IMMEDIATE"
	TimingAfterTTS  Timing = "AFTER_TTS"
)

// Command is a client-side action whose effect the client must perform,
// such as starting playback in an embedded player.
type Command struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
	Timing Timing         `json:"timing"`
}

// Call is the input to an executor.
type Call struct {
	Platform    string
	AccountID   string
	Action      string
	Parameters  map[string]any
	AccessToken string
}

// Output is what an executor produced.
type Output struct {
	// Payload is structured data returned by the platform.
	Payload any

	// Reply, when set, replaces the optimistic reply.
	Reply string

	// Command is a deferred client-side action.
	Command *Command
}

// Executor performs one canonical action on one platform. Executors return
// *DeviceNotFoundError, *ExternalAPIError or any other error on failure.
type Executor func(ctx context.Context, call Call) (Output, error)

// RegisterOption configures a registration.
type RegisterOption func(*registration)

// WithoutCredential marks an executor that needs no access token, such as
// one that only emits a client command.
func WithoutCredential() RegisterOption {
	return func(r *registration) { r.tokenless = true }
}

type registration struct {
	exec      Executor
	tokenless bool
}

type registryKey struct {
	platform string
	action   string
}

// Registry maps (platform, canonical action) pairs to executors. It is
// populated at startup; unknown pairs are rejected at registration.
type Registry struct {
	catalog *Catalog

	mu        sync.RWMutex
	executors map[registryKey]registration
}

// NewRegistry creates an empty registry over catalog.
func NewRegistry(catalog *Catalog) *Registry {
	return &Registry{
		catalog:   catalog,
		executors: make(map[registryKey]registration),
	}
}

// Catalog returns the registry's action catalog.
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// Register binds exec to (platform, action).
func (r *Registry) Register(platform, action string, exec Executor, opts ...RegisterOption) error {
	if platform == "" {
		return errors.New("platform is required")
	}
	if exec == nil {
		return fmt.Errorf("nil executor for %s/%s", platform, action)
	}
	if _, ok := r.catalog.Lookup(action); !ok {
		return fmt.Errorf("unknown action %q for platform %s", action, platform)
	}

	reg := registration{exec: exec}
	for _, opt := range opts {
		opt(&reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{platform, action}
	if _, exists := r.executors[key]; exists {
		return fmt.Errorf("executor for %s/%s already registered", platform, action)
	}
	r.executors[key] = reg
	return nil
}

func (r *Registry) lookup(platform, action string) (registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.executors[registryKey{platform, action}]
	return reg, ok
}

// Has reports whether an executor is registered for (platform, action).
func (r *Registry) Has(platform, action string) bool {
	_, ok := r.lookup(platform, action)
	return ok
}

// Actions returns the actions registered for platform, sorted.
func (r *Registry) Actions(platform string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for k := range r.executors {
		if k.platform == platform {
			out = append(out, k.action)
		}
	}
	slices.Sort(out)
	return out
}

// Platforms returns the platforms with at least one executor, sorted.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for k := range r.executors {
		if !seen[k.platform] {
			seen[k.platform] = true
			out = append(out, k.platform)
		}
	}
	slices.Sort(out)
	return out
}
