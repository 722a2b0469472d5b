// Package provider defines the backend contract shared by every chat backend and a
// registry to look them up by name.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"PhindChat/internal/session"

	"github.com/samber/lo"
)

// UpdateFunc receives the full answer accumulated so far; each call supersedes the last
type UpdateFunc = func(text string)

// Provider generates an answer to the last user message of a chat
type Provider interface {
	Name() string
	Generate(ctx context.Context, messages []session.Message, update UpdateFunc) error
}

// ErrUnknownProvider is returned by Get for unregistered names
var ErrUnknownProvider = errors.New("provider: unknown backend")

// ErrMissingAPIKey is returned by hosted backends that were configured without a key
var ErrMissingAPIKey = errors.New("provider: API key not set")

// Registry maps backend names and aliases to providers
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	names     []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider under name and any aliases (case-insensitive)
func (r *Registry) Register(name string, p Provider, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, n := range append([]string{name}, aliases...) {
		r.providers[strings.ToLower(n)] = p
	}
	r.names = lo.Uniq(append(r.names, strings.ToLower(name)))
}

// Get looks up a provider by name or alias
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names returns the primary names of registered providers, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := append([]string(nil), r.names...)
	sort.Strings(names)
	return names
}

// Collect runs Generate and returns the last delivered answer
func Collect(ctx context.Context, p Provider, messages []session.Message) (string, error) {
	var answer string
	err := p.Generate(ctx, messages, func(text string) { answer = text })
	return answer, err
}
