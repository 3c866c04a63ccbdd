package llm

import (
	"strings"

	"github.com/the-missionary-company/parley/pkg/logger"
)

// modelBinding ties a client-facing model selector to a provider and the
// concrete model identifier passed upstream
type modelBinding struct {
	provider string
	model    string
}

// Registry maps client model selectors to providers. Unknown or absent
// selectors resolve to the configured default rather than failing, so stale
// client state never breaks a request.
type Registry struct {
	providers       map[string]Provider
	bindings        map[string]modelBinding
	defaultSelector string
	logger          *logger.Logger
}

// NewRegistry creates a registry with the given default selector
func NewRegistry(defaultSelector string, log *logger.Logger) *Registry {
	return &Registry{
		providers:       make(map[string]Provider),
		bindings:        make(map[string]modelBinding),
		defaultSelector: strings.ToLower(strings.TrimSpace(defaultSelector)),
		logger:          log.Named("llm-registry"),
	}
}

// RegisterProvider adds a provider under its name
func (r *Registry) RegisterProvider(p Provider) {
	r.providers[p.Name()] = p
}

// Bind maps a client selector to a provider name and concrete model
func (r *Registry) Bind(selector, providerName, model string) {
	selector = strings.ToLower(strings.TrimSpace(selector))
	r.bindings[selector] = modelBinding{provider: providerName, model: model}
}

// Resolve returns the provider and concrete model for a client selector,
// falling back to the default selector when the requested one is unknown
func (r *Registry) Resolve(selector string) (Provider, string) {
	selector = strings.ToLower(strings.TrimSpace(selector))

	binding, ok := r.bindings[selector]
	if !ok {
		if selector != "" {
			r.logger.Warn("Unknown model selector, using default",
				logger.String("selector", selector),
				logger.String("default", r.defaultSelector))
		}
		binding = r.bindings[r.defaultSelector]
	}

	return r.providers[binding.provider], binding.model
}
