package capability

import (
	"fmt"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Registry owns the set of registered capability implementations and
// resolves enablement from configuration. Registration happens once at
// process start; the registry is read-only afterwards, so reads need
// no locking.
type Registry struct {
	impls    map[string]*Implementation
	settings map[string]Settings
}

func NewRegistry(settings map[string]Settings) *Registry {
	if settings == nil {
		settings = map[string]Settings{}
	}
	return &Registry{
		impls:    make(map[string]*Implementation),
		settings: settings,
	}
}

// Register adds an implementation under its namespace. A duplicate
// namespace is a configuration error, fatal at boot.
func (r *Registry) Register(impl Implementation) error {
	if err := impl.Descriptor.validate(); err != nil {
		return err
	}
	ns := impl.Descriptor.Namespace
	if _, exists := r.impls[ns]; exists {
		return fmt.Errorf("capability: duplicate registration for namespace %s", ns)
	}
	r.impls[ns] = &impl
	log.Debug().Str("namespace", ns).Str("version", impl.Descriptor.Version).Bool("enabled", r.IsEnabled(ns)).Msg("registry: capability registered")
	return nil
}

// IsEnabled is the single source of truth for capability gating:
// routing, discovery and metadata handling all agree on this one
// boolean. Unknown namespaces are disabled.
func (r *Registry) IsEnabled(namespace string) bool {
	s, ok := r.settings[namespace]
	return ok && s.Enabled
}

// Config returns the configuration map for a namespace, if any.
func (r *Registry) Config(namespace string) (map[string]any, bool) {
	s, ok := r.settings[namespace]
	if !ok {
		return nil, false
	}
	return s.Config, true
}

// EnabledCapability is one entry of the discovery response.
type EnabledCapability struct {
	ID        string         `json:"id"`
	SchemaURL string         `json:"schemaUrl,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Enabled lists every enabled, registered capability with its full
// versioned id, for capability discovery.
func (r *Registry) Enabled() []EnabledCapability {
	out := make([]EnabledCapability, 0, len(r.impls))
	for ns, impl := range r.impls {
		if !r.IsEnabled(ns) {
			continue
		}
		cfg, _ := r.Config(ns)
		out = append(out, EnabledCapability{
			ID:        impl.Descriptor.ID(),
			SchemaURL: impl.Descriptor.SchemaURL,
			Metadata:  cfg,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Mount attaches the routes of every enabled implementation that
// declares routes. Routes of disabled capabilities are never mounted:
// enablement is a hard gate, not a flag checked inside the handler.
func (r *Registry) Mount(router chi.Router) {
	for ns, impl := range r.impls {
		if impl.Routes == nil || !r.IsEnabled(ns) {
			continue
		}
		impl.Routes(router)
		log.Info().Str("namespace", ns).Msg("registry: capability routes mounted")
	}
}

// ValidateMetadata reports whether value is acceptable under the
// namespace's validator. An absent implementation or validator accepts
// everything; a panicking validator counts as a validation failure,
// never propagates.
func (r *Registry) ValidateMetadata(namespace string, value any) (ok bool) {
	impl, exists := r.impls[namespace]
	if !exists || impl.Validator == nil {
		return true
	}
	defer func() {
		if p := recover(); p != nil {
			log.Warn().Str("namespace", namespace).Interface("panic_value", p).Msg("registry: validator panicked, treating as invalid")
			ok = false
		}
	}()
	if err := impl.Validator(value); err != nil {
		log.Debug().Str("namespace", namespace).Err(err).Msg("registry: metadata rejected by validator")
		return false
	}
	return true
}

// ProcessMetadata runs value through the namespace's processor. An
// absent implementation or processor is the identity; a panicking
// processor yields the input unchanged, never a failure.
func (r *Registry) ProcessMetadata(namespace string, value any) (out any) {
	impl, exists := r.impls[namespace]
	if !exists || impl.Processor == nil {
		return value
	}
	defer func() {
		if p := recover(); p != nil {
			log.Warn().Str("namespace", namespace).Interface("panic_value", p).Msg("registry: processor panicked, returning value unchanged")
			out = value
		}
	}()
	return impl.Processor(value)
}
