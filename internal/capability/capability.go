// Package capability implements the registry behind the API's
// extensibility model. A capability is an optional, versioned unit of
// server behavior identified by a namespaced id; clients discover
// enabled capabilities before use and ignore the rest.
package capability

import (
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"
)

// Descriptor is the static identity of a capability. Immutable once
// registered.
type Descriptor struct {
	Namespace string
	Version   string
	SchemaURL string
}

// ID returns the full capability id, e.g. "storefront.tracking@1.0".
func (d Descriptor) ID() string {
	return d.Namespace + "@" + d.Version
}

func (d Descriptor) validate() error {
	if d.Namespace == "" {
		return fmt.Errorf("capability: namespace is required")
	}
	if strings.Contains(d.Namespace, "@") {
		return fmt.Errorf("capability: namespace %q must not contain '@'", d.Namespace)
	}
	if _, err := semver.NewVersion(d.Version); err != nil {
		return fmt.Errorf("capability: invalid version %q for namespace %s: %w", d.Version, d.Namespace, err)
	}
	return nil
}

// Namespace extracts the namespace part of a metadata key, the portion
// before the '@' version suffix. Keys without a suffix are their own
// namespace.
func Namespace(key string) string {
	if i := strings.IndexByte(key, '@'); i >= 0 {
		return key[:i]
	}
	return key
}

// Implementation binds a descriptor to behavior. All three extension
// points are independently optional.
type Implementation struct {
	Descriptor Descriptor

	// Routes mounts the capability's HTTP routes. Only consulted for
	// enabled capabilities; routes of a disabled capability are never
	// mounted.
	Routes func(chi.Router)

	// Validator reports whether a metadata value under this namespace
	// is acceptable. Absent validator means accept-all.
	Validator func(value any) error

	// Processor transforms a metadata value. Absent processor means
	// identity. Processors must be idempotent.
	Processor func(value any) any
}

// Settings is one capability's entry in the configuration file.
// A namespace with no entry, or with Enabled false, is disabled;
// nothing activates without explicit opt-in.
type Settings struct {
	Enabled bool           `yaml:"enabled"`
	Config  map[string]any `yaml:"config"`
}

// LoadSettings reads the capability configuration file, a YAML mapping
// from namespace to settings.
func LoadSettings(path string) (map[string]Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Settings{}, nil
		}
		return nil, fmt.Errorf("capability: failed to read settings %s: %w", path, err)
	}

	settings := make(map[string]Settings)
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("capability: failed to parse settings %s: %w", path, err)
	}
	return settings, nil
}
