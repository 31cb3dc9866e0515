package jsruntime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nino/internal/contentcache"
)

// ModuleHost is the fixed synthetic origin every specifier is canonicalized
// under, per §4.5.
const ModuleHost = "http://module-host/"

// ErrModuleNotFound is returned by Load when the path tail has no matching
// row in the Responses cache.
var ErrModuleNotFound = errors.New("jsruntime: module not found")

// Loader maps a script name to its source in the Responses cache; the
// isolate uses it to load a servlet task's own script. No require or
// import function is bound into goja, so a script cannot load other
// modules through it. The loader never touches the database directly,
// only through the cache's read-through Content method, so a load
// observes the same invalidation guarantees as every other response read.
type Loader struct {
	responses *contentcache.Responses
}

func NewLoader(responses *contentcache.Responses) *Loader {
	return &Loader{responses: responses}
}

// Resolve canonicalizes specifier under ModuleHost. Bare specifiers
// ("foo", "lib/foo") and already-canonical URLs both resolve to the same
// fixed origin; nino has no external module registry to consult.
func (l *Loader) Resolve(specifier string) string {
	if strings.HasPrefix(specifier, ModuleHost) {
		return specifier
	}
	return ModuleHost + strings.TrimPrefix(specifier, "/")
}

// responseName extracts the path tail used as the Responses cache key.
func responseName(canonicalURL string) string {
	return strings.TrimPrefix(canonicalURL, ModuleHost)
}

// Load fetches the source for a resolved module URL, preferring the
// transpiled form when the response's transpile flag is set.
func (l *Loader) Load(ctx context.Context, canonicalURL string) (source string, name string, err error) {
	name = responseName(canonicalURL)
	if name == "" {
		return "", "", fmt.Errorf("jsruntime: empty module specifier")
	}
	if _, ok := l.responses.Lookup(name); !ok {
		return "", "", fmt.Errorf("%w: %s", ErrModuleNotFound, name)
	}
	content, err := l.responses.Content(ctx, name)
	if err != nil {
		return "", "", fmt.Errorf("%w: %s: %v", ErrModuleNotFound, name, err)
	}
	return content, name, nil
}
