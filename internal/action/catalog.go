package action

import (
	"fmt"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
)

// Catalog is the registry of action definitions for a session.
type Catalog struct {
	mu    sync.RWMutex
	defs  map[Kind]*Definition
	order []Kind
}

// NewCatalog constructs an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{defs: make(map[Kind]*Definition)}
}

func (c *Catalog) register(def *Definition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.defs[def.kind]; exists {
		return fmt.Errorf("action %q: already defined", def.kind)
	}
	c.defs[def.kind] = def
	c.order = append(c.order, def.kind)
	return nil
}

// Lookup returns the definition registered for kind.
func (c *Catalog) Lookup(kind Kind) (*Definition, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[kind]
	return def, ok
}

// Kinds lists registered kinds sorted by name.
func (c *Catalog) Kinds() []Kind {
	c.mu.RLock()
	kinds := append([]Kind(nil), c.order...)
	c.mu.RUnlock()
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Schema bundles the payload schema of every registered kind.
func (c *Catalog) Schema() *jsonschema.Schema {
	kinds := c.Kinds()
	variants := make([]*jsonschema.Schema, 0, len(kinds))
	for _, kind := range kinds {
		def, _ := c.Lookup(kind)
		variants = append(variants, def.Schema())
	}
	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Action Catalog",
		Description: "Payload schemas of every registered action kind.",
		OneOf:       variants,
	}
}
