package skill

import (
	"fmt"
	"io/fs"
	"sort"
	"sync"
)

// Package is a skill compiled into the host binary together with its manifest
type Package struct {
	// Name identifies the package in discovery errors
	Name     string
	Manifest []byte
	Format   Format
	// Files holds the schema file referenced by the manifest, if any
	Files   fs.FS
	Factory Factory
}

// Catalog maps entry points to factories and holds the packaged skills
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
	packages  []Package
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		factories: make(map[string]Factory),
	}
}

// DefaultCatalog receives registrations made from init functions
var DefaultCatalog = NewCatalog()

// Register binds a factory to an entry point of DefaultCatalog. It panics on
// a duplicate registration.
func Register(entryPoint string, factory Factory) {
	if err := DefaultCatalog.Register(entryPoint, factory); err != nil {
		panic(err)
	}
}

// RegisterPackage adds a packaged skill to DefaultCatalog. It panics on an
// invalid package.
func RegisterPackage(pkg Package) {
	if err := DefaultCatalog.RegisterPackage(pkg); err != nil {
		panic(err)
	}
}

// Register binds a factory to an entry point used by local manifests
func (c *Catalog) Register(entryPoint string, factory Factory) error {
	if entryPoint == "" {
		return fmt.Errorf("entry point cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory for %s cannot be nil", entryPoint)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.factories[entryPoint]; exists {
		return fmt.Errorf("entry point %s already registered", entryPoint)
	}
	c.factories[entryPoint] = factory
	return nil
}

// RegisterPackage adds a packaged skill. The manifest is parsed at discovery
// time so a bad package surfaces as a discovery error.
func (c *Catalog) RegisterPackage(pkg Package) error {
	if len(pkg.Manifest) == 0 {
		return fmt.Errorf("package %s has no manifest", pkg.Name)
	}
	if pkg.Factory == nil {
		return fmt.Errorf("package %s has no factory", pkg.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.packages = append(c.packages, pkg)
	return nil
}

// Packages returns the registered packages in registration order
func (c *Catalog) Packages() []Package {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Package(nil), c.packages...)
}

// EntryPoints returns the registered entry points, sorted
func (c *Catalog) EntryPoints() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the factory bound to entryPoint
func (c *Catalog) Lookup(entryPoint string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[entryPoint]
	return f, ok
}

// Resolve returns the factory that builds m. Packaged manifests use their
// own factory, local ones are looked up by entry point.
func (c *Catalog) Resolve(m *Manifest) (Factory, error) {
	if m.factory != nil {
		return m.factory, nil
	}
	if f, ok := c.Lookup(m.EntryPoint); ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s (skill %s)", ErrUnknownEntryPoint, m.EntryPoint, m.Name)
}
