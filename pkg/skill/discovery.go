package skill

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/harun/skillhost/internal/observability"
	"github.com/rs/zerolog"
)

// ManifestStore discovers manifests in a local skills directory and in the
// packages registered with a catalog
type ManifestStore struct {
	logger   zerolog.Logger
	parser   *ManifestParser
	localDir string
	catalog  *Catalog
}

// NewManifestStore creates a store. An empty localDir disables the local source.
func NewManifestStore(logger zerolog.Logger, localDir string, catalog *Catalog) *ManifestStore {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &ManifestStore{
		logger:   logger.With().Str("component", "manifest-store").Logger(),
		parser:   NewManifestParser(logger),
		localDir: localDir,
		catalog:  catalog,
	}
}

// LocalDir returns the local skills directory
func (s *ManifestStore) LocalDir() string {
	return s.localDir
}

// Discover returns every valid manifest sorted by name, together with the
// candidates that had to be skipped. One bad skill never hides the others.
func (s *ManifestStore) Discover() ([]*Manifest, []DiscoveryError) {
	var discoveryErrs []DiscoveryError

	packaged, errs := s.scanPackages()
	discoveryErrs = append(discoveryErrs, errs...)

	local, errs := s.scanLocal()
	discoveryErrs = append(discoveryErrs, errs...)

	byName := make(map[string]*Manifest, len(packaged)+len(local))
	for _, m := range packaged {
		byName[m.Name] = m
	}
	for _, m := range local {
		if existing, ok := byName[m.Name]; ok {
			s.logger.Warn().
				Str("name", m.Name).
				Str("local", m.Path).
				Str("entry_point", existing.EntryPoint).
				Msg("Local skill overrides packaged skill")
		}
		byName[m.Name] = m
	}

	manifests := make([]*Manifest, 0, len(byName))
	for _, m := range byName {
		manifests = append(manifests, m)
	}
	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].Name < manifests[j].Name
	})

	for _, de := range discoveryErrs {
		observability.RecordDiscoveryError(string(de.Source))
		s.logger.Warn().Err(de.Err).
			Str("source", string(de.Source)).
			Str("path", de.Path).
			Str("name", de.Name).
			Msg("Skipped skill during discovery")
	}

	s.logger.Info().
		Int("count", len(manifests)).
		Int("errors", len(discoveryErrs)).
		Msg("Skill discovery completed")

	return manifests, discoveryErrs
}

// DiscoverOne re-reads the named skill from its sources
func (s *ManifestStore) DiscoverOne(name string) (*Manifest, error) {
	manifests, errs := s.Discover()
	for _, m := range manifests {
		if m.Name == name {
			return m, nil
		}
	}
	for _, de := range errs {
		if de.Name == name {
			return nil, de
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, name)
}

// LoadDir parses the manifest of a single local skill directory
func (s *ManifestStore) LoadDir(dir string) (*Manifest, error) {
	path, ok, err := findManifestFile(dir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no manifest in %s", ErrSkillNotFound, dir)
	}
	return s.parser.LoadFile(path)
}

func (s *ManifestStore) scanLocal() ([]*Manifest, []DiscoveryError) {
	if s.localDir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(s.localDir)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug().Str("dir", s.localDir).Msg("Skills directory does not exist, skipping")
			return nil, nil
		}
		return nil, []DiscoveryError{{
			Source: SourceLocal,
			Path:   s.localDir,
			Err:    fmt.Errorf("failed to read skills directory: %w", err),
		}}
	}

	var (
		manifests []*Manifest
		errs      []DiscoveryError
		seen      = make(map[string]string)
	)

	// ReadDir returns entries sorted by file name
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(s.localDir, entry.Name())
		path, ok, err := findManifestFile(dir)
		if err != nil {
			errs = append(errs, DiscoveryError{Source: SourceLocal, Path: dir, Name: entry.Name(), Err: err})
			continue
		}
		if !ok {
			s.logger.Debug().Str("dir", dir).Msg("Directory does not contain a skill manifest, skipping")
			continue
		}

		m, err := s.parser.LoadFile(path)
		if err != nil {
			errs = append(errs, DiscoveryError{Source: SourceLocal, Path: path, Name: entry.Name(), Err: err})
			continue
		}

		if first, dup := seen[m.Name]; dup {
			errs = append(errs, DiscoveryError{
				Source: SourceLocal,
				Path:   path,
				Name:   m.Name,
				Err:    fmt.Errorf("%w: %s already defined in %s", ErrDuplicateSkill, m.Name, first),
			})
			continue
		}
		seen[m.Name] = m.Path

		manifests = append(manifests, m)
		s.logger.Debug().
			Str("name", m.Name).
			Str("path", m.Path).
			Msg("Discovered local skill")
	}

	return manifests, errs
}

func (s *ManifestStore) scanPackages() ([]*Manifest, []DiscoveryError) {
	var (
		manifests []*Manifest
		errs      []DiscoveryError
		seen      = make(map[string]bool)
	)

	for _, pkg := range s.catalog.Packages() {
		format := pkg.Format
		if format == "" {
			format = FormatYAML
		}

		m, err := s.parser.Parse(pkg.Manifest, format)
		if err != nil {
			errs = append(errs, DiscoveryError{Source: SourcePackage, Name: pkg.Name, Err: err})
			continue
		}
		if seen[m.Name] {
			errs = append(errs, DiscoveryError{
				Source: SourcePackage,
				Name:   m.Name,
				Err:    fmt.Errorf("%w: package %s redefines %s", ErrDuplicateSkill, pkg.Name, m.Name),
			})
			continue
		}
		seen[m.Name] = true

		m.Source = SourcePackage
		m.factory = pkg.Factory
		m.files = pkg.Files
		manifests = append(manifests, m)
	}

	return manifests, errs
}

func findManifestFile(dir string) (string, bool, error) {
	for _, name := range ManifestFileNames {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				continue
			}
			return path, true, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to check for %s: %w", name, err)
		}
	}
	return "", false, nil
}
