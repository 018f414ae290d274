package skill

import (
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/harun/skillhost/pkg/sqlguard"
)

// Source indicates where a manifest was discovered
type Source string

const (
	SourceLocal   Source = "local"
	SourcePackage Source = "package"
)

// Manifest is the normalized description of a skill. It is built once during
// discovery and not mutated afterwards.
type Manifest struct {
	Name         string
	Version      string
	Description  string
	EntryPoint   string
	Requires     []Requirement
	RequiresDB   bool
	SchemaFile   string
	ConfigSchema map[string]OptionSpec
	Permissions  sqlguard.Capabilities
	InternalDoc  string
	ExternalDoc  string

	Source Source
	// Path is the manifest's directory for local skills
	Path string

	// package-sourced manifests carry their own factory and files
	factory Factory
	files   fs.FS
}

// RequiredNames returns the names of the required skills in declaration order
func (m *Manifest) RequiredNames() []string {
	names := make([]string, 0, len(m.Requires))
	for _, req := range m.Requires {
		names = append(names, req.Name)
	}
	return names
}

// Requirement returns the requirement on name, if any
func (m *Manifest) Requirement(name string) (Requirement, bool) {
	for _, req := range m.Requires {
		if req.Name == name {
			return req, true
		}
	}
	return Requirement{}, false
}

// ReadSchema returns the DDL referenced by SchemaFile. It returns an empty
// string when the manifest declares no schema.
func (m *Manifest) ReadSchema() (string, error) {
	if m.SchemaFile == "" {
		return "", nil
	}

	var (
		data []byte
		err  error
	)
	if m.files != nil {
		data, err = fs.ReadFile(m.files, m.SchemaFile)
	} else {
		data, err = os.ReadFile(m.SchemaFile)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read schema file for %s: %w", m.Name, err)
	}
	return string(data), nil
}

// Requirement is one entry of a manifest's requires list, written as "name"
// or "name@constraint"
type Requirement struct {
	Name       string
	Constraint string
}

func (r Requirement) String() string {
	if r.Constraint == "" {
		return r.Name
	}
	return r.Name + "@" + r.Constraint
}

// SatisfiedBy reports whether version meets the requirement's constraint
func (r Requirement) SatisfiedBy(version string) (bool, error) {
	if r.Constraint == "" {
		return true, nil
	}
	c, err := semver.NewConstraint(r.Constraint)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint %s: %w", r.Constraint, err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("invalid version %s: %w", version, err)
	}
	return c.Check(v), nil
}

// OptionSpec describes one configuration option a skill accepts
type OptionSpec struct {
	Type        string
	Default     any
	Allowed     []any
	Required    bool
	Description string
}

// LoadedSkill pairs a manifest with its instantiated handle. Reloading
// produces a new LoadedSkill instead of changing an existing one.
type LoadedSkill struct {
	Manifest *Manifest
	Handle   Skill
	LoadedAt time.Time
}

// Name returns the manifest name
func (l *LoadedSkill) Name() string {
	return l.Manifest.Name
}

// DiscoveryError records a candidate that could not be turned into a manifest
type DiscoveryError struct {
	Source Source
	Path   string
	Name   string
	Err    error
}

func (e DiscoveryError) Error() string {
	where := e.Path
	if where == "" {
		where = e.Name
	}
	return fmt.Sprintf("discover %s skill %s: %v", e.Source, where, e.Err)
}

func (e DiscoveryError) Unwrap() error {
	return e.Err
}
