package skill

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/harun/skillhost/pkg/sqlguard"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ManifestFileNames are the manifest file names looked up in a skill
// directory, in priority order
var ManifestFileNames = []string{"skill.yaml", "skill.yml", "skill.json"}

var nameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Format is the encoding of a manifest document
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatForPath picks the format from a file extension
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

type manifestDoc struct {
	Name         string         `yaml:"name" json:"name"`
	Version      string         `yaml:"version" json:"version"`
	Description  string         `yaml:"description" json:"description"`
	EntryPoint   string         `yaml:"entry_point" json:"entry_point"`
	Requires     []string       `yaml:"requires" json:"requires"`
	RequiresDB   bool           `yaml:"requires_db" json:"requires_db"`
	SchemaFile   string         `yaml:"schema_file" json:"schema_file"`
	ConfigSchema map[string]any `yaml:"config_schema" json:"config_schema"`
	Permissions  []string       `yaml:"permissions" json:"permissions"`
	InternalDoc  string         `yaml:"internal_doc" json:"internal_doc"`
	ExternalDoc  string         `yaml:"external_doc" json:"external_doc"`
}

// ManifestParser decodes and validates manifest documents
type ManifestParser struct {
	logger       zerolog.Logger
	schemaLoader gojsonschema.JSONLoader
}

// NewManifestParser creates a new manifest parser
func NewManifestParser(logger zerolog.Logger) *ManifestParser {
	return &ManifestParser{
		logger:       logger.With().Str("component", "manifest-parser").Logger(),
		schemaLoader: gojsonschema.NewStringLoader(ManifestSchema),
	}
}

// LoadFile parses the manifest at path. Relative schema files are resolved
// against the manifest's directory.
func (p *ManifestParser) LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	m, err := p.Parse(data, FormatForPath(path))
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	m.Source = SourceLocal
	m.Path = dir
	if m.SchemaFile != "" && !filepath.IsAbs(m.SchemaFile) {
		m.SchemaFile = filepath.Join(dir, m.SchemaFile)
	}

	p.logger.Debug().
		Str("name", m.Name).
		Str("version", m.Version).
		Str("path", path).
		Msg("Loaded manifest")

	return m, nil
}

// Parse decodes, validates and normalizes a manifest document
func (p *ManifestParser) Parse(data []byte, format Format) (*Manifest, error) {
	var raw map[string]any
	if err := decode(data, format, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse manifest: %v", ErrMalformedManifest, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: empty manifest", ErrMalformedManifest)
	}

	if err := p.validateSchema(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}

	var doc manifestDoc
	if err := decode(data, format, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to decode manifest: %v", ErrMalformedManifest, err)
	}

	_, declared := raw["permissions"]
	m, err := buildManifest(doc, declared)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}
	return m, nil
}

func decode(data []byte, format Format, out any) error {
	if format == FormatJSON {
		return json.Unmarshal(data, out)
	}
	return yaml.Unmarshal(data, out)
}

func (p *ManifestParser) validateSchema(raw map[string]any) error {
	result, err := gojsonschema.Validate(p.schemaLoader, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
	}

	return nil
}

func buildManifest(doc manifestDoc, permissionsDeclared bool) (*Manifest, error) {
	if !nameRegex.MatchString(doc.Name) {
		return nil, fmt.Errorf("invalid skill name %q", doc.Name)
	}

	if _, err := semver.NewVersion(doc.Version); err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", doc.Version, err)
	}

	requires, err := ParseRequirements(doc.Requires)
	if err != nil {
		return nil, err
	}

	schema, err := NormalizeConfigSchema(doc.ConfigSchema)
	if err != nil {
		return nil, err
	}

	perms, err := sqlguard.ParseCapabilities(doc.Permissions)
	if err != nil {
		return nil, err
	}
	if !permissionsDeclared && doc.RequiresDB {
		perms = sqlguard.NewCapabilities(sqlguard.Read)
	}

	return &Manifest{
		Name:         doc.Name,
		Version:      doc.Version,
		Description:  doc.Description,
		EntryPoint:   doc.EntryPoint,
		Requires:     requires,
		RequiresDB:   doc.RequiresDB,
		SchemaFile:   doc.SchemaFile,
		ConfigSchema: schema,
		Permissions:  perms,
		InternalDoc:  doc.InternalDoc,
		ExternalDoc:  doc.ExternalDoc,
	}, nil
}

// ParseRequirements parses requires entries. Later duplicates of a name are
// dropped.
func ParseRequirements(entries []string) ([]Requirement, error) {
	requires := make([]Requirement, 0, len(entries))
	seen := make(map[string]bool, len(entries))

	for _, entry := range entries {
		req, err := ParseRequirement(entry)
		if err != nil {
			return nil, err
		}
		if seen[req.Name] {
			continue
		}
		seen[req.Name] = true
		requires = append(requires, req)
	}

	return requires, nil
}

// ParseRequirement parses "name" or "name@constraint"
func ParseRequirement(entry string) (Requirement, error) {
	name, constraint, _ := strings.Cut(strings.TrimSpace(entry), "@")
	name = strings.TrimSpace(name)
	constraint = strings.TrimSpace(constraint)

	if !nameRegex.MatchString(name) {
		return Requirement{}, fmt.Errorf("invalid requirement %q", entry)
	}
	if constraint != "" {
		if _, err := semver.NewConstraint(constraint); err != nil {
			return Requirement{}, fmt.Errorf("invalid version constraint in requirement %q: %w", entry, err)
		}
	}

	return Requirement{Name: name, Constraint: constraint}, nil
}
