package skill

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedManifest is returned when a manifest cannot be parsed or fails validation
	ErrMalformedManifest = errors.New("malformed manifest")

	// ErrDuplicateSkill is returned when two skills share a name
	ErrDuplicateSkill = errors.New("duplicate skill")

	// ErrSkillNotFound is returned when a named skill does not exist
	ErrSkillNotFound = errors.New("skill not found")

	// ErrUnknownEntryPoint is returned when no factory is registered for an entry point
	ErrUnknownEntryPoint = errors.New("unknown entry point")

	// ErrInvalidConfig is returned when supplied configuration does not match a config schema
	ErrInvalidConfig = errors.New("invalid skill config")

	// ErrHasDependents is returned when removing a skill others still require
	ErrHasDependents = errors.New("skill has dependents")
)

// CycleDetectedError reports a dependency cycle. Cycle is a closed path: the
// first and last names are equal and each name requires the next.
type CycleDetectedError struct {
	Cycle []string
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// MissingDependencyError reports a requirement with no matching skill
type MissingDependencyError struct {
	Skill   string
	Missing string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("skill %s requires missing skill %s", e.Skill, e.Missing)
}

// VersionConflictError reports a requirement whose version constraint is not met
type VersionConflictError struct {
	Skill      string
	Dependency string
	Constraint string
	Actual     string
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("skill %s requires %s %s, found %s", e.Skill, e.Dependency, e.Constraint, e.Actual)
}

// DependencyFailedError marks a skill skipped because something it requires was skipped
type DependencyFailedError struct {
	Skill      string
	Dependency string
	Err        error
}

func (e *DependencyFailedError) Error() string {
	return fmt.Sprintf("skill %s skipped: dependency %s failed: %v", e.Skill, e.Dependency, e.Err)
}

func (e *DependencyFailedError) Unwrap() error {
	return e.Err
}
