package skill

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Policy decides how far a dependency failure reaches
type Policy string

const (
	// PolicyStrict fails the whole batch on the first dependency problem
	PolicyStrict Policy = "strict"
	// PolicySkipMissing skips the affected skill and everything that requires it
	PolicySkipMissing Policy = "skip-missing"
)

// ParsePolicy parses strict or skip-missing. Empty means skip-missing.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicySkipMissing:
		return PolicySkipMissing, nil
	case PolicyStrict:
		return PolicyStrict, nil
	default:
		return "", fmt.Errorf("unknown dependency policy %q", s)
	}
}

// Plan is a resolved load order
type Plan struct {
	// Order lists manifests so that every skill follows the skills it requires
	Order []*Manifest
	// Skipped holds every skill left out of Order with the reason
	Skipped map[string]error
}

// Names returns the names in Order
func (p *Plan) Names() []string {
	names := make([]string, 0, len(p.Order))
	for _, m := range p.Order {
		names = append(names, m.Name)
	}
	return names
}

// DependencyResolver orders manifests by their requirements
type DependencyResolver struct {
	logger zerolog.Logger
	policy Policy
}

// NewDependencyResolver creates a resolver applying policy
func NewDependencyResolver(logger zerolog.Logger, policy Policy) *DependencyResolver {
	if policy == "" {
		policy = PolicySkipMissing
	}
	return &DependencyResolver{
		logger: logger.With().Str("component", "dependency-resolver").Str("policy", string(policy)).Logger(),
		policy: policy,
	}
}

// Policy returns the active failure policy
func (r *DependencyResolver) Policy() Policy {
	return r.policy
}

const (
	unvisited = iota
	visiting
	done
)

// Order computes a depth-first topological order. Roots and each skill's
// requirements are visited in ascending name order so the result is the
// same on every run. Under PolicyStrict the first problem is returned as the
// error; otherwise problems are reported in Plan.Skipped.
func (r *DependencyResolver) Order(manifests []*Manifest) (*Plan, error) {
	byName := make(map[string]*Manifest, len(manifests))
	for _, m := range manifests {
		if _, dup := byName[m.Name]; dup {
			r.logger.Warn().Str("name", m.Name).Msg("Ignoring duplicate manifest")
			continue
		}
		byName[m.Name] = m
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	plan := &Plan{Skipped: make(map[string]error)}

	for _, name := range names {
		if err := r.checkRequirements(byName[name], byName); err != nil {
			if r.policy == PolicyStrict {
				return nil, err
			}
			plan.Skipped[name] = err
		}
	}

	state := make(map[string]int, len(byName))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return r.cycle(stack, name, plan)
		}

		state[name] = visiting
		stack = append(stack, name)

		m := byName[name]
		deps := sortedRequirements(m)
		for _, dep := range deps {
			if _, ok := byName[dep]; !ok {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		state[name] = done

		if _, skipped := plan.Skipped[name]; skipped {
			return nil
		}
		for _, dep := range deps {
			if depErr, skipped := plan.Skipped[dep]; skipped {
				plan.Skipped[name] = &DependencyFailedError{Skill: name, Dependency: dep, Err: depErr}
				return nil
			}
		}

		plan.Order = append(plan.Order, m)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	for name, err := range plan.Skipped {
		r.logger.Warn().Err(err).Str("skill", name).Msg("Skill skipped by dependency resolution")
	}
	r.logger.Debug().
		Int("count", len(plan.Order)).
		Strs("order", plan.Names()).
		Msg("Computed load order")

	return plan, nil
}

// cycle handles a back edge to name. The stack holds the current path.
func (r *DependencyResolver) cycle(stack []string, name string, plan *Plan) error {
	start := 0
	for i, n := range stack {
		if n == name {
			start = i
			break
		}
	}
	path := make([]string, 0, len(stack)-start+1)
	path = append(path, stack[start:]...)
	path = append(path, name)

	err := &CycleDetectedError{Cycle: path}
	r.logger.Error().Strs("cycle", path).Msg("Dependency cycle detected")

	if r.policy == PolicyStrict {
		return err
	}
	for _, member := range path {
		if _, skipped := plan.Skipped[member]; !skipped {
			plan.Skipped[member] = err
		}
	}
	return nil
}

func (r *DependencyResolver) checkRequirements(m *Manifest, byName map[string]*Manifest) error {
	for _, req := range m.Requires {
		dep, ok := byName[req.Name]
		if !ok {
			return &MissingDependencyError{Skill: m.Name, Missing: req.Name}
		}
		ok, err := req.SatisfiedBy(dep.Version)
		if err != nil {
			return fmt.Errorf("skill %s: %w", m.Name, err)
		}
		if !ok {
			return &VersionConflictError{
				Skill:      m.Name,
				Dependency: req.Name,
				Constraint: req.Constraint,
				Actual:     dep.Version,
			}
		}
	}
	return nil
}

func sortedRequirements(m *Manifest) []string {
	names := m.RequiredNames()
	sort.Strings(names)
	return names
}

// Dependents returns the skills that require name directly or transitively, sorted
func Dependents(manifests []*Manifest, name string) []string {
	reverse := make(map[string][]string)
	for _, m := range manifests {
		for _, req := range m.Requires {
			reverse[req.Name] = append(reverse[req.Name], m.Name)
		}
	}

	seen := map[string]bool{name: true}
	queue := []string{name}
	var out []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dependent := range reverse[current] {
			if seen[dependent] {
				continue
			}
			seen[dependent] = true
			out = append(out, dependent)
			queue = append(queue, dependent)
		}
	}

	sort.Strings(out)
	return out
}
