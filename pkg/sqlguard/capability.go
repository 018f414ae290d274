package sqlguard

import (
	"fmt"
	"strings"
)

// Capability is a single permission a skill holds over the shared database
type Capability uint8

const (
	Read Capability = 1 << iota
	Write
	DDL
)

// Capabilities is a set of capabilities
type Capabilities uint8

// NewCapabilities builds a set from individual capabilities
func NewCapabilities(caps ...Capability) Capabilities {
	var set Capabilities
	for _, c := range caps {
		set |= Capabilities(c)
	}
	return set
}

// Has reports whether every capability in required is present
func (c Capabilities) Has(required Capabilities) bool {
	return c&required == required
}

// Contains reports whether a single capability is present
func (c Capabilities) Contains(capability Capability) bool {
	return c&Capabilities(capability) != 0
}

// Union returns the set containing both c and other
func (c Capabilities) Union(other Capabilities) Capabilities {
	return c | other
}

// Missing returns the capabilities in required that c lacks
func (c Capabilities) Missing(required Capabilities) Capabilities {
	return required &^ c
}

// IsEmpty reports whether the set grants nothing
func (c Capabilities) IsEmpty() bool {
	return c == 0
}

// Names returns the lowercase names of the capabilities in the set
func (c Capabilities) Names() []string {
	var names []string
	if c.Contains(Read) {
		names = append(names, "read")
	}
	if c.Contains(Write) {
		names = append(names, "write")
	}
	if c.Contains(DDL) {
		names = append(names, "ddl")
	}
	return names
}

func (c Capabilities) String() string {
	if c.IsEmpty() {
		return "none"
	}
	return strings.Join(c.Names(), "|")
}

func (c Capability) String() string {
	return Capabilities(c).String()
}

// ParseCapability parses a capability name (read, write, ddl), case-insensitively
func ParseCapability(name string) (Capability, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "read":
		return Read, nil
	case "write":
		return Write, nil
	case "ddl":
		return DDL, nil
	default:
		return 0, fmt.Errorf("unknown capability %q", name)
	}
}

// ParseCapabilities parses a list of capability names into a set
func ParseCapabilities(names []string) (Capabilities, error) {
	var set Capabilities
	for _, name := range names {
		c, err := ParseCapability(name)
		if err != nil {
			return 0, err
		}
		set |= Capabilities(c)
	}
	return set, nil
}
