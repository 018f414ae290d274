package skill

import (
	"context"

	"github.com/harun/skillhost/pkg/cache"
	"github.com/harun/skillhost/pkg/eventbus"
	"github.com/harun/skillhost/pkg/sqlguard"
	"github.com/rs/zerolog"
)

// Skill is the fixed interface every skill implements
type Skill interface {
	// Commands returns the operations the host exposes for this skill
	Commands() []Command
}

// Command is one callable operation of a skill
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args []string) (any, error)
}

// SchemaInitializer is implemented by skills that prepare their tables in code
type SchemaInitializer interface {
	InitSchema(ctx context.Context, conn *sqlguard.Conn) error
}

// Subscriber is implemented by skills that listen on the event bus
type Subscriber interface {
	Subscribe(bus *eventbus.Scope) error
}

// Closer is implemented by skills holding resources of their own
type Closer interface {
	Close(ctx context.Context) error
}

// Env is what a factory receives to build a skill
type Env struct {
	Manifest *Manifest
	// Conn is nil unless the manifest sets requires_db
	Conn   *sqlguard.Conn
	Bus    *eventbus.Scope
	Cache  *cache.Cache
	Skills View
	Config map[string]any
	Logger zerolog.Logger
}

// Factory builds a skill instance
type Factory func(env Env) (Skill, error)

// FindCommand returns the named command of s
func FindCommand(s Skill, name string) (Command, bool) {
	for _, cmd := range s.Commands() {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return Command{}, false
}
