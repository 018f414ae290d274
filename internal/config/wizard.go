package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard on stdin and stdout
func NewWizard() *Wizard {
	return NewWizardIO(os.Stdin, os.Stdout)
}

// NewWizardIO creates a wizard reading answers from in and prompting on out
func NewWizardIO(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run runs the interactive configuration wizard. Empty answers keep the
// value from base, or the defaults when base is nil.
func (w *Wizard) Run(base *Config) (*Config, error) {
	fmt.Fprintln(w.out, "=== skillhost configuration ===")
	fmt.Fprintln(w.out)

	cfg := DefaultConfig()
	if base != nil {
		copied := *base
		cfg = &copied
	}
	validator := NewValidator()

	// Storage
	fmt.Fprintln(w.out, "Storage:")
	dir, err := w.ask("Skills directory", cfg.Skills.LocalDir)
	if err != nil {
		return nil, err
	}
	cfg.Skills.LocalDir = dir

	dbPath, err := w.ask("Database path (:memory: for none)", cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	cfg.Database.Path = dbPath
	fmt.Fprintln(w.out)

	// Loading policies
	fmt.Fprintln(w.out, "Dependency policy options:")
	fmt.Fprintln(w.out, "  skip-missing - skip a failing skill and its dependents (default)")
	fmt.Fprintln(w.out, "  strict       - abort the whole load on the first failure")
	for {
		policy, err := w.ask("Dependency policy", cfg.Skills.DependencyPolicy)
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateDependencyPolicy(policy); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Skills.DependencyPolicy = policy
		break
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "DDL policy options:")
	fmt.Fprintln(w.out, "  ddl   - schema changes need the ddl permission (default)")
	fmt.Fprintln(w.out, "  write - the write permission also allows schema changes")
	for {
		policy, err := w.ask("DDL policy", cfg.Skills.DDLPolicy)
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateDDLPolicy(policy); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Skills.DDLPolicy = policy
		break
	}

	watch, err := w.confirm("Reload skills when their files change?", cfg.Skills.Watch)
	if err != nil {
		return nil, err
	}
	cfg.Skills.Watch = watch
	fmt.Fprintln(w.out)

	// Event bus
	mode, err := w.ask("Event bus mode (silent/fail-fast/collect)", cfg.EventBus.Mode)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateBusMode(mode); err != nil {
		fmt.Fprintf(w.out, "Warning: %v, using default (silent)\n", err)
		mode = "silent"
	}
	cfg.EventBus.Mode = mode
	fmt.Fprintln(w.out)

	// Log Level
	fmt.Fprintln(w.out, "Logging:")
	level, err := w.ask("Log level (debug/info/warn/error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateLogLevel(level); err != nil {
		fmt.Fprintf(w.out, "Warning: %v, using default (info)\n", err)
	} else {
		cfg.Logging.Level = level
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

func (w *Wizard) ask(prompt, current string) (string, error) {
	if current != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", prompt, current)
	} else {
		fmt.Fprintf(w.out, "%s: ", prompt)
	}
	answer, err := w.readLine()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return current, nil
	}
	return answer, nil
}

func (w *Wizard) confirm(prompt string, current bool) (bool, error) {
	def := "n"
	if current {
		def = "y"
	}
	fmt.Fprintf(w.out, "%s (y/n) [%s]: ", prompt, def)
	answer, err := w.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "":
		return current, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
