package sqlguard

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harun/skillhost/internal/observability"
	"github.com/harun/skillhost/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "skillhost/sqlguard"

// Source hands out the shared database handle. It returns ErrConnectionClosed
// once the owner has released it.
type Source interface {
	DB() (*sql.DB, error)
}

// SourceFunc adapts a function to Source
type SourceFunc func() (*sql.DB, error)

// DB implements Source
func (f SourceFunc) DB() (*sql.DB, error) {
	return f()
}

// Option configures a Conn
type Option func(*Conn)

// WithDDLPolicy sets which capability DDL statements require
func WithDDLPolicy(policy DDLPolicy) Option {
	return func(c *Conn) {
		c.policy = policy
	}
}

// WithTimeout bounds statements whose context carries no deadline
func WithTimeout(timeout time.Duration) Option {
	return func(c *Conn) {
		c.timeout = timeout
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Conn) {
		c.logger = logger
	}
}

// Conn is the only path through which a skill reaches the shared database.
// Every statement is classified and checked against the capabilities fixed at
// construction before it is handed to the driver.
type Conn struct {
	source  Source
	skill   string
	granted Capabilities
	policy  DDLPolicy
	timeout time.Duration
	logger  zerolog.Logger
}

// New creates a permission-enforcing connection for skill
func New(source Source, skill string, granted Capabilities, opts ...Option) *Conn {
	c := &Conn{
		source:  source,
		skill:   skill,
		granted: granted,
		policy:  DDLRequiresDDL,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "sqlguard").Str("skill", skill).Logger()
	return c
}

// Skill returns the name of the skill the connection belongs to
func (c *Conn) Skill() string {
	return c.skill
}

// Capabilities returns the granted capability set
func (c *Conn) Capabilities() Capabilities {
	return c.granted
}

// Policy returns the DDL policy in effect
func (c *Conn) Policy() DDLPolicy {
	return c.policy
}

// Check classifies query and verifies every statement in it is permitted.
// It never touches the database.
func (c *Conn) Check(query string) (Class, error) {
	classes := Classify(query)
	for _, class := range classes {
		if satisfies(c.granted, class, c.policy) {
			continue
		}
		required := RequiredCapabilities(class, c.policy)
		observability.RecordPermissionDenied(c.skill, class.String())
		c.logger.Warn().
			Str("class", class.String()).
			Str("required", required.String()).
			Str("granted", c.granted.String()).
			Msg("Statement denied")
		return class, &PermissionDeniedError{
			Skill:     c.skill,
			Class:     class,
			Required:  required,
			Granted:   c.granted,
			Statement: preview(query),
		}
	}
	return ClassifyOne(query), nil
}

// Exec runs a statement that returns no rows
func (c *Conn) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	class, db, err := c.prepare(ctx, query)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "sqlguard.Exec",
		attribute.String("skill", c.skill),
		attribute.String("class", class.String()),
	)
	defer span.End()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	result, err := db.ExecContext(ctx, query, args...)
	observability.RecordStatement(c.skill, class.String(), time.Since(start), err == nil)
	if err != nil {
		tracing.Fail(span, err)
		return nil, fmt.Errorf("exec %s statement: %w", class, err)
	}
	return result, nil
}

// Query runs a statement that returns rows. The caller must close the rows.
// No timeout is applied here since the rows outlive the call.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	class, db, err := c.prepare(ctx, query)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := db.QueryContext(ctx, query, args...)
	observability.RecordStatement(c.skill, class.String(), time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("query %s statement: %w", class, err)
	}
	return rows, nil
}

// Result is the outcome of Execute
type Result struct {
	Class        Class
	Columns      []string
	Rows         [][]any
	RowsAffected int64
	LastInsertID int64
}

// Execute runs query and materializes its outcome: rows for reads, affected
// counts for everything else.
func (c *Conn) Execute(ctx context.Context, query string, args ...any) (*Result, error) {
	class, db, err := c.prepare(ctx, query)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "sqlguard.Execute",
		attribute.String("skill", c.skill),
		attribute.String("class", class.String()),
	)
	defer span.End()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	var result *Result
	if class == ClassRead {
		result, err = queryAll(ctx, db, query, args)
	} else {
		result, err = execOne(ctx, db, query, args)
	}
	observability.RecordStatement(c.skill, class.String(), time.Since(start), err == nil)
	if err != nil {
		tracing.Fail(span, err)
		return nil, fmt.Errorf("execute %s statement: %w", class, err)
	}

	result.Class = class
	return result, nil
}

func (c *Conn) prepare(ctx context.Context, query string) (Class, *sql.DB, error) {
	class, err := c.Check(query)
	if err != nil {
		observability.RecordSecurityAudit(ctx, c.skill, "statement_denied", "denied", map[string]any{
			"class": class.String(),
		})
		return class, nil, err
	}

	db, err := c.source.DB()
	if err != nil {
		return class, nil, err
	}
	if db == nil {
		return class, nil, ErrConnectionClosed
	}

	return class, db, nil
}

func (c *Conn) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func queryAll(ctx context.Context, db *sql.DB, query string, args []any) (*Result, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &Result{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func execOne(ctx context.Context, db *sql.DB, query string, args []any) (*Result, error) {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	// not every driver reports these; zero is fine
	if n, err := res.RowsAffected(); err == nil {
		result.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil {
		result.LastInsertID = id
	}
	return result, nil
}
