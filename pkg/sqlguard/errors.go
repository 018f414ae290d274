package sqlguard

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is matched by every *PermissionDeniedError
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConnectionClosed is returned once the shared connection has been released
	ErrConnectionClosed = errors.New("connection closed")
)

// PermissionDeniedError reports a statement the caller's capabilities do not cover
type PermissionDeniedError struct {
	Skill     string
	Class     Class
	Required  Capabilities
	Granted   Capabilities
	Statement string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: skill %q needs %s for %s statement %q (granted %s)",
		e.Skill, e.Required, e.Class, e.Statement, e.Granted)
}

// Is makes errors.Is(err, ErrPermissionDenied) match
func (e *PermissionDeniedError) Is(target error) bool {
	return target == ErrPermissionDenied
}

const maxStatementPreview = 80

func preview(query string) string {
	if len(query) <= maxStatementPreview {
		return query
	}
	return query[:maxStatementPreview] + "..."
}
