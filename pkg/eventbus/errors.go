package eventbus

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTopic is returned when a topic is empty
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrNilHandler is returned when a nil handler is subscribed
	ErrNilHandler = errors.New("handler cannot be nil")
)

// HandlerError wraps a subscriber failure with the delivery it belongs to
type HandlerError struct {
	Topic          string
	SubscriptionID string
	Owner          string
	Err            error
}

func (e *HandlerError) Error() string {
	if e.Owner != "" {
		return fmt.Sprintf("handler %s (%s) on topic %q: %v", e.SubscriptionID, e.Owner, e.Topic, e.Err)
	}
	return fmt.Sprintf("handler %s on topic %q: %v", e.SubscriptionID, e.Topic, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError carries a value recovered from a panicking handler
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}
