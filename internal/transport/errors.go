package transport

import "fmt"

// ErrorKind classifies transport failures for listeners.
type ErrorKind string

const (
	ErrorKindConnection   ErrorKind = "connection"
	ErrorKindSubscription ErrorKind = "subscription"
	ErrorKindMessage      ErrorKind = "message"
)

// Error is a typed transport failure. Terminal reports True only when the
// client has given up reconnecting.
type Error struct {
	Kind     ErrorKind
	Topic    string
	Terminal bool
	Err      error
}

func (e Error) Error() string {
	if e.Topic != "" {
		return fmt.Sprintf("transport %s error on %s: %v", e.Kind, e.Topic, e.Err)
	}
	return fmt.Sprintf("transport %s error: %v", e.Kind, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}
