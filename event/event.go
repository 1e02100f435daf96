// Package event defines the events a state chart session exchanges: the ones
// executable content raises internally, the ones delivered from outside, and
// the platform error events reported when executable content fails.
package event

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Type classifies where an event came from.
type Type string

const (
	TypeInternal Type = "internal"
	TypeExternal Type = "external"
	TypePlatform Type = "platform"
)

// Platform error event names.
const (
	ErrorExecution     = "error.execution"
	ErrorCommunication = "error.communication"
)

// Event is a single state chart event. Values are immutable once queued.
type Event struct {
	Name       string
	Type       Type
	SendID     string
	Origin     string
	OriginType string
	InvokeID   string
	Data       any
}

// New creates an event with a normalized name.
func New(name string, typ Type, data any) Event {
	return Event{
		Name: Normalize(name),
		Type: typ,
		Data: data,
	}
}

// Internal creates an internal event, as produced by a raise.
func Internal(name string, data any) Event {
	return New(name, TypeInternal, data)
}

// Error creates a platform error event. The cause is carried as the event data
// so that error handling transitions can inspect it.
func Error(name string, cause error) Event {
	data := map[string]any{}
	if cause != nil {
		data["message"] = cause.Error()
	}

	return New(name, TypePlatform, data)
}

// Normalize trims the name and converts it to Unicode NFC so that descriptors
// written in different normal forms still match.
func Normalize(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// IsError reports whether the event is one of the error.* family.
func (e Event) IsError() bool {
	return e.Name == "error" || strings.HasPrefix(e.Name, "error.")
}

// Matches reports whether the event name matches an SCXML event descriptor:
// the descriptor must equal the name or be a dot-separated prefix of it.
// A trailing ".*" and the bare "*" wildcard are accepted.
func (e Event) Matches(descriptor string) bool {
	descriptor = strings.TrimSuffix(Normalize(descriptor), ".*")
	descriptor = strings.TrimSuffix(descriptor, ".")

	if descriptor == "*" {
		return true
	}

	if descriptor == "" {
		return false
	}

	return e.Name == descriptor || strings.HasPrefix(e.Name, descriptor+".")
}

func (e Event) String() string {
	if e.SendID != "" {
		return fmt.Sprintf("%s(%s, sendid=%s)", e.Name, e.Type, e.SendID)
	}

	return fmt.Sprintf("%s(%s)", e.Name, e.Type)
}
