package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a successful backend write
type EventType string

const (
	UserRegistered     EventType = "user.registered"
	UserProfileUpdated EventType = "user.profile_updated"
	UserPromoted       EventType = "user.promoted"
	UserDemoted        EventType = "user.demoted"
	UserDeleted        EventType = "user.deleted"

	TeacherApplied  EventType = "teacher.applied"
	TeacherAccepted EventType = "teacher.accepted"
	TeacherRejected EventType = "teacher.rejected"

	CourseSubmitted EventType = "course.submitted"
	CourseUpdated   EventType = "course.updated"
	CourseDeleted   EventType = "course.deleted"
	CourseAccepted  EventType = "course.accepted"
	CourseRejected  EventType = "course.rejected"

	EnrollmentRequested EventType = "enrollment.requested"
	EnrollmentAccepted  EventType = "enrollment.accepted"
	EnrollmentRejected  EventType = "enrollment.rejected"

	PaymentConfirmed EventType = "payment.confirmed"
	PaymentDeleted   EventType = "payment.deleted"
)

// AllEventTypes lists every event the backend emits
var AllEventTypes = []EventType{
	UserRegistered, UserProfileUpdated, UserPromoted, UserDemoted, UserDeleted,
	TeacherApplied, TeacherAccepted, TeacherRejected,
	CourseSubmitted, CourseUpdated, CourseDeleted, CourseAccepted, CourseRejected,
	EnrollmentRequested, EnrollmentAccepted, EnrollmentRejected,
	PaymentConfirmed, PaymentDeleted,
}

const (
	DefaultSource  = "learnio-backend"
	CurrentVersion = "1.0"
)

// Event is the envelope published for every backend write
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Subject   string                 `json:"subject"`
	Actor     string                 `json:"actor,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent builds an event about subject performed by actor
func NewEvent(eventType EventType, subject, actor string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    DefaultSource,
		Version:   CurrentVersion,
		Timestamp: time.Now().UTC(),
		Subject:   subject,
		Actor:     actor,
		Data:      data,
	}
}

// Marshal encodes the event for the wire
func (e *Event) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", e.Type, err)
	}
	return data, nil
}

// Unmarshal decodes an event payload
func Unmarshal(payload []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("event %q has no type", e.ID)
	}
	return &e, nil
}

// EventPublisher publishes backend events
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// Handler consumes one event
type Handler func(ctx context.Context, event *Event) error
