package models

import "time"

// EventStatus enumerates event publication states.
type EventStatus string

const (
	EventDraft     EventStatus = "draft"
	EventPublished EventStatus = "published"
	EventCancelled EventStatus = "cancelled"
	EventCompleted EventStatus = "completed"
)

// Event is read by the admission controller; it is managed elsewhere.
type Event struct {
	ID                   string      `db:"id" json:"id"`
	Title                string      `db:"title" json:"title"`
	OrganizerID          string      `db:"organizer_id" json:"organizer_id"`
	Status               EventStatus `db:"status" json:"status"`
	StartDate            *time.Time  `db:"start_date" json:"start_date,omitempty"`
	EndDate              *time.Time  `db:"end_date" json:"end_date,omitempty"`
	RegistrationDeadline *time.Time  `db:"registration_deadline" json:"registration_deadline,omitempty"`
	MaxAttendees         *int        `db:"max_attendees" json:"max_attendees,omitempty"`
	RequiresApproval     bool        `db:"requires_approval" json:"requires_approval"`
	IsPublic             bool        `db:"is_public" json:"is_public"`
}

// HasEnded reports whether the event is over at the given instant. Events without any dates
// are treated as ended so attendance can always be recorded.
func (e *Event) HasEnded(now time.Time) bool {
	switch {
	case e.EndDate != nil:
		return !now.Before(*e.EndDate)
	case e.StartDate != nil:
		return !now.Before(*e.StartDate)
	default:
		return true
	}
}

// RegistrationStatus enumerates event registration states.
type RegistrationStatus string

const (
	RegistrationRegistered RegistrationStatus = "registered"
	RegistrationWaitlist   RegistrationStatus = "waitlist"
	RegistrationAttended   RegistrationStatus = "attended"
	RegistrationCancelled  RegistrationStatus = "cancelled"
)

// Valid reports whether the status is known.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case RegistrationRegistered, RegistrationWaitlist, RegistrationAttended, RegistrationCancelled:
		return true
	}
	return false
}

// Active statuses occupy the (event, user) uniqueness key.
func (s RegistrationStatus) Active() bool {
	return s == RegistrationRegistered || s == RegistrationWaitlist
}

// EventRegistration is a user's seat or waitlist slot for an event.
type EventRegistration struct {
	ID                  string             `db:"id" json:"id"`
	EventID             string             `db:"event_id" json:"event_id"`
	UserID              string             `db:"user_id" json:"user_id"`
	Status              RegistrationStatus `db:"status" json:"status"`
	SpecialRequirements *string            `db:"special_requirements" json:"special_requirements,omitempty"`
	RegistrationDate    time.Time          `db:"registration_date" json:"registration_date"`
	UpdatedAt           time.Time          `db:"updated_at" json:"updated_at"`
}

// RegistrationFilter captures listing criteria for registrations.
type RegistrationFilter struct {
	EventID string
	UserID  string
	Status  RegistrationStatus
	PageRequest
}

// EventCapacity summarises seat usage for an event.
type EventCapacity struct {
	EventID      string      `json:"event_id"`
	OrganizerID  string      `json:"organizer_id"`
	IsPublic     bool        `json:"is_public"`
	Status       EventStatus `json:"status"`
	MaxAttendees *int        `json:"max_attendees,omitempty"`
	Registered   int         `json:"registered"`
	Waitlisted   int         `json:"waitlisted"`
	Available    *int        `json:"available,omitempty"`
}
