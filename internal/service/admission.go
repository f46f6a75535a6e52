package service

import (
	"context"
	"time"

	"github.com/noah-isme/alumni-network-api/internal/models"
	appErrors "github.com/noah-isme/alumni-network-api/pkg/errors"
)

// ApprovalGrants answers whether an organizer approved a user for an approval-gated event.
type ApprovalGrants interface {
	IsApproved(ctx context.Context, eventID, userID string) (bool, error)
}

// ApprovalGrantsFunc adapts a function to ApprovalGrants.
type ApprovalGrantsFunc func(ctx context.Context, eventID, userID string) (bool, error)

// IsApproved implements ApprovalGrants.
func (f ApprovalGrantsFunc) IsApproved(ctx context.Context, eventID, userID string) (bool, error) {
	return f(ctx, eventID, userID)
}

// NoApprovalGrants never approves anyone, so approval-gated events reject direct registration.
var NoApprovalGrants ApprovalGrants = ApprovalGrantsFunc(func(context.Context, string, string) (bool, error) {
	return false, nil
})

// AdmissionController decides whether a registration gets a seat or a waitlist slot and which
// waitlisted registration is promoted when a seat frees up. It holds no state; callers run it
// while the event row is locked.
type AdmissionController struct{}

// NewAdmissionController constructs the controller.
func NewAdmissionController() *AdmissionController {
	return &AdmissionController{}
}

// CheckOpen rejects registrations for events that are not published or whose registration
// deadline has passed.
func (a *AdmissionController) CheckOpen(event *models.Event, now time.Time) error {
	if event.Status != models.EventPublished {
		return appErrors.Clone(appErrors.ErrRegistrationClosed, "event is not open for registration")
	}
	if event.RegistrationDeadline != nil && !now.Before(*event.RegistrationDeadline) {
		return appErrors.Clone(appErrors.ErrRegistrationClosed, "registration deadline has passed")
	}
	return nil
}

// Decide returns the initial status for a new registration given the number of registered seats.
func (a *AdmissionController) Decide(event *models.Event, registered int, approved bool, now time.Time) (models.RegistrationStatus, error) {
	if err := a.CheckOpen(event, now); err != nil {
		return "", err
	}
	if event.RequiresApproval && !approved {
		return "", appErrors.ErrApprovalRequired
	}
	if hasSeat(event, registered) {
		return models.RegistrationRegistered, nil
	}
	return models.RegistrationWaitlist, nil
}

// Promote returns the candidate when it should take a freed seat, or nil.
func (a *AdmissionController) Promote(event *models.Event, registered int, candidate *models.EventRegistration) *models.EventRegistration {
	if candidate == nil || candidate.Status != models.RegistrationWaitlist {
		return nil
	}
	if event.Status != models.EventPublished {
		return nil
	}
	if !hasSeat(event, registered) {
		return nil
	}
	return candidate
}

// Capacity summarises seat usage from registration counts.
func (a *AdmissionController) Capacity(event *models.Event, counts map[models.RegistrationStatus]int) models.EventCapacity {
	summary := models.EventCapacity{
		EventID:      event.ID,
		OrganizerID:  event.OrganizerID,
		IsPublic:     event.IsPublic,
		Status:       event.Status,
		MaxAttendees: event.MaxAttendees,
		Registered:   counts[models.RegistrationRegistered],
		Waitlisted:   counts[models.RegistrationWaitlist],
	}
	if event.MaxAttendees != nil {
		available := *event.MaxAttendees - summary.Registered
		if available < 0 {
			available = 0
		}
		summary.Available = &available
	}
	return summary
}

func hasSeat(event *models.Event, registered int) bool {
	return event.MaxAttendees == nil || registered < *event.MaxAttendees
}
