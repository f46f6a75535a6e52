package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/alumni-network-api/internal/models"
	appErrors "github.com/noah-isme/alumni-network-api/pkg/errors"
)

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func publishedEvent(id string, seats *int) *models.Event {
	return &models.Event{
		ID:           id,
		Title:        "Homecoming",
		OrganizerID:  "organizer",
		Status:       models.EventPublished,
		StartDate:    timePtr(testNow.Add(48 * time.Hour)),
		EndDate:      timePtr(testNow.Add(52 * time.Hour)),
		MaxAttendees: seats,
		IsPublic:     true,
	}
}

func TestAdmissionDecide(t *testing.T) {
	ctrl := NewAdmissionController()
	event := publishedEvent("evt", intPtr(2))

	status, err := ctrl.Decide(event, 1, true, testNow)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationRegistered, status)

	status, err = ctrl.Decide(event, 2, true, testNow)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationWaitlist, status)

	unlimited := publishedEvent("evt", nil)
	status, err = ctrl.Decide(unlimited, 10000, true, testNow)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationRegistered, status)
}

func TestAdmissionRejectsClosedEvents(t *testing.T) {
	ctrl := NewAdmissionController()

	draft := publishedEvent("evt", nil)
	draft.Status = models.EventDraft
	_, err := ctrl.Decide(draft, 0, true, testNow)
	assert.ErrorIs(t, err, appErrors.ErrRegistrationClosed)

	late := publishedEvent("evt", nil)
	late.RegistrationDeadline = timePtr(testNow)
	_, err = ctrl.Decide(late, 0, true, testNow)
	assert.ErrorIs(t, err, appErrors.ErrRegistrationClosed)

	gated := publishedEvent("evt", nil)
	gated.RequiresApproval = true
	_, err = ctrl.Decide(gated, 0, false, testNow)
	assert.ErrorIs(t, err, appErrors.ErrApprovalRequired)
}

func TestAdmissionPromote(t *testing.T) {
	ctrl := NewAdmissionController()
	event := publishedEvent("evt", intPtr(1))
	candidate := &models.EventRegistration{ID: "reg-2", Status: models.RegistrationWaitlist}

	assert.Same(t, candidate, ctrl.Promote(event, 0, candidate))
	assert.Nil(t, ctrl.Promote(event, 1, candidate))
	assert.Nil(t, ctrl.Promote(event, 0, nil))

	cancelled := publishedEvent("evt", intPtr(1))
	cancelled.Status = models.EventCancelled
	assert.Nil(t, ctrl.Promote(cancelled, 0, candidate))
}

func TestAdmissionCapacity(t *testing.T) {
	ctrl := NewAdmissionController()
	event := publishedEvent("evt", intPtr(3))

	summary := ctrl.Capacity(event, map[models.RegistrationStatus]int{
		models.RegistrationRegistered: 3,
		models.RegistrationWaitlist:   2,
		models.RegistrationCancelled:  4,
	})

	assert.Equal(t, 3, summary.Registered)
	assert.Equal(t, 2, summary.Waitlisted)
	require.NotNil(t, summary.Available)
	assert.Equal(t, 0, *summary.Available)

	open := ctrl.Capacity(publishedEvent("evt", nil), nil)
	assert.Nil(t, open.Available)
}
