package service

import (
	"strings"

	"github.com/noah-isme/alumni-network-api/internal/models"
)

// Capability is a relation an actor holds towards a workflow instance.
type Capability uint16

const (
	CapAuthenticated Capability = 1 << iota
	CapRequester
	CapReceiver
	CapRegistrant
	CapOrganizer
	CapApplicant
	CapPoster
)

// capParties covers every relation that grants read access.
const capParties = CapRequester | CapReceiver | CapRegistrant | CapOrganizer | CapApplicant | CapPoster

// Has reports whether c shares at least one relation with want.
func (c Capability) Has(want Capability) bool {
	return c&want != 0
}

// CanRead reports whether the capability set allows viewing the instance.
func (c Capability) CanRead() bool {
	return c.Has(capParties)
}

func (c Capability) String() string {
	names := []struct {
		cap  Capability
		name string
	}{
		{CapAuthenticated, "authenticated"},
		{CapRequester, "requester"},
		{CapReceiver, "receiver"},
		{CapRegistrant, "user"},
		{CapOrganizer, "organizer"},
		{CapApplicant, "applicant"},
		{CapPoster, "poster"},
	}
	var parts []string
	for _, n := range names {
		if c&n.cap != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ConnectionCapabilities computes the actor's relations to a connection request.
func ConnectionCapabilities(actorID string, conn *models.Connection) Capability {
	if actorID == "" {
		return 0
	}
	caps := CapAuthenticated
	if conn == nil {
		return caps
	}
	if conn.RequesterID == actorID {
		caps |= CapRequester
	}
	if conn.ReceiverID == actorID {
		caps |= CapReceiver
	}
	return caps
}

// RegistrationCapabilities computes the actor's relations to a registration and its event.
func RegistrationCapabilities(actorID string, reg *models.EventRegistration, event *models.Event) Capability {
	if actorID == "" {
		return 0
	}
	caps := CapAuthenticated
	if reg != nil && reg.UserID == actorID {
		caps |= CapRegistrant
	}
	if event != nil && event.OrganizerID == actorID {
		caps |= CapOrganizer
	}
	return caps
}

// ApplicationCapabilities computes the actor's relations to an application and its posting.
func ApplicationCapabilities(actorID string, app *models.JobApplication, job *models.JobPosting) Capability {
	if actorID == "" {
		return 0
	}
	caps := CapAuthenticated
	if app != nil && app.ApplicantID == actorID {
		caps |= CapApplicant
	}
	if job != nil && job.PostedBy == actorID {
		caps |= CapPoster
	}
	return caps
}
