package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// JobPostingStatus enumerates posting moderation states.
type JobPostingStatus string

const (
	JobDraft    JobPostingStatus = "draft"
	JobPending  JobPostingStatus = "pending"
	JobActive   JobPostingStatus = "active"
	JobClosed   JobPostingStatus = "closed"
	JobRejected JobPostingStatus = "rejected"
)

// JobPosting is read when applications are submitted; it is managed elsewhere.
type JobPosting struct {
	ID                  string           `db:"id" json:"id"`
	Title               string           `db:"title" json:"title"`
	PostedBy            string           `db:"posted_by" json:"posted_by"`
	Status              JobPostingStatus `db:"status" json:"status"`
	ApplicationDeadline *time.Time       `db:"application_deadline" json:"application_deadline,omitempty"`
	ExpiresAt           time.Time        `db:"expires_at" json:"expires_at"`
}

// AcceptsApplications reports whether the posting is open at the given instant.
func (j *JobPosting) AcceptsApplications(now time.Time) bool {
	if j.Status != JobActive {
		return false
	}
	if !now.Before(j.ExpiresAt) {
		return false
	}
	if j.ApplicationDeadline != nil && !now.Before(*j.ApplicationDeadline) {
		return false
	}
	return true
}

// ApplicationStatus enumerates job application review states.
type ApplicationStatus string

const (
	ApplicationSubmitted   ApplicationStatus = "submitted"
	ApplicationUnderReview ApplicationStatus = "under_review"
	ApplicationShortlisted ApplicationStatus = "shortlisted"
	ApplicationInterview   ApplicationStatus = "interview"
	ApplicationOffered     ApplicationStatus = "offered"
	ApplicationHired       ApplicationStatus = "hired"
	ApplicationRejected    ApplicationStatus = "rejected"
	ApplicationWithdrawn   ApplicationStatus = "withdrawn"
)

// Valid reports whether the status is known.
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationSubmitted, ApplicationUnderReview, ApplicationShortlisted, ApplicationInterview,
		ApplicationOffered, ApplicationHired, ApplicationRejected, ApplicationWithdrawn:
		return true
	}
	return false
}

// Active statuses occupy the (job, applicant) uniqueness key.
func (s ApplicationStatus) Active() bool {
	return s != ApplicationRejected && s != ApplicationWithdrawn
}

// JobApplication is an applicant's submission against a posting.
type JobApplication struct {
	ID                  string            `db:"id" json:"id"`
	JobID               string            `db:"job_id" json:"job_id"`
	ApplicantID         string            `db:"applicant_id" json:"applicant_id"`
	Status              ApplicationStatus `db:"status" json:"status"`
	CoverLetter         *string           `db:"cover_letter" json:"cover_letter,omitempty"`
	ResumeURI           *string           `db:"resume_uri" json:"resume_uri,omitempty"`
	AdditionalDocuments types.JSONText    `db:"additional_documents" json:"additional_documents"`
	AppliedAt           time.Time         `db:"applied_at" json:"applied_at"`
	LastUpdated         time.Time         `db:"last_updated" json:"last_updated"`
}

// ApplicationFilter captures listing criteria for applications.
type ApplicationFilter struct {
	JobID       string
	ApplicantID string
	Status      ApplicationStatus
	PageRequest
}
