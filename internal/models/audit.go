package models

import "time"

// Audit actions recorded by the workflow services.
const (
	AuditActionConnectionRequest    = "CONNECTION_REQUEST"
	AuditActionConnectionTransition = "CONNECTION_TRANSITION"
	AuditActionConnectionCancel     = "CONNECTION_CANCEL"
	AuditActionRegistrationCreate   = "REGISTRATION_CREATE"
	AuditActionRegistrationChange   = "REGISTRATION_TRANSITION"
	AuditActionRegistrationPromote  = "REGISTRATION_PROMOTE"
	AuditActionApplicationSubmit    = "APPLICATION_SUBMIT"
	AuditActionApplicationChange    = "APPLICATION_TRANSITION"
)

// Audited resource names.
const (
	AuditResourceConnection   = "connection"
	AuditResourceRegistration = "event_registration"
	AuditResourceApplication  = "job_application"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
