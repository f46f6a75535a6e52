package models

import "time"

// ConnectionStatus enumerates the lifecycle of a connection request.
type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
	ConnectionDeclined ConnectionStatus = "declined"
	ConnectionBlocked  ConnectionStatus = "blocked"
)

// Valid reports whether the status is known.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionPending, ConnectionAccepted, ConnectionDeclined, ConnectionBlocked:
		return true
	}
	return false
}

// Active statuses occupy the (requester, receiver) uniqueness key. A declined request frees it.
func (s ConnectionStatus) Active() bool {
	return s == ConnectionPending || s == ConnectionAccepted || s == ConnectionBlocked
}

// Connection is a directed connection request between two alumni.
type Connection struct {
	ID          string           `db:"id" json:"id"`
	RequesterID string           `db:"requester_id" json:"requester_id"`
	ReceiverID  string           `db:"receiver_id" json:"receiver_id"`
	Status      ConnectionStatus `db:"status" json:"status"`
	Message     *string          `db:"message" json:"message,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// ConnectionDirection scopes a listing relative to the caller.
type ConnectionDirection string

const (
	ConnectionDirectionAll      ConnectionDirection = ""
	ConnectionDirectionSent     ConnectionDirection = "sent"
	ConnectionDirectionReceived ConnectionDirection = "received"
)

// ConnectionFilter captures listing criteria for an actor's connections.
type ConnectionFilter struct {
	ActorID   string
	Direction ConnectionDirection
	Status    ConnectionStatus
	PageRequest
}
