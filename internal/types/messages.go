package types

import "time"

// Role is the access level of a dashboard user
type Role string

const (
	RoleAdmin Role = "admin" // sees every agent
	RoleAgent Role = "agent" // sees own data only
)

// ParseRole maps stored role strings onto a Role. The legacy "user" role is an agent.
func ParseRole(s string) Role {
	switch s {
	case "admin":
		return RoleAdmin
	default:
		return RoleAgent
	}
}

// NotificationType identifies a server push message
type NotificationType string

const (
	NotificationDataChanged NotificationType = "data_changed"
)

// Notification is pushed to websocket clients
type Notification struct {
	Type      NotificationType `json:"type"`
	Path      string           `json:"path,omitempty"` // relative to the data directory
	Timestamp time.Time        `json:"timestamp"`
}
