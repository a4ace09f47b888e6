package domain

import "time"

// SessionState is the tri-state status derived from the credential record.
type SessionState string

const (
	StateLoading       SessionState = "loading"
	StateAuthenticated SessionState = "authenticated"
	StateAnonymous     SessionState = "anonymous"
)

// SessionStatus is recomputed on every bus event and never persisted.
// Identity is set only in StateAuthenticated.
type SessionStatus struct {
	State    SessionState `json:"state"`
	Identity *Identity    `json:"identity,omitempty"`
}

func (s SessionStatus) Authenticated() bool {
	return s.State == StateAuthenticated && s.Identity != nil
}

// EventKind distinguishes the signals carried by the session bus.
type EventKind string

const (
	// EventSessionChanged follows every credential write or clear.
	EventSessionChanged EventKind = "session_changed"
	// EventAuthRejected is raised by the gateway after a 401/403 was handled.
	EventAuthRejected EventKind = "auth_rejected"
	// EventLogoutRequested is raised by a self-initiated logout.
	EventLogoutRequested EventKind = "logout_requested"
)

// SessionEvent is delivered synchronously to in-process subscribers.
type SessionEvent struct {
	Kind   EventKind
	Status int // HTTP status for EventAuthRejected
	Origin string
	Remote bool
	At     time.Time
}

// SyncMessage is what travels between instances sharing a credential backend.
type SyncMessage struct {
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}

// NoticeKind selects the text of a blocking user-facing notice.
type NoticeKind string

const (
	NoticeSessionExpired  NoticeKind = "session_expired"
	NoticeSessionOutdated NoticeKind = "session_outdated"
)

// Notice is shown once per handled authentication failure.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// NoticeFor builds the notice matching an auth-failure HTTP status.
func NoticeFor(status int, at time.Time) Notice {
	if status == 403 {
		return Notice{
			Kind:    NoticeSessionOutdated,
			Message: "Your session is outdated or no longer has access to this resource. Please log in again.",
			At:      at,
		}
	}
	return Notice{
		Kind:    NoticeSessionExpired,
		Message: "Your session has expired. Please log in again.",
		At:      at,
	}
}

// SessionTransition is the audit record of one state change in one instance.
type SessionTransition struct {
	From       SessionState `json:"from" bson:"from"`
	To         SessionState `json:"to" bson:"to"`
	IdentityID int64        `json:"identity_id,omitempty" bson:"identity_id,omitempty"`
	Role       Role         `json:"role,omitempty" bson:"role,omitempty"`
	Origin     string       `json:"origin" bson:"origin"`
	At         time.Time    `json:"at" bson:"at"`
}
