package audit

import (
	"encoding/json"
	"time"
)

// Action names an audited operation
type Action string

const (
	ActionTeamCreate      Action = "team.create"
	ActionTeamRename      Action = "team.rename"
	ActionTeamDelete      Action = "team.delete"
	ActionTeamJoin        Action = "team.join"
	ActionInviteCreate    Action = "invite.create"
	ActionInviteRevoke    Action = "invite.revoke"
	ActionMediaPresign    Action = "media.presign"
	ActionMediaComplete   Action = "media.complete"
	ActionMediaDelete     Action = "media.delete"
	ActionAuthSignIn      Action = "auth.signin"
	ActionAuthVerify      Action = "auth.verify"
	ActionAuthJoinTeam    Action = "auth.join_team"
	ActionBillingCheckout Action = "billing.checkout"
	ActionBillingUpgrade  Action = "billing.upgrade"
	ActionBillingWebhook  Action = "billing.webhook"
	ActionStorageRepair   Action = "storage.repair"
)

// Event is a single audit record
type Event struct {
	EventID     string         `json:"event_id"`
	TeamID      string         `json:"team_id"`
	Timestamp   time.Time      `json:"ts"`
	Action      Action         `json:"action"`
	SubjectHash string         `json:"subject_hash,omitempty"`
	IPHash      string         `json:"ip_hash,omitempty"`
	UAHash      string         `json:"ua_hash,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// SortKey orders a team's events by time
func (e *Event) SortKey() string {
	return e.Timestamp.UTC().Format(time.RFC3339Nano) + "#" + e.EventID
}

// ToJSON converts the event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
