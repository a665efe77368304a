// Package cloudlog holds the normalized cloud variable change log:
// the Entry record and the bounded Buffer that stores recent entries.
package cloudlog

// UnknownUser is recorded when no username could be resolved for a change.
const UnknownUser = "Unknown"

// Action identifies the kind of change an Entry records.
type Action string

// Supported actions.
const (
	ActionSet    Action = "set"
	ActionCreate Action = "create"
	ActionDelete Action = "delete"
)

// ParseAction maps a cloud protocol method name to an Action.
// Returns false for methods that are not recorded (e.g. "rename").
func ParseAction(method string) (Action, bool) {
	switch Action(method) {
	case ActionSet, ActionCreate, ActionDelete:
		return Action(method), true
	}
	return "", false
}

// Entry is one normalized record of a cloud variable change.
// Variable and Value encode as JSON null when missing.
type Entry struct {
	Time     string  `json:"time" cbor:"time"`
	Variable *string `json:"variable" cbor:"variable"`
	Value    any     `json:"value" cbor:"value"`
	User     string  `json:"user" cbor:"user"`
	Action   Action  `json:"action,omitempty" cbor:"action,omitempty"`
}

// VariableName returns the variable name or an empty string when unset.
func (e Entry) VariableName() string {
	if e.Variable == nil {
		return ""
	}
	return *e.Variable
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
