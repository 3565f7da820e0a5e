package careplan

import "fmt"

// Status is the closed set of care plan lifecycle states.
type Status string

const (
	StatusDraft               Status = "draft"
	StatusPendingReview       Status = "pending_review"
	StatusInterpreterReview   Status = "interpreter_review"
	StatusInterpreterApproved Status = "interpreter_approved"
	StatusApproved            Status = "approved"
	StatusSent                Status = "sent"
	StatusCompleted           Status = "completed"
)

// Action is a lifecycle operation applied to a care plan.
type Action string

const (
	ActionProcess           Action = "process"
	ActionApprove           Action = "approve"
	ActionSubmitInterpreter Action = "submit_interpreter_review"
	ActionInterpreterOK     Action = "interpreter_approve"
	ActionRequestChanges    Action = "request_changes"
	ActionSend              Action = "send"
	ActionComplete          Action = "complete"
)

// transitions is the explicit from-state x action table. Anything absent is
// an illegal transition.
var transitions = map[Status]map[Action]Status{
	StatusDraft: {
		ActionProcess: StatusPendingReview,
	},
	StatusPendingReview: {
		ActionApprove:           StatusApproved,
		ActionSubmitInterpreter: StatusInterpreterReview,
	},
	StatusInterpreterReview: {
		ActionInterpreterOK:  StatusInterpreterApproved,
		ActionRequestChanges: StatusPendingReview,
	},
	StatusInterpreterApproved: {
		ActionApprove: StatusApproved,
		ActionSend:    StatusSent,
	},
	StatusApproved: {
		ActionSend: StatusSent,
	},
	StatusSent: {
		ActionComplete: StatusCompleted,
	},
}

// deletable lists the states from which a care plan may still be removed.
// Once a patient may have seen content or an interpreter is mid-review,
// deletion is rejected to preserve audit continuity.
var deletable = map[Status]bool{
	StatusDraft:         true,
	StatusPendingReview: true,
	StatusApproved:      true,
}

// IllegalTransitionError reports a state machine guard violation, carrying
// the current status so clients can explain why the action is blocked.
type IllegalTransitionError struct {
	From   Status
	Action Action
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: cannot %s a care plan in status %q", e.Action, e.From)
}

// Next returns the status reached by applying action from s, or an
// IllegalTransitionError when the table has no entry.
func (s Status) Next(action Action) (Status, error) {
	if to, ok := transitions[s][action]; ok {
		return to, nil
	}
	return "", &IllegalTransitionError{From: s, Action: action}
}

// Deletable reports whether a plan in status s may be deleted.
func (s Status) Deletable() bool {
	return deletable[s]
}

// Valid reports whether s is a recognized status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingReview, StatusInterpreterReview,
		StatusInterpreterApproved, StatusApproved, StatusSent, StatusCompleted:
		return true
	}
	return false
}
