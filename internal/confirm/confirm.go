// Package confirm implements the summary confirmation card lifecycle.
//
// A card starts open and moves to exactly one terminal state. Terminal
// states are never left and a second action is a no-op.
package confirm

import (
	"strings"

	"github.com/smart-daily/dailychat/internal/model"
)

const (
	// ConfirmPhrase is the canonical text sent when a card is submitted.
	ConfirmPhrase = "确认提交"

	// PromptText is the assistant content that accompanies a card.
	PromptText = "为您总结工作内容如下，请确认是否提交："
)

// State is the lifecycle state of a summary card.
type State int

const (
	StateNone State = iota
	StateOpen
	StateConfirmed
	StateDismissed
	StateEdited
)

// Label is the human-readable status shown under a closed card.
func (s State) Label() string {
	switch s {
	case StateConfirmed:
		return "已提交"
	case StateDismissed:
		return "已取消"
	case StateEdited:
		return "已编辑"
	default:
		return ""
	}
}

// Action is a user action on an open card.
type Action int

const (
	Submit Action = iota
	Dismiss
	Edit
)

// StateOf derives the card state of msg. Messages that are not summary
// cards report StateNone.
func StateOf(msg model.Message) State {
	if !msg.IsSummaryCard() {
		return StateNone
	}
	md := msg.Metadata
	switch {
	case md.Confirmed:
		return StateConfirmed
	case md.Dismissed:
		return StateDismissed
	case md.Edited:
		return StateEdited
	default:
		return StateOpen
	}
}

// Apply performs action on msg. It returns the updated copy and true when
// the card was open, or msg unchanged and false otherwise.
func Apply(msg model.Message, action Action) (model.Message, bool) {
	if StateOf(msg) != StateOpen {
		return msg, false
	}
	return msg.WithMetadata(func(md *model.Metadata) {
		switch action {
		case Submit:
			md.Confirmed = true
		case Dismiss:
			md.Dismissed = true
		case Edit:
			md.Edited = true
		}
	}), true
}

// AutoDismiss returns msgs with every open card dismissed. The input slice
// is not modified. The second result reports whether anything changed.
func AutoDismiss(msgs []model.Message) ([]model.Message, bool) {
	var out []model.Message
	for i, m := range msgs {
		updated, ok := Apply(m, Dismiss)
		if !ok {
			continue
		}
		if out == nil {
			out = model.CloneMessages(msgs)
		}
		out[i] = updated
	}
	if out == nil {
		return msgs, false
	}
	return out, true
}

// IsConfirmation reports whether text is a user confirmation of the pending
// report.
func IsConfirmation(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	switch t {
	case "确认", "是", "ok":
		return true
	}
	return strings.Contains(t, ConfirmPhrase) || strings.Contains(t, "confirm")
}
