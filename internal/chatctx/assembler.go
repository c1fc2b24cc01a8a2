// Package chatctx assembles the bounded conversation history sent with each
// streamed request.
package chatctx

import (
	"strings"

	"github.com/smart-daily/dailychat/internal/model"
)

// MaxHistory is the number of most recent turns sent as context.
const MaxHistory = 10

// SubmittedMarker appears in the assistant reply that acknowledges a
// committed report. Report-mode context never reaches back past it.
const SubmittedMarker = "已提交"

// Options are the per-send request parameters.
type Options struct {
	Mode      model.Mode
	Date      string
	SessionID model.SessionID
}

// History returns the filtered, capped context turns for msgs. The
// synthetic welcome message is never context.
func History(msgs []model.Message, mode model.Mode, date string) []model.HistoryItem {
	filtered := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == model.WelcomeID {
			continue
		}
		if m.Role == model.RoleUser || m.Role == model.RoleAssistant {
			filtered = append(filtered, m)
		}
	}

	switch {
	case mode == model.ModeSupplement && date != "":
		filtered = sameDatePairs(filtered, date)
	case mode == model.ModeReport:
		filtered = afterLastSubmission(filtered)
	}

	if len(filtered) > MaxHistory {
		filtered = filtered[len(filtered)-MaxHistory:]
	}

	items := make([]model.HistoryItem, len(filtered))
	for i, m := range filtered {
		items[i] = model.HistoryItem{Role: m.Role, Content: m.Content}
	}
	return items
}

// sameDatePairs keeps user turns tagged with date, each followed by the
// assistant reply that immediately follows it.
func sameDatePairs(msgs []model.Message, date string) []model.Message {
	var pairs []model.Message
	for i, m := range msgs {
		if m.Role != model.RoleUser || m.Metadata == nil || m.Metadata.SupplementDate != date {
			continue
		}
		pairs = append(pairs, m)
		if i+1 < len(msgs) && msgs[i+1].Role == model.RoleAssistant {
			pairs = append(pairs, msgs[i+1])
		}
	}
	return pairs
}

func afterLastSubmission(msgs []model.Message) []model.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant && strings.Contains(msgs[i].Content, SubmittedMarker) {
			return msgs[i+1:]
		}
	}
	return msgs
}

// BuildStreamRequest builds the body of a streamed chat request. It is
// computed fresh on every send.
func BuildStreamRequest(text string, msgs []model.Message, opts Options) model.StreamRequest {
	req := model.StreamRequest{
		Text:      text,
		Mode:      opts.Mode,
		SessionID: opts.SessionID.Ptr(),
	}
	if opts.Date != "" {
		req.Date = opts.Date
	}
	if history := History(msgs, opts.Mode, opts.Date); len(history) > 0 {
		req.History = history
	}
	return req
}
