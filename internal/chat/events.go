package chat

import (
	"time"

	"github.com/smart-daily/dailychat/internal/confirm"
	"github.com/smart-daily/dailychat/internal/model"
	"github.com/smart-daily/dailychat/internal/sse"
)

// applyEvent folds one stream event into the streaming message. A summary
// card's content and metadata are fixed once set by a result event.
func applyEvent(msg model.Message, ev sse.Event, elapsed time.Duration) model.Message {
	switch e := ev.(type) {
	case sse.TokenEvent:
		if msg.IsSummaryCard() {
			return msg
		}
		msg = msg.WithMetadata(func(md *model.Metadata) {
			md.ThinkingCollapsed = true
		})
		msg.Content += e.Token
		return msg

	case sse.ThinkingEvent:
		return msg.WithMetadata(func(md *model.Metadata) {
			md.ThinkingSteps = append(md.ThinkingSteps, e.Text)
			md.ThinkingCollapsed = false
			md.ThinkingElapsed = elapsed.Milliseconds()
		})

	case sse.ResultEvent:
		md, err := model.MetadataFromPayload(e.Payload)
		if err != nil {
			return msg
		}
		carryThinking(md, msg.Metadata)
		msg.Content = confirm.PromptText
		msg.Type = model.TypeSummaryConfirm
		msg.Metadata = md
		return msg

	case sse.MetaEvent:
		if msg.IsSummaryCard() {
			return msg
		}
		md, err := model.MetadataFromPayload(e.Payload)
		if err != nil {
			return msg
		}
		carryThinking(md, msg.Metadata)
		msg.Metadata = md
		return msg
	}
	return msg
}

// carryThinking keeps the locally accumulated thinking trace when metadata
// is replaced by a server payload.
func carryThinking(dst, src *model.Metadata) {
	if src == nil {
		return
	}
	dst.ThinkingSteps = append([]string(nil), src.ThinkingSteps...)
	dst.ThinkingCollapsed = src.ThinkingCollapsed
	dst.ThinkingElapsed = src.ThinkingElapsed
}

// finishThinking marks the thinking trace of a completed stream as done.
func finishThinking(msg model.Message) model.Message {
	if msg.Metadata == nil || len(msg.Metadata.ThinkingSteps) == 0 || msg.Metadata.ThinkingDone {
		return msg
	}
	return msg.WithMetadata(func(md *model.Metadata) {
		md.ThinkingDone = true
	})
}

// mapMessage returns a copy of msgs with fn applied to the message with the
// given id. The second result reports whether the id was found.
func mapMessage(msgs []model.Message, id string, fn func(model.Message) model.Message) ([]model.Message, bool) {
	for i, m := range msgs {
		if m.ID != id {
			continue
		}
		out := model.CloneMessages(msgs)
		out[i] = fn(m)
		return out, true
	}
	return msgs, false
}

func withoutWelcome(msgs []model.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs)+2)
	for _, m := range msgs {
		if m.ID != model.WelcomeID {
			out = append(out, m)
		}
	}
	return out
}
