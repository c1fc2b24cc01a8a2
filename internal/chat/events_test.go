package chat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-daily/dailychat/internal/confirm"
	"github.com/smart-daily/dailychat/internal/model"
	"github.com/smart-daily/dailychat/internal/sse"
)

func TestThinkingThenTokens(t *testing.T) {
	msg := model.Message{ID: "s", Role: model.RoleAssistant, Type: model.TypeText}

	msg = applyEvent(msg, sse.ThinkingEvent{Text: "step 1"}, 1500*time.Millisecond)
	assert.False(t, msg.Metadata.ThinkingCollapsed)
	assert.Equal(t, int64(1500), msg.Metadata.ThinkingElapsed)

	msg = applyEvent(msg, sse.TokenEvent{Token: "hel"}, 2*time.Second)
	msg = applyEvent(msg, sse.TokenEvent{Token: "lo"}, 2*time.Second)
	assert.Equal(t, "hello", msg.Content)
	assert.True(t, msg.Metadata.ThinkingCollapsed)
	assert.Equal(t, []string{"step 1"}, msg.Metadata.ThinkingSteps)

	msg = finishThinking(msg)
	assert.True(t, msg.Metadata.ThinkingDone)
}

func TestResultWinsOverMeta(t *testing.T) {
	result := sse.ResultEvent{Payload: json.RawMessage(`{"summary":"from result"}`)}
	meta := sse.MetaEvent{Payload: json.RawMessage(`{"summary":"from meta","downloadUrl":"/x"}`)}
	base := model.Message{ID: "s", Role: model.RoleAssistant, Type: model.TypeText}

	metaFirst := applyEvent(applyEvent(base, meta, 0), result, 0)
	resultFirst := applyEvent(applyEvent(base, result, 0), meta, 0)

	for _, msg := range []model.Message{metaFirst, resultFirst} {
		require.True(t, msg.IsSummaryCard())
		assert.Equal(t, "from result", msg.Metadata.Summary)
		assert.Empty(t, msg.Metadata.DownloadURL)
		assert.Equal(t, confirm.PromptText, msg.Content)
		assert.JSONEq(t, `{"summary":"from result"}`, string(msg.Metadata.Payload))
	}
}

func TestResultWithUnexpectedFieldShapesOpensCard(t *testing.T) {
	msg := model.Message{ID: "s", Role: model.RoleAssistant, Type: model.TypeText}
	msg = applyEvent(msg, sse.TokenEvent{Token: "x"}, 0)

	msg = applyEvent(msg, sse.ResultEvent{Payload: json.RawMessage(`{"summary":"s","risks":[{"level":"high"}]}`)}, 0)

	require.True(t, msg.IsSummaryCard())
	assert.Equal(t, confirm.PromptText, msg.Content)
	assert.Equal(t, "s", msg.Metadata.Summary)
	assert.Equal(t, confirm.StateOpen, confirm.StateOf(msg))
}

func TestMetaWithFloatElapsedKeepsDownload(t *testing.T) {
	msg := model.Message{ID: "s", Role: model.RoleAssistant, Type: model.TypeText}

	msg = applyEvent(msg, sse.MetaEvent{Payload: json.RawMessage(`{"downloadUrl":"/api/files/w.md","thinkingElapsed":12.5}`)}, 0)

	require.NotNil(t, msg.Metadata)
	assert.Equal(t, "/api/files/w.md", msg.Metadata.DownloadURL)
	assert.False(t, msg.IsSummaryCard())
}

func TestTokensAfterResultDoNotAlterCard(t *testing.T) {
	msg := applyEvent(model.Message{ID: "s"}, sse.ResultEvent{Payload: json.RawMessage(`{"summary":"x"}`)}, 0)

	msg = applyEvent(msg, sse.TokenEvent{Token: "late"}, 0)

	assert.Equal(t, confirm.PromptText, msg.Content)
}

func TestFinishThinkingWithoutStepsIsNoop(t *testing.T) {
	msg := model.Message{ID: "s", Content: "x"}
	assert.Equal(t, msg, finishThinking(msg))
}
