package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithMetadataDoesNotAlias(t *testing.T) {
	orig := Message{ID: "1", Metadata: &Metadata{ThinkingSteps: []string{"a"}}}

	updated := orig.WithMetadata(func(md *Metadata) {
		md.ThinkingSteps = append(md.ThinkingSteps, "b")
		md.Confirmed = true
	})

	assert.Equal(t, []string{"a"}, orig.Metadata.ThinkingSteps)
	assert.False(t, orig.Metadata.Confirmed)
	assert.Equal(t, []string{"a", "b"}, updated.Metadata.ThinkingSteps)
	assert.True(t, updated.Metadata.Confirmed)
}

func TestWithMetadataOnNil(t *testing.T) {
	m := Message{ID: "1"}.WithMetadata(func(md *Metadata) { md.ThinkingCollapsed = true })
	require.NotNil(t, m.Metadata)
	assert.True(t, m.Metadata.ThinkingCollapsed)
}

func TestMetadataFromPayloadKeepsRawObject(t *testing.T) {
	raw := json.RawMessage(`{"type":"summary_confirm","summary":"完成登录页","risks":["延期"],"custom":1}`)

	md, err := MetadataFromPayload(raw)

	require.NoError(t, err)
	assert.Equal(t, "完成登录页", md.Summary)
	assert.Equal(t, []string{"延期"}, md.Risks)
	assert.JSONEq(t, string(raw), string(md.Payload))
}

func TestMetadataFromPayloadToleratesFieldShapes(t *testing.T) {
	raw := json.RawMessage(`{"type":"summary_confirm","summary":"s","risks":[{"level":"high"},"延期"],"thinkingElapsed":12.5,"confirmed":"yes","downloadUrl":"/f"}`)

	md, err := MetadataFromPayload(raw)

	require.NoError(t, err)
	assert.Equal(t, "summary_confirm", md.Type)
	assert.Equal(t, "s", md.Summary)
	assert.Equal(t, []string{"延期"}, md.Risks)
	assert.Equal(t, int64(12), md.ThinkingElapsed)
	assert.False(t, md.Confirmed)
	assert.Equal(t, "/f", md.DownloadURL)
	assert.JSONEq(t, string(raw), string(md.Payload))
}

func TestMetadataFromPayloadRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`{broken`, `[1,2]`, `"text"`, `null`} {
		_, err := MetadataFromPayload(json.RawMessage(raw))
		assert.Error(t, err, raw)
	}
}

func TestMetadataUnmarshalInsideResponse(t *testing.T) {
	var resp struct {
		Metadata *Metadata `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"metadata":{"type":"text","risks":"单项风险","thinkingSteps":[1,"查询"]}}`), &resp))

	require.NotNil(t, resp.Metadata)
	assert.Equal(t, []string{"单项风险"}, resp.Metadata.Risks)
	assert.Equal(t, []string{"查询"}, resp.Metadata.ThinkingSteps)
}

func TestSessionIDPtr(t *testing.T) {
	assert.Nil(t, NoSession.Ptr())
	p := SessionID(7).Ptr()
	require.NotNil(t, p)
	assert.Equal(t, int64(7), *p)
	assert.Equal(t, SessionID(7), SessionFromPtr(p))
	assert.Equal(t, NoSession, SessionFromPtr(nil))
}
