package importer

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-daily/dailychat/internal/model"
)

type fakeBackend struct {
	previewErr error
	confirmErr error
	tokens     []string
	uploaded   string
}

func (f *fakeBackend) PreviewImport(_ context.Context, filename string, file io.Reader) (*model.PreviewResult, error) {
	if f.previewErr != nil {
		return nil, f.previewErr
	}
	data, _ := io.ReadAll(file)
	f.uploaded = filename + ":" + string(data)
	return &model.PreviewResult{
		Token:            "tok-1",
		Entries:          []model.PreviewEntry{{Date: "2026-10-01", Name: "张三", Content: "修复登录"}},
		UnmatchedMembers: []string{"李四"},
	}, nil
}

func (f *fakeBackend) ConfirmImport(_ context.Context, token string) (*model.ConfirmResult, error) {
	f.tokens = append(f.tokens, token)
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return &model.ConfirmResult{Imported: 1, Total: 1}, nil
}

func readerOf(s string) io.Reader {
	return strings.NewReader(s)
}

func TestConfirmRequiresPreview(t *testing.T) {
	w := New(&fakeBackend{}, nil)

	_, err := w.Confirm(context.Background())

	assert.ErrorIs(t, err, ErrNoPreview)
	assert.Equal(t, StatusIdle, w.State().Status)
}

func TestPreviewThenConfirm(t *testing.T) {
	backend := &fakeBackend{}
	w := New(backend, nil)
	ctx := context.Background()

	preview, err := w.Preview(ctx, "daily.csv", readerOf("a,b"))
	require.NoError(t, err)
	assert.Equal(t, "daily.csv:a,b", backend.uploaded)
	assert.Equal(t, []string{"李四"}, preview.UnmatchedMembers)
	assert.Equal(t, StatusPreview, w.State().Status)

	result, err := w.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, StatusSuccess, w.State().Status)
	assert.Equal(t, []string{"tok-1"}, backend.tokens)

	// The token was consumed.
	_, err = w.Confirm(ctx)
	assert.ErrorIs(t, err, ErrNoPreview)
	assert.Len(t, backend.tokens, 1)
}

func TestRejectedTokenIsTerminal(t *testing.T) {
	rejected := errors.New("预览已过期，请重新上传")
	backend := &fakeBackend{confirmErr: rejected}
	w := New(backend, nil)
	ctx := context.Background()

	_, err := w.Preview(ctx, "daily.csv", readerOf("x"))
	require.NoError(t, err)

	_, err = w.Confirm(ctx)
	assert.ErrorIs(t, err, rejected)
	st := w.State()
	assert.Equal(t, StatusError, st.Status)
	assert.ErrorIs(t, st.Err, rejected)

	_, err = w.Confirm(ctx)
	assert.ErrorIs(t, err, ErrNoPreview)
	assert.Len(t, backend.tokens, 1)
}

func TestFailedPreviewBlocksConfirm(t *testing.T) {
	w := New(&fakeBackend{previewErr: errors.New("bad file")}, nil)
	ctx := context.Background()

	_, err := w.Preview(ctx, "x.csv", readerOf(""))
	require.Error(t, err)
	assert.Equal(t, StatusError, w.State().Status)

	_, err = w.Confirm(ctx)
	assert.ErrorIs(t, err, ErrNoPreview)
}

func TestResetStartsNewLifecycle(t *testing.T) {
	w := New(&fakeBackend{}, nil)
	ctx := context.Background()

	_, err := w.Preview(ctx, "x.csv", readerOf("x"))
	require.NoError(t, err)
	w.Reset()

	assert.Equal(t, StatusIdle, w.State().Status)
	_, err = w.Confirm(ctx)
	assert.ErrorIs(t, err, ErrNoPreview)
}
