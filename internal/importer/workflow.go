// Package importer drives the two-phase bulk import: a side-effect free
// preview that yields a single-use token, then a confirm that commits it.
package importer

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/internal/model"
	"github.com/smart-daily/dailychat/pkg/logger"
)

var (
	// ErrNoPreview is returned by Confirm without a successful preview in
	// the current workflow lifecycle.
	ErrNoPreview = errors.New("no import preview to confirm")

	// ErrBusy is returned while a preview or confirm is in flight.
	ErrBusy = errors.New("import already in progress")
)

// Backend is the agent's import API.
type Backend interface {
	PreviewImport(ctx context.Context, filename string, file io.Reader) (*model.PreviewResult, error)
	ConfirmImport(ctx context.Context, token string) (*model.ConfirmResult, error)
}

// Status is the workflow step.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusUploading  Status = "uploading"
	StatusPreview    Status = "preview"
	StatusConfirming Status = "confirming"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// State is a snapshot of the workflow.
type State struct {
	Status  Status
	Preview *model.PreviewResult
	Result  *model.ConfirmResult
	Err     error
}

// Workflow is one import lifecycle. Reset starts a new one.
type Workflow struct {
	mu      sync.Mutex
	backend Backend
	state   State
	log     *logger.Logger
}

// New creates an idle workflow.
func New(backend Backend, log *logger.Logger) *Workflow {
	return &Workflow{
		backend: backend,
		state:   State{Status: StatusIdle},
		log:     logger.OrNop(log).Named("importer"),
	}
}

// State returns the current snapshot.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Preview uploads file for parsing. A previous preview or result is
// discarded.
func (w *Workflow) Preview(ctx context.Context, filename string, file io.Reader) (*model.PreviewResult, error) {
	w.mu.Lock()
	if w.busyLocked() {
		w.mu.Unlock()
		return nil, ErrBusy
	}
	w.state = State{Status: StatusUploading}
	w.mu.Unlock()

	preview, err := w.backend.PreviewImport(ctx, filename, file)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.log.Warn("import preview failed", zap.String("file", filename), zap.Error(err))
		w.state = State{Status: StatusError, Err: err}
		return nil, err
	}
	w.log.Info("import previewed",
		zap.String("file", filename),
		zap.Int("entries", len(preview.Entries)),
		zap.Int("unmatched", len(preview.UnmatchedMembers)),
	)
	w.state = State{Status: StatusPreview, Preview: preview}
	return preview, nil
}

// Confirm commits the previewed batch. The token is consumed whatever the
// outcome; a rejected token is not retried.
func (w *Workflow) Confirm(ctx context.Context) (*model.ConfirmResult, error) {
	w.mu.Lock()
	if w.busyLocked() {
		w.mu.Unlock()
		return nil, ErrBusy
	}
	if w.state.Status != StatusPreview || w.state.Preview == nil || w.state.Preview.Token == "" {
		w.mu.Unlock()
		return nil, ErrNoPreview
	}
	token := w.state.Preview.Token
	w.state = State{Status: StatusConfirming}
	w.mu.Unlock()

	result, err := w.backend.ConfirmImport(ctx, token)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.log.Warn("import confirm failed", zap.Error(err))
		w.state = State{Status: StatusError, Err: err}
		return nil, err
	}
	w.log.Info("import committed",
		zap.Int("imported", result.Imported),
		zap.Int("merged", result.Merged),
		zap.Int("skipped", result.Skipped),
	)
	w.state = State{Status: StatusSuccess, Result: result}
	return result, nil
}

// Reset returns the workflow to idle. It has no effect while a request is
// in flight.
func (w *Workflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busyLocked() {
		return
	}
	w.state = State{Status: StatusIdle}
}

func (w *Workflow) busyLocked() bool {
	return w.state.Status == StatusUploading || w.state.Status == StatusConfirming
}
