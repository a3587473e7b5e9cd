package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/andreddluiz/shiftflow/internal/lock"
	"github.com/andreddluiz/shiftflow/internal/metrics"
	"github.com/andreddluiz/shiftflow/internal/model"
	"github.com/andreddluiz/shiftflow/internal/uds"
)

// Daemon hosts one operator session: the control socket, the store poller,
// the change watcher, and the metrics endpoint.
type Daemon struct {
	cfg        model.Config
	session    *Session
	sessionDir string
	storeDir   string
	metrics    *metrics.Metrics
	logger     *zap.Logger

	server   *uds.Server
	fileLock *lock.FileLock
	poller   *Poller
	watcher  *fsnotify.Watcher

	shutdownCh chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewDaemon wires a daemon around an already-constructed session.
// sessionDir is the operator's .shiftflow directory.
func NewDaemon(cfg model.Config, sess *Session, sessionDir string, m *metrics.Metrics, logger *zap.Logger) *Daemon {
	return &Daemon{
		cfg:        cfg,
		session:    sess,
		sessionDir: sessionDir,
		storeDir:   cfg.Store.Dir,
		metrics:    m,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}
}

// Run blocks until ctx is cancelled or a shutdown command arrives.
func (d *Daemon) Run(ctx context.Context) error {
	d.fileLock = lock.NewFileLock(filepath.Join(d.sessionDir, "locks", "session.lock"))
	if err := d.fileLock.TryLock(); err != nil {
		return err
	}
	defer func() {
		if err := d.fileLock.Unlock(); err != nil {
			d.logger.Warn("release session lock", zap.Error(err))
		}
	}()

	if err := d.session.Restore(ctx); err != nil {
		d.logger.Warn("restore cached selection", zap.Error(err))
	}

	pollInterval := time.Duration(d.cfg.Session.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	d.poller = NewPoller(pollInterval, d.session.PollOnce)

	d.server = uds.NewServer(filepath.Join(d.sessionDir, uds.DefaultSocketName), d.logger)
	d.registerHandlers()
	if err := d.server.Start(); err != nil {
		return fmt.Errorf("start control socket: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.startWatcher()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.poller.Run(runCtx)
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.metrics.Serve(runCtx, d.cfg.Metrics.Addr, d.logger)
	}()

	d.logger.Info("session running",
		zap.String("base", d.cfg.Station.BaseID),
		zap.String("operator", d.cfg.Session.OperatorID),
		zap.String("store", d.storeDir))

	select {
	case <-ctx.Done():
	case <-d.shutdownCh:
	}

	return d.shutdown(cancel)
}

func (d *Daemon) shutdown(cancel context.CancelFunc) error {
	d.logger.Info("session shutting down")

	// Flush pending edits before anything else stops.
	d.session.Close()

	if d.watcher != nil {
		_ = d.watcher.Close()
	}
	if err := d.server.Stop(); err != nil {
		d.logger.Warn("stop control socket", zap.Error(err))
	}
	cancel()

	timeout := time.Duration(d.cfg.Session.ShutdownTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("session stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown drain timed out after %s", timeout)
	}
}

// startWatcher kicks the poller when another session writes the store.
// Watch failure is not fatal; the interval poll still converges.
func (d *Daemon) startWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.logger.Warn("store watcher unavailable", zap.Error(err))
		return
	}
	if err := watcher.Add(filepath.Join(d.storeDir, "drafts")); err != nil {
		d.logger.Warn("watch store directory", zap.Error(err))
		_ = watcher.Close()
		return
	}
	d.watcher = watcher

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
					d.poller.Kick()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.logger.Warn("store watcher error", zap.Error(err))
			}
		}
	}()
}

type selectParams struct {
	Date        string `json:"date"`
	ShiftSlotID string `json:"shift_slot_id"`
}

type assignParams struct {
	Slot           int    `json:"slot"`
	CollaboratorID string `json:"collaborator_id"`
}

type taskParams struct {
	TaskID string `json:"task_id"`
	Value  string `json:"value"`
}

type nonRoutineParams struct {
	Action string                `json:"action"` // add, update, remove
	Index  int                   `json:"index,omitempty"`
	Entry  model.NonRoutineEntry `json:"entry"`
}

type controlParams struct {
	Remove bool `json:"remove,omitempty"`
	ControlRowInput
}

type noteParams struct {
	Text string `json:"text"`
}

func (d *Daemon) registerHandlers() {
	d.server.Handle("ping", func(*uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]string{"status": "ok"})
	})

	d.server.Handle("select", func(req *uds.Request) *uds.Response {
		var p selectParams
		if resp := decodeParams(req, &p); resp != nil {
			return resp
		}
		if err := d.session.Select(context.Background(), p.Date, p.ShiftSlotID); err != nil {
			return errorResponse(err)
		}
		return uds.SuccessResponse(d.session.Status())
	})

	d.server.Handle("reopen", func(req *uds.Request) *uds.Response {
		var p selectParams
		if resp := decodeParams(req, &p); resp != nil {
			return resp
		}
		if err := d.session.Reopen(context.Background(), p.Date, p.ShiftSlotID); err != nil {
			return errorResponse(err)
		}
		return uds.SuccessResponse(d.session.Status())
	})

	d.server.Handle("assign", func(req *uds.Request) *uds.Response {
		var p assignParams
		if resp := decodeParams(req, &p); resp != nil {
			return resp
		}
		if err := d.session.Assign(p.Slot, p.CollaboratorID); err != nil {
			return errorResponse(err)
		}
		return uds.SuccessResponse(nil)
	})

	d.server.Handle("task", func(req *uds.Request) *uds.Response {
		var p taskParams
		if resp := decodeParams(req, &p); resp != nil {
			return resp
		}
		if err := d.session.SetTask(p.TaskID, p.Value); err != nil {
			return errorResponse(err)
		}
		return uds.SuccessResponse(nil)
	})

	d.server.Handle("nonroutine", func(req *uds.Request) *uds.Response {
		var p nonRoutineParams
		if resp := decodeParams(req, &p); resp != nil {
			return resp
		}
		var err error
		switch p.Action {
		case "add":
			err = d.session.AddNonRoutine(p.Entry)
		case "update":
			err = d.session.UpdateNonRoutine(p.Index, p.Entry)
		case "remove":
			err = d.session.RemoveNonRoutine(p.Index)
		default:
			return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("unknown action %q", p.Action))
		}
		if err != nil {
			return errorResponse(err)
		}
		return uds.SuccessResponse(nil)
	})

	d.server.Handle("control", func(req *uds.Request) *uds.Response {
		var p controlParams
		if resp := decodeParams(req, &p); resp != nil {
			return resp
		}
		if p.Remove {
			if err := d.session.RemoveControlRow(p.Family, p.ID); err != nil {
				return errorResponse(err)
			}
			return uds.SuccessResponse(nil)
		}
		alert, err := d.session.UpsertControlRow(p.ControlRowInput)
		if err != nil {
			return errorResponse(err)
		}
		data := map[string]any{}
		if alert != nil {
			data["alert"] = map[string]string{
				"level":   string(alert.Level),
				"title":   alert.Title,
				"message": alert.Message,
			}
		}
		return uds.SuccessResponse(data)
	})

	d.server.Handle("note", func(req *uds.Request) *uds.Response {
		var p noteParams
		if resp := decodeParams(req, &p); resp != nil {
			return resp
		}
		if err := d.session.SetNotes(p.Text); err != nil {
			return errorResponse(err)
		}
		return uds.SuccessResponse(nil)
	})

	d.server.Handle("finalize", func(req *uds.Request) *uds.Response {
		var p FinalizeOptions
		if resp := decodeParams(req, &p); resp != nil {
			return resp
		}
		result, err := d.session.Finalize(context.Background(), p)
		if err != nil {
			return errorResponse(err)
		}
		return uds.SuccessResponse(result)
	})

	d.server.Handle("status", func(*uds.Request) *uds.Response {
		return uds.SuccessResponse(d.session.Status())
	})

	d.server.Handle("shutdown", func(*uds.Request) *uds.Response {
		d.stopOnce.Do(func() { close(d.shutdownCh) })
		return uds.SuccessResponse(map[string]string{"status": "stopping"})
	})
}

func decodeParams(req *uds.Request, v any) *uds.Response {
	if len(req.Params) == 0 {
		return uds.ErrorResponse(uds.ErrCodeValidation, "missing parameters")
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid parameters: %v", err))
	}
	return nil
}

func errorResponse(err error) *uds.Response {
	var (
		validationErr *ValidationError
		confirmErr    *ConfirmRequiredError
		dupCollab     *DuplicateCollaboratorError
		dupPeriod     *DuplicatePeriodError
	)
	switch {
	case errors.As(err, &validationErr):
		return uds.ErrorResponseDetails(uds.ErrCodeValidation, err.Error(), validationErr.Violations)
	case errors.As(err, &confirmErr):
		return uds.ErrorResponseDetails(uds.ErrCodeConfirmRequired, err.Error(), confirmErr.Conflicts)
	case errors.As(err, &dupCollab):
		return uds.ErrorResponse(uds.ErrCodeDuplicateMember, err.Error())
	case errors.As(err, &dupPeriod):
		return uds.ErrorResponse(uds.ErrCodeDuplicatePeriod, err.Error())
	case errors.Is(err, ErrNoSelection):
		return uds.ErrorResponse(uds.ErrCodeIncompleteKey, err.Error())
	case errors.Is(err, ErrNotEditable):
		return uds.ErrorResponse(uds.ErrCodeFinalized, err.Error())
	default:
		return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
	}
}
