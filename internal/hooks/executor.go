// Package hooks runs user-configured external programs on gallery lifecycle
// events. Command templates carry substitution tokens for gallery fields;
// hook stdout can be mapped back onto the gallery's ext fields.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"imxup/internal/config"
	"imxup/internal/logging"
	"imxup/internal/queue"
	"imxup/internal/services"
)

// Gallery lifecycle events hooks can subscribe to.
const (
	EventCompleted  = "completed"
	EventIncomplete = "incomplete"
	EventFailed     = "failed"
)

// parallelWorkers bounds the pool draining parallel-mode hooks of one event.
const parallelWorkers = 4

// Executor schedules and runs the configured hooks. A hook failure never
// affects the gallery outcome unless the hook is marked required.
type Executor struct {
	store      *queue.Store
	logger     *slog.Logger
	hooks      []config.Hook
	stagingDir string
}

func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Executor {
	return &Executor{
		store:      store,
		logger:     logging.NewComponentLogger(logger, "hooks"),
		hooks:      cfg.Hooks,
		stagingDir: cfg.Paths.StagingDir,
	}
}

// RunEvent executes every hook registered for the event. Sequential hooks
// run first in configuration order, each seeing the ext-field values written
// by its predecessors; parallel hooks then run concurrently on a bounded
// pool. The returned error is non-nil only when a required hook failed.
func (x *Executor) RunEvent(ctx context.Context, event string, galleryID int64) error {
	var sequential, parallel []config.Hook
	for _, hook := range x.hooks {
		if hook.Event != event {
			continue
		}
		if hook.Mode == config.HookSequential {
			sequential = append(sequential, hook)
		} else {
			parallel = append(parallel, hook)
		}
	}
	if len(sequential) == 0 && len(parallel) == 0 {
		return nil
	}

	var requiredErr error
	for _, hook := range sequential {
		// Reload so this hook sees ext fields written by the previous one.
		gallery, err := x.store.GetByID(ctx, galleryID)
		if err != nil {
			return err
		}
		if gallery == nil {
			return queue.ErrNotFound
		}
		if err := x.runHook(ctx, hook, gallery); err != nil {
			if hook.Required && requiredErr == nil {
				requiredErr = err
			}
		}
	}

	if len(parallel) > 0 {
		gallery, err := x.store.GetByID(ctx, galleryID)
		if err != nil {
			return err
		}
		if gallery == nil {
			return queue.ErrNotFound
		}

		jobs := make(chan config.Hook)
		var (
			wg sync.WaitGroup
			mu sync.Mutex
		)
		workers := parallelWorkers
		if workers > len(parallel) {
			workers = len(parallel)
		}
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for hook := range jobs {
					if err := x.runHook(ctx, hook, gallery); err != nil && hook.Required {
						mu.Lock()
						if requiredErr == nil {
							requiredErr = err
						}
						mu.Unlock()
					}
				}
			}()
		}
		for _, hook := range parallel {
			jobs <- hook
		}
		close(jobs)
		wg.Wait()
	}

	if requiredErr != nil {
		return services.Wrap(services.ErrRejected, "hooks", event, "required hook failed", requiredErr)
	}
	return nil
}

func (x *Executor) runHook(ctx context.Context, hook config.Hook, gallery *queue.Gallery) error {
	requestID := uuid.NewString()
	logger := x.logger.With(
		logging.String(logging.FieldRequestID, requestID),
		logging.Int64(logging.FieldGalleryID, gallery.ID),
		logging.String("event", hook.Event))

	args := splitCommand(hook.Command)
	if len(args) == 0 {
		err := fmt.Errorf("hook for %s has an empty command", hook.Event)
		logger.Error("hook rejected", logging.Error(err))
		return err
	}

	// The store-mode archive exists only for this invocation and is removed
	// whatever the program's exit status.
	var zipPath string
	if usesToken(args, zipToken) {
		path, err := buildZip(gallery, x.stagingDir)
		if err != nil {
			logger.Error("hook archive", logging.Error(err))
			return err
		}
		zipPath = path
		defer os.Remove(zipPath)
	}

	values := tokenValues(gallery, zipPath)
	expanded := make([]string, len(args))
	for i, arg := range args {
		expanded[i] = expand(arg, values)
	}

	timeout := time.Duration(hook.Timeout) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	hookCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(hookCtx, expanded[0], expanded[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if errors.Is(hookCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("killed after %s: %w", timeout, err)
		}
		logger.Warn("hook failed",
			logging.String("command", expanded[0]),
			logging.Duration("elapsed", time.Since(start)),
			logging.String("stderr", stderr.String()),
			logging.Error(err))
		return err
	}

	logger.Info("hook finished",
		logging.String("command", expanded[0]),
		logging.Duration("elapsed", time.Since(start)))

	if len(hook.ExtMap) > 0 {
		x.applyExtMap(ctx, hook, gallery, stdout.Bytes(), logger)
	}
	return nil
}

// applyExtMap maps keys from the hook's JSON stdout onto the gallery's ext
// fields. Malformed JSON is logged and ignored.
func (x *Executor) applyExtMap(ctx context.Context, hook config.Hook, gallery *queue.Gallery, output []byte, logger *slog.Logger) {
	var parsed map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(output), &parsed); err != nil {
		logger.Warn("hook output is not valid JSON, ignoring", logging.Error(err))
		return
	}

	var patch queue.FieldPatch
	changed := false
	for i := 1; i <= 4; i++ {
		jsonKey, ok := hook.ExtMap["ext"+strconv.Itoa(i)]
		if !ok {
			continue
		}
		raw, ok := parsed[jsonKey]
		if !ok {
			continue
		}
		value := stringify(raw)
		patch.Ext[i-1] = &value
		gallery.SetExt(i, value)
		changed = true
	}
	if !changed {
		return
	}
	if err := x.store.UpdateFields(ctx, gallery.ID, patch); err != nil {
		logger.Error("store ext fields", logging.Error(err))
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}
