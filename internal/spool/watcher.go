// Package spool ingests JSONL conversation exports dropped into a
// watched directory. Every message in a file runs through the pipeline,
// then the file is renamed with a .done or .failed suffix so operators
// can see what happened and requeue failures by renaming them back.
//
// Producers should write files elsewhere and rename them into the
// directory; a short settle delay tolerates direct writers. Processing
// a file twice is harmless because the pipeline is idempotent.
package spool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remindd/internal/config"
	"github.com/fyrsmithlabs/remindd/internal/conversation"
	"github.com/fyrsmithlabs/remindd/internal/logging"
	"github.com/fyrsmithlabs/remindd/internal/pipeline"
)

const (
	spoolSuffix  = ".jsonl"
	doneSuffix   = ".done"
	failedSuffix = ".failed"

	defaultSettleDelay = 200 * time.Millisecond
)

// Processor resolves one inbound message to a terminal state.
type Processor interface {
	Process(ctx context.Context, msg *conversation.InboundMessage) (*pipeline.Outcome, error)
}

// Watcher feeds spooled conversation files to the pipeline.
type Watcher struct {
	dir       string
	processor Processor
	watcher   *fsnotify.Watcher
	logger    *logging.Logger
	stop      chan struct{}

	settleDelay time.Duration
}

// NewWatcher creates a watcher for the configured spool directory.
func NewWatcher(cfg config.SpoolConfig, proc Processor, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize filesystem watcher: %w", err)
	}

	return &Watcher{
		dir:         cfg.Dir,
		processor:   proc,
		watcher:     fw,
		logger:      logger,
		stop:        make(chan struct{}),
		settleDelay: defaultSettleDelay,
	}, nil
}

// Start watches the spool directory and processes files as they arrive.
// Files already present are swept first, so a backlog accumulated while
// the daemon was down is not lost. Call Stop to clean up resources.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating spool directory: %w", err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching spool directory: %w", err)
	}

	w.logger.Info(ctx, "spool intake started", zap.String("dir", w.dir))

	go func() {
		w.sweep(ctx)
		w.processEvents(ctx)
	}()

	return nil
}

// Stop stops the watcher and cleans up resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		// Already stopped
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

// sweep processes files that were already in the directory.
func (w *Watcher) sweep(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn(ctx, "failed to list spool directory", zap.Error(err))
		return
	}

	for _, entry := range entries {
		if entry.IsDir() || !isSpoolFile(entry.Name()) {
			continue
		}
		w.processFile(ctx, filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isSpoolFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.settle(ctx)
			w.processFile(ctx, event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "spool watcher error", zap.Error(err))
		}
	}
}

// settle gives a direct writer a moment to finish before the file is read.
func (w *Watcher) settle(ctx context.Context) {
	select {
	case <-time.After(w.settleDelay):
	case <-ctx.Done():
	case <-w.stop:
	}
}

// processFile runs every message in one spool file through the pipeline
// and renames the file by result. Undecodable lines are logged and
// skipped; only fatal pipeline errors mark the file failed.
func (w *Watcher) processFile(ctx context.Context, path string) {
	if _, err := os.Stat(path); err != nil {
		// Already renamed by an earlier event for the same file.
		return
	}

	res, err := conversation.ParseFile(path)
	if err != nil {
		w.logger.Error(ctx, "failed to read spool file", zap.String("path", path), zap.Error(err))
		w.rename(ctx, path, failedSuffix)
		return
	}

	if res.ErrorCount > 0 {
		w.logger.Warn(ctx, "spool file has undecodable lines",
			zap.String("path", path),
			zap.Int("bad_lines", res.ErrorCount),
		)
	}

	var failures int
	for _, msg := range res.Messages {
		out, err := w.processor.Process(ctx, msg)
		if err != nil {
			failures++
			w.logger.Error(ctx, "spool message processing failed",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			continue
		}
		w.logger.Debug(ctx, "spool message processed",
			zap.String("message_id", msg.ID),
			zap.String("state", string(out.State)),
		)
	}

	suffix := doneSuffix
	if failures > 0 {
		suffix = failedSuffix
	}
	w.logger.Info(ctx, "spool file processed",
		zap.String("path", path),
		zap.Int("messages", len(res.Messages)),
		zap.Int("failures", failures),
	)
	w.rename(ctx, path, suffix)
}

func (w *Watcher) rename(ctx context.Context, path, suffix string) {
	if err := os.Rename(path, path+suffix); err != nil {
		w.logger.Warn(ctx, "failed to rename spool file", zap.String("path", path), zap.Error(err))
	}
}

func isSpoolFile(name string) bool {
	return strings.HasSuffix(name, spoolSuffix)
}
