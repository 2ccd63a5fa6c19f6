// Package importer ingests markdown outline files dropped into a watched
// directory, appending their bullets (and checkbox task states) to the log.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/dagaz/internal/index"
	"github.com/starford/dagaz/internal/models"
	"github.com/starford/dagaz/internal/noteservice"
	"github.com/starford/dagaz/internal/storage"
)

// clientID used for appends originating from file import.
const clientID = "importer"

// Importer turns dropped markdown files into append-log events.
type Importer struct {
	svc    *noteservice.Service
	db     index.Log
	store  storage.Provider
	logger *slog.Logger
	notify func(event string, data any)
}

// New creates an Importer. notify, if non-nil, is called after each imported
// file (wired to the SSE broker).
func New(svc *noteservice.Service, db index.Log, store storage.Provider, logger *slog.Logger, notify func(event string, data any)) *Importer {
	return &Importer{svc: svc, db: db, store: store, logger: logger, notify: notify}
}

// Sync brings the log up to date with the drop directory: every new or
// changed .md file is parsed and appended. Files are identified by checksum;
// unchanged files are skipped. Removal of a file is deliberately ignored —
// the log is append-only and already-ingested bullets stay.
func (im *Importer) Sync(ctx context.Context) error {
	metas, err := im.store.List()
	if err != nil {
		return err
	}

	for _, m := range metas {
		recorded, err := im.db.ImportChecksum(m.Path)
		if err != nil {
			return err
		}
		if recorded == m.Checksum {
			continue
		}

		data, err := im.store.Read(m.Path)
		if err != nil {
			im.logger.Warn("import: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := im.importFile(ctx, m.Path, data); err != nil {
			im.logger.Warn("import: failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := im.db.SetImportChecksum(m.Path, m.Checksum); err != nil {
			return err
		}
		im.logger.Debug("import: ingested", slog.String("path", m.Path))
	}

	return nil
}

// importFile appends one file's outline to the note derived from its name:
// a YYYY-MM-DD basename targets the daily note, anything else a named note.
// Bullets are appended strictly in document order; checkbox states become
// task annotations on the freshly appended bullets.
func (im *Importer) importFile(ctx context.Context, path string, data []byte) error {
	base := strings.TrimSuffix(filepath.Base(path), ".md")

	var note *models.Note
	var err error
	if _, dateErr := time.Parse("2006-01-02", base); dateErr == nil {
		note, err = im.svc.EnsureNote(ctx, base, "")
	} else {
		note, err = im.svc.EnsureNote(ctx, "", base)
	}
	if err != nil {
		return err
	}

	blocks := ParseOutline(data)
	for _, b := range blocks {
		if _, err := im.svc.AppendBullet(ctx, note.ID, clientID, b.Payload); err != nil {
			return fmt.Errorf("append %s: %w", b.Payload.BulletID, err)
		}
		if b.TaskState == "" {
			continue
		}
		taskData, _ := json.Marshal(models.TaskData{State: b.TaskState})
		if _, err := im.svc.AppendAnnotation(ctx, models.AnnotationPayload{
			BulletID: b.Payload.BulletID,
			Type:     models.AnnotationTask,
			Data:     taskData,
		}); err != nil {
			return fmt.Errorf("annotate %s: %w", b.Payload.BulletID, err)
		}
	}

	im.logger.Info("import: file ingested",
		slog.String("path", path),
		slog.String("note_id", note.ID),
		slog.Int("bullets", len(blocks)))
	if im.notify != nil {
		im.notify("bullet.appended", map[string]any{"noteId": note.ID, "count": len(blocks)})
	}
	return nil
}

// Watch starts an fsnotify watcher on root and re-syncs after file activity
// settles, until ctx is cancelled. Events are debounced so editors that write
// in bursts trigger a single sync; the checksum ledger makes re-syncs cheap.
func (im *Importer) Watch(ctx context.Context, root string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}

	im.logger.Info("import: watcher started", slog.String("root", root))

	var syncTimer *time.Timer
	var syncCh <-chan time.Time

	scheduleSync := func() {
		if syncTimer == nil {
			syncTimer = time.NewTimer(200 * time.Millisecond)
			syncCh = syncTimer.C
		} else {
			syncTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if syncTimer != nil {
				syncTimer.Stop()
			}
			im.logger.Info("import: watcher stopped")
			return nil

		case <-syncCh:
			if err := im.Sync(ctx); err != nil {
				im.logger.Warn("import: sync failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleSync()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.logger.Warn("import: watcher error", slog.String("error", err.Error()))
		}
	}
}
