// Package report writes settlement reports to disk.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/okian/shillbot/internal/domain/model"
	"github.com/okian/shillbot/pkg/logger"
)

const (
	latestName = "latest.json"
	historyDir = "history"
	exportsDir = "exports"
)

// ErrNoWindow is returned for reports without a window id.
var ErrNoWindow = errors.New("report has no window id")

// Writer stores each report as history/<window>.json and refreshes
// latest.json. Files are replaced atomically.
type Writer struct {
	dir    string
	logger logger.Logger
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string, l logger.Logger) *Writer {
	if l == nil {
		l = logger.Discard()
	}
	return &Writer{dir: dir, logger: l}
}

// Write stores r. latest.json only moves forward in window order.
func (w *Writer) Write(ctx context.Context, r *model.Report) error {
	if r == nil || r.WindowID == "" {
		return ErrNoWindow
	}
	body, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	body = append(body, '\n')

	if err := os.MkdirAll(filepath.Join(w.dir, historyDir), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := writeAtomic(filepath.Join(w.dir, historyDir, r.WindowID+".json"), body); err != nil {
		return err
	}

	latest, err := w.latestID()
	if err != nil {
		w.logger.Warn(ctx, "unreadable latest report, replacing", logger.Error(err))
	}
	if latest > r.WindowID {
		return nil
	}
	if err := writeAtomic(filepath.Join(w.dir, latestName), body); err != nil {
		return err
	}
	w.logger.Info(ctx, "report written", logger.String("window_id", r.WindowID), logger.String("dir", w.dir))
	return nil
}

// Published reports whether windowID has a history file.
func (w *Writer) Published(windowID string) bool {
	_, err := os.Stat(filepath.Join(w.dir, historyDir, filepath.Base(windowID)+".json"))
	return err == nil
}

// Export stores body as exports/<name> and returns its path.
func (w *Writer) Export(ctx context.Context, name string, body []byte) (string, error) {
	dir := filepath.Join(w.dir, exportsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := writeAtomic(path, body); err != nil {
		return "", err
	}
	w.logger.Info(ctx, "export written", logger.String("path", path), logger.Int("bytes", len(body)))
	return path, nil
}

// Read loads the report of windowID, or latest.json when windowID is empty.
func (w *Writer) Read(windowID string) (*model.Report, error) {
	path := filepath.Join(w.dir, latestName)
	if windowID != "" {
		path = filepath.Join(w.dir, historyDir, filepath.Base(windowID)+".json")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r model.Report
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}

func (w *Writer) latestID() (string, error) {
	r, err := w.Read("")
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return r.WindowID, nil
}

func writeAtomic(path string, body []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}
