package analytics

import (
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"blinky/internal/model"
)

var csvHeader = []string{"id", "started_at", "duration_seconds", "completed", "skipped", "preceding_work_seconds"}

// ExportCSV writes every break record, oldest first, to a new timestamped file
// in the export directory and returns its path.
func (e *Engine) ExportCSV(ctx context.Context) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if err := e.fs.MkdirAll(e.exportDir, 0750); err != nil {
		return "", &model.PersistenceError{Op: "export", Err: fmt.Errorf("failed to create export dir %s: %w", e.exportDir, err)}
	}
	path, err := e.exportPath()
	if err != nil {
		return "", &model.PersistenceError{Op: "export", Err: err}
	}

	f, err := e.fs.Create(path)
	if err != nil {
		return "", &model.PersistenceError{Op: "export", Err: fmt.Errorf("failed to create %s: %w", path, err)}
	}

	rows, err := writeCSV(ctx, f, e)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = e.fs.Remove(path)
		return "", &model.PersistenceError{Op: "export", Err: err}
	}

	e.log.Info().Str("path", path).Int("rows", rows).Msg("exported break history")
	return path, nil
}

func writeCSV(ctx context.Context, f afero.File, e *Engine) (int, error) {
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return 0, err
	}
	rows := 0
	err := e.store.IterateBreaks(ctx, func(r model.BreakRecord) error {
		rows++
		return w.Write([]string{
			strconv.FormatInt(r.ID, 10),
			r.StartedAt.In(e.loc).Format(time.RFC3339),
			strconv.Itoa(r.DurationSeconds),
			strconv.FormatBool(r.Completed),
			strconv.FormatBool(r.Skipped),
			strconv.Itoa(r.PrecedingWorkSeconds),
		})
	})
	if err != nil {
		return rows, err
	}
	w.Flush()
	return rows, w.Error()
}

// exportPath picks blinky_export_YYYYMMDD_HHMMSS.csv, adding a counter when
// two exports land in the same second.
func (e *Engine) exportPath() (string, error) {
	stamp := e.now().In(e.loc).Format("20060102_150405")
	base := filepath.Join(e.exportDir, "blinky_export_"+stamp)
	path := base + ".csv"
	for i := 1; ; i++ {
		exists, err := afero.Exists(e.fs, path)
		if err != nil {
			return "", err
		}
		if !exists {
			return path, nil
		}
		path = fmt.Sprintf("%s_%d.csv", base, i)
	}
}
