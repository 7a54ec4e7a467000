package feed

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"VitalWatch/internal/domain/models"
	applogger "VitalWatch/pkg/logger"
)

// Handler receives parsed feed events.
type Handler func(ctx context.Context, ev models.FeedEvent) error

// FileReader loads every regular file in a directory, one feed line per line.
type FileReader struct {
	dir string
	l   *applogger.Logger
}

func NewFileReader(dir string, l *applogger.Logger) *FileReader {
	if l == nil {
		l = applogger.NewNop()
	}
	return &FileReader{dir: dir, l: l}
}

// Load parses every file in name order and passes each event to handle.
// Blank lines are ignored. Malformed lines and events rejected by handle are
// counted as skipped with a warning; only I/O failures abort the load.
func (r *FileReader) Load(ctx context.Context, handle Handler) (accepted, skipped int, err error) {
	info, err := os.Stat(r.dir)
	if err != nil {
		return 0, 0, fmt.Errorf("feed dir: %w", err)
	}
	if !info.IsDir() {
		return 0, 0, fmt.Errorf("feed dir: %s is not a directory", r.dir)
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, 0, fmt.Errorf("feed dir: %w", err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		a, s, err := r.loadFile(ctx, filepath.Join(r.dir, e.Name()), handle)
		accepted += a
		skipped += s
		if err != nil {
			return accepted, skipped, err
		}
	}
	r.l.Info("feed files loaded",
		applogger.String("dir", r.dir),
		applogger.Int("accepted", accepted),
		applogger.Int("skipped", skipped),
	)
	return accepted, skipped, nil
}

func (r *FileReader) loadFile(ctx context.Context, path string, handle Handler) (accepted, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return accepted, skipped, err
		}
		lineNo++
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		ev, perr := ParseLine(line)
		if perr == nil {
			perr = handle(ctx, ev)
		}
		if perr != nil {
			skipped++
			r.l.Warn("feed line skipped",
				applogger.String("file", filepath.Base(path)),
				applogger.Int("line", lineNo),
				applogger.Error(perr),
			)
			continue
		}
		accepted++
	}
	if err := sc.Err(); err != nil {
		return accepted, skipped, fmt.Errorf("read %s: %w", path, err)
	}
	return accepted, skipped, nil
}
