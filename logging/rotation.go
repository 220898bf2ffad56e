package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	logFilePrefix      = "nhanes-"
	defaultMaxFileSize = 100 * 1024 * 1024
	cleanupInterval    = 24 * time.Hour
)

var sequencePattern = regexp.MustCompile(`^nhanes-\d{4}-W\d{2}_(\d{2})\.log$`)

// RotatingWriter writes to one log file per ISO week and starts a numbered
// file within the week once the current one reaches maxFileSize. Files older
// than the retention period are removed once a day.
type RotatingWriter struct {
	dir         string
	retention   time.Duration
	maxFileSize int64
	now         func() time.Time

	mu   sync.Mutex
	file *os.File
	week string
	size int64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRotatingWriter creates dir if needed, opens the file of the current week
// and starts the retention cleanup.
func NewRotatingWriter(dir string, retentionWeeks int, maxFileSize int64) (*RotatingWriter, error) {
	if dir == "" {
		dir = "logs"
	}
	if retentionWeeks <= 0 {
		retentionWeeks = 4
	}
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &RotatingWriter{
		dir:         dir,
		retention:   time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxFileSize: maxFileSize,
		now:         time.Now,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	w.mu.Lock()
	err := w.rotate(weekKey(w.now()), false)
	w.mu.Unlock()
	if err != nil {
		cancel()
		return nil, err
	}

	go w.cleanupLoop(ctx)
	return w, nil
}

// weekKey returns the ISO week of t as YYYY-Www
func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	week := weekKey(w.now())
	switch {
	case week != w.week:
		if err := w.rotate(week, false); err != nil {
			return 0, err
		}
	case w.size > 0 && w.size+int64(len(p)) > w.maxFileSize:
		if err := w.rotate(week, true); err != nil {
			return 0, err
		}
	}

	if w.file == nil {
		return 0, fmt.Errorf("no log file available")
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// rotate opens the file for week. Caller holds mu.
func (w *RotatingWriter) rotate(week string, full bool) error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
		w.file = nil
	}

	name := w.fileName(week, full)
	path := filepath.Join(w.dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	var size int64
	if info, err := file.Stat(); err == nil {
		size = info.Size()
	}
	w.file = file
	w.week = week
	w.size = size
	return nil
}

// fileName picks the file to append to: the base file of the week while it
// has room, else the highest numbered file while it has room, else the next
// number.
func (w *RotatingWriter) fileName(week string, full bool) string {
	base := fmt.Sprintf("%s%s.log", logFilePrefix, week)
	highest, lastName, lastSize := w.highestSequence(week)

	if highest == 0 && !full {
		if info, err := os.Stat(filepath.Join(w.dir, base)); err != nil || info.Size() < w.maxFileSize {
			return base
		}
	}
	if highest > 0 && !full && lastSize < w.maxFileSize {
		return lastName
	}
	return fmt.Sprintf("%s%s_%02d.log", logFilePrefix, week, highest+1)
}

func (w *RotatingWriter) highestSequence(week string) (int, string, int64) {
	matches, _ := filepath.Glob(filepath.Join(w.dir, fmt.Sprintf("%s%s_??.log", logFilePrefix, week)))

	highest := 0
	var name string
	var size int64
	for _, match := range matches {
		m := sequencePattern.FindStringSubmatch(filepath.Base(match))
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		if num <= highest {
			continue
		}
		highest = num
		name = filepath.Base(match)
		size = 0
		if info, err := os.Stat(match); err == nil {
			size = info.Size()
		}
	}
	return highest, name, size
}

func (w *RotatingWriter) cleanupLoop(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.cleanup(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to clean up old logs: %v\n", err)
			}
		}
	}
}

// cleanup removes log files last modified before the retention cutoff and
// returns how many were deleted.
func (w *RotatingWriter) cleanup() (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := w.now().Add(-w.retention)
	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, logFilePrefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(w.dir, name)); err == nil {
				deleted++
			}
		}
	}
	return deleted, nil
}

// Close stops the cleanup goroutine and closes the current file
func (w *RotatingWriter) Close() error {
	w.cancel()
	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
