package logger

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/VancePeterson/obd2-reader/internal/poller"
)

// Logger records timestamped readings to CSV files with automatic
// rotation. The server calls Record alongside the WebSocket broadcast.
type Logger struct {
	mu      sync.Mutex
	dir     string
	enabled bool

	file   *os.File
	writer *csv.Writer
	rows   int
}

// Config holds logger configuration.
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// Rotate after 200k rows (~2.8 hrs at 20 readings/s).
const maxRowsPerFile = 200_000

var csvHeader = []string{"timestamp", "pid", "name", "status", "value", "unit", "detail"}

// New creates a new Logger.
func New(cfg Config) *Logger {
	if cfg.Path == "" {
		cfg.Path = "/var/log/obd2-reader"
	}
	return &Logger{dir: cfg.Path, enabled: cfg.Enabled}
}

// SetEnabled allows toggling logging at runtime.
func (l *Logger) SetEnabled(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = on
	if !on && l.file != nil {
		l.closeFile()
	}
}

// IsEnabled returns whether logging is active.
func (l *Logger) IsEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Record writes one reading as a CSV row.
func (l *Logger) Record(r poller.Reading) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	if l.writer == nil || l.rows >= maxRowsPerFile {
		if err := l.rotateFile(time.Now()); err != nil {
			log.Printf("[logger] rotate failed: %v", err)
			return
		}
	}

	if err := l.writer.Write(buildRow(r)); err != nil {
		log.Printf("[logger] write failed: %v", err)
		return
	}
	l.writer.Flush()
	l.rows++
}

// Close flushes and closes the current log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

func (l *Logger) rotateFile(now time.Time) error {
	l.closeFile()

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}

	filename := fmt.Sprintf("obd2_%s.csv", now.Format("2006-01-02_150405"))
	path := filepath.Join(l.dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	l.file = f
	l.writer = csv.NewWriter(f)
	l.rows = 0

	if err := l.writer.Write(csvHeader); err != nil {
		return err
	}
	l.writer.Flush()

	log.Printf("[logger] opened %s", path)
	return nil
}

func (l *Logger) closeFile() {
	if l.writer != nil {
		l.writer.Flush()
		l.writer = nil
	}
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

func buildRow(r poller.Reading) []string {
	row := []string{
		r.Stamp.Format(time.RFC3339Nano),
		r.PID.Command(),
		"",
		string(r.Status),
		"",
		"",
		r.Detail,
	}
	if r.Value != nil {
		row[2] = r.Value.Name
		if r.Value.Text != "" {
			row[4] = r.Value.Text
		} else {
			row[4] = strconv.FormatFloat(r.Value.Num, 'f', -1, 64)
		}
		row[5] = r.Value.Unit
	}
	return row
}
