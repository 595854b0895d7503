package visitlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Journal appends visit records as JSON lines under baseDir/YYYY-MM-DD/visits.jsonl.
// Writes are queued and flushed by a single goroutine.
type Journal struct {
	baseDir   string
	maxSizeMB int
	writeCh   chan Record
	done      chan struct{}
	wg        sync.WaitGroup

	mu          sync.Mutex
	currentDate string
	out         *lumberjack.Logger
	now         func() time.Time
}

// NewJournal starts a journal writer. bufferSize bounds the queue; when it is
// full, records are dropped with a warning rather than blocking the caller.
func NewJournal(baseDir string, bufferSize, maxSizeMB int) (*Journal, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("visit journal: mkdir %s: %w", baseDir, err)
	}
	j := &Journal{
		baseDir:   baseDir,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan Record, bufferSize),
		done:      make(chan struct{}),
		now:       time.Now,
	}
	j.wg.Add(1)
	go j.writeLoop()
	return j, nil
}

// Write queues a record.
func (j *Journal) Write(rec Record) error {
	select {
	case <-j.done:
		return fmt.Errorf("visit journal is closed")
	default:
	}
	select {
	case j.writeCh <- rec:
		return nil
	default:
		slog.Warn("visit journal buffer full, dropping record", "url", rec.URL)
		return fmt.Errorf("buffer full")
	}
}

// Close drains queued records and closes the current file.
func (j *Journal) Close() error {
	close(j.done)
	j.wg.Wait()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.out != nil {
		return j.out.Close()
	}
	return nil
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()
	for {
		select {
		case rec := <-j.writeCh:
			j.writeRecord(rec)
		case <-j.done:
			for {
				select {
				case rec := <-j.writeCh:
					j.writeRecord(rec)
				default:
					return
				}
			}
		}
	}
}

func (j *Journal) writeRecord(rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		slog.Error("visit journal marshal failed", "error", err)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	date := j.now().UTC().Format("2006-01-02")
	if j.out == nil || date != j.currentDate {
		if err := j.rotateLocked(date); err != nil {
			slog.Error("visit journal rotate failed", "error", err, "date", date)
			return
		}
	}

	if _, err := j.out.Write(append(data, '\n')); err != nil {
		slog.Error("visit journal write failed", "error", err)
	}
}

func (j *Journal) rotateLocked(date string) error {
	if j.out != nil {
		if err := j.out.Close(); err != nil {
			slog.Debug("visit journal close failed", "error", err)
		}
	}

	dir := filepath.Join(j.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		j.out = nil
		return err
	}

	filename := filepath.Join(dir, "visits.jsonl")
	j.out = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    j.maxSizeMB,
		MaxBackups: 30,
		MaxAge:     30,
		LocalTime:  false,
	}
	j.currentDate = date
	slog.Info("visit journal opened", "file", filename)
	return nil
}
