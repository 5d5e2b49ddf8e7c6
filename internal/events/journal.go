// Package events keeps a local JSONL journal of monitoring cycles.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ac-freeman/open-accountability/internal/monitor"
)

// DefaultFilename is the journal file created inside the journal directory.
const DefaultFilename = "cycles.jsonl"

// Journal appends one JSON line per monitoring cycle.
// It is safe for concurrent use from multiple goroutines.
type Journal struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewJournal opens dir/cycles.jsonl for appending, creating dir if needed.
func NewJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	path := filepath.Join(dir, DefaultFilename)

	// Reports name the keywords that were seen on screen.
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return &Journal{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// RecordCycle implements monitor.Recorder.
func (j *Journal) RecordCycle(summary monitor.CycleSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal cycle %d: %w", summary.Cycle, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return fmt.Errorf("journal %s is closed", j.path)
	}
	if _, err := j.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write cycle: %w", err)
	}
	if err := j.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush journal: %w", err)
	}
	return nil
}

// Close flushes any remaining data and closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}

	if err := j.writer.Flush(); err != nil {
		_ = j.file.Close()
		j.file = nil
		return fmt.Errorf("failed to flush before close: %w", err)
	}
	if err := j.file.Close(); err != nil {
		j.file = nil
		return fmt.Errorf("failed to close journal: %w", err)
	}
	j.file = nil
	return nil
}

// Path returns the path to the journal file.
func (j *Journal) Path() string {
	return j.path
}

// ReadCycles reads every summary from a journal file.
func ReadCycles(path string) ([]monitor.CycleSummary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer func() { _ = file.Close() }()

	var cycles []monitor.CycleSummary
	scanner := bufio.NewScanner(file)
	const maxLineSize = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var summary monitor.CycleSummary
		if err := json.Unmarshal(line, &summary); err != nil {
			return nil, fmt.Errorf("failed to parse cycle on line %d: %w", lineNum, err)
		}
		cycles = append(cycles, summary)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return cycles, nil
}

// Last returns the most recent n summaries, oldest first.
func Last(cycles []monitor.CycleSummary, n int) []monitor.CycleSummary {
	if n <= 0 || n >= len(cycles) {
		return cycles
	}
	return cycles[len(cycles)-n:]
}

// Failed returns the summaries whose cycle ended with an error.
func Failed(cycles []monitor.CycleSummary) []monitor.CycleSummary {
	var failed []monitor.CycleSummary
	for _, c := range cycles {
		if c.Error != "" {
			failed = append(failed, c)
		}
	}
	return failed
}
