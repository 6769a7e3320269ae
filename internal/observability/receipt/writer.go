package receipt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer persists receipts
type Writer interface {
	Write(r Receipt) error
	Close() error
}

// Mode selects how a receipt file grows
type Mode string

const (
	// ModeOverwrite replaces the file with one indented JSON document
	ModeOverwrite Mode = "overwrite"
	// ModeAppend adds one JSON line per run
	ModeAppend Mode = "append"
)

// NewWriter prepares path for receipts. Unknown modes mean overwrite.
func NewWriter(path string, mode string) (Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for receipt: %w", err)
	}

	if Mode(mode) != ModeAppend {
		return &replaceWriter{path: path, dir: dir}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open receipt file: %w", err)
	}
	return &appendWriter{file: f}, nil
}

// replaceWriter swaps the file in with a rename, so readers never see a
// partial receipt
type replaceWriter struct {
	mu   sync.Mutex
	path string
	dir  string
}

func (w *replaceWriter) Write(r Receipt) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	tmp, err := os.CreateTemp(w.dir, ".receipt-*")
	if err != nil {
		return fmt.Errorf("failed to write receipt: %w", err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmp.Name(), w.path)
	}
	if werr != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write receipt: %w", werr)
	}
	return nil
}

func (w *replaceWriter) Close() error { return nil }

type appendWriter struct {
	mu   sync.Mutex
	file *os.File
}

func (w *appendWriter) Write(r Receipt) error {
	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return fmt.Errorf("receipt writer is closed")
	}
	if _, err := w.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write receipt: %w", err)
	}
	return nil
}

func (w *appendWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
