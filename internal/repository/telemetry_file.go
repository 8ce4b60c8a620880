package repository

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"SignalGate/internal/domain/models"
)

// FileTelemetrySink appends one JSON object per line. Writes are serialized so
// lines never interleave across symbols.
type FileTelemetrySink struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// NewFileTelemetrySink opens path for append, creating parent directories.
func NewFileTelemetrySink(path string) (*FileTelemetrySink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("telemetry dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open telemetry file: %w", err)
	}
	return &FileTelemetrySink{f: f, w: bufio.NewWriter(f)}, nil
}

func (s *FileTelemetrySink) Write(_ context.Context, rec models.TelemetryRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *FileTelemetrySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	ferr := s.w.Flush()
	cerr := s.f.Close()
	s.f = nil
	if ferr != nil {
		return ferr
	}
	return cerr
}
