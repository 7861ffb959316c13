// File: internal/audit/log.go
package audit

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// stamp fills in the entry fields the caller should not have to provide.
func stamp(entry *schemas.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
}

// NopLog discards entries. Used when auditing is disabled by configuration.
type NopLog struct{}

// Append implements schemas.AuditLog.
func (NopLog) Append(context.Context, schemas.AuditEntry) error { return nil }

// FileLog appends one JSON object per line to an audit file. The file is
// opened O_APPEND so concurrent processes interleave whole lines, and a
// mutex serializes writers within this process.
type FileLog struct {
	logger *zap.Logger
	mu     sync.Mutex
	f      *os.File
}

// NewFileLog opens (or creates) the audit file for appending.
func NewFileLog(logger *zap.Logger, path string) (*FileLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file %q: %w", path, err)
	}
	return &FileLog{
		logger: logger.Named("audit_file"),
		f:      f,
	}, nil
}

// Append writes the entry as one JSONL record.
func (l *FileLog) Append(_ context.Context, entry schemas.AuditEntry) error {
	stamp(&entry)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.Write(append(data, '\n')); err != nil {
		l.logger.Error("Failed to append audit entry", zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
