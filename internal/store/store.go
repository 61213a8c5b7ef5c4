// Package store persists the alarm time as a fixed two-byte record
// {hour, minute}.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sweeney/alarm-clock/internal/logic"
)

// RecordSize is the size of the persisted record in bytes.
const RecordSize = 2

const filePermissions = 0o600

var (
	// ErrNotFound is returned when nothing has been saved yet.
	ErrNotFound = errors.New("alarm time not found")
	// ErrCorrupt is returned for a record of the wrong size or with an
	// out-of-range hour or minute.
	ErrCorrupt = errors.New("alarm time record corrupt")
)

// Repository loads and saves the alarm time.
type Repository interface {
	Load(ctx context.Context) (logic.AlarmTime, error)
	Save(ctx context.Context, at logic.AlarmTime) error
}

// FileRepository keeps the record in a single file.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

// NewFileRepository creates a repository backed by path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: filepath.Clean(path)}
}

// Path returns the backing file.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the record.
func (r *FileRepository) Load(_ context.Context) (logic.AlarmTime, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return logic.AlarmTime{}, ErrNotFound
		}
		return logic.AlarmTime{}, fmt.Errorf("read alarm time: %w", err)
	}
	return Decode(data)
}

// Save replaces the record. The file is written beside the target and
// renamed so a power cut never leaves a half-written record.
func (r *FileRepository) Save(_ context.Context, at logic.AlarmTime) error {
	data, err := Encode(at)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, filePermissions); err != nil {
		return fmt.Errorf("write alarm time: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace alarm time: %w", err)
	}
	return nil
}

// Encode serializes at.
func Encode(at logic.AlarmTime) ([]byte, error) {
	if !at.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, at)
	}
	return []byte{at.Hour, at.Minute}, nil
}

// Decode parses a record.
func Decode(data []byte) (logic.AlarmTime, error) {
	if len(data) != RecordSize {
		return logic.AlarmTime{}, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(data))
	}
	at := logic.AlarmTime{Hour: data[0], Minute: data[1]}
	if !at.Valid() {
		return logic.AlarmTime{}, fmt.Errorf("%w: %02d:%02d", ErrCorrupt, data[0], data[1])
	}
	return at, nil
}

// LoadBoot builds the boot state from repo. A valid record arms the alarm;
// a missing or corrupt one falls back to 00:00 disarmed, and the error is
// returned alongside for logging.
func LoadBoot(ctx context.Context, repo Repository, standby bool) (logic.Boot, error) {
	boot := logic.Boot{Standby: standby}
	at, err := repo.Load(ctx)
	if err != nil {
		return boot, err
	}
	boot.AlarmTime = at
	boot.AlarmActive = true
	return boot, nil
}
