package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// DefaultFileName is the resume state file written to the project root.
	DefaultFileName = ".custom_release_resume_state.json"

	stateFilePermissions  = 0o644
	temporaryFilePattern  = ".custom_release_state-*"
	jsonIndentConstant    = "  "
	readErrorTemplate     = "unable to read release state %s: %w"
	decodeErrorTemplate   = "%w: %s: %v"
	encodeErrorTemplate   = "unable to encode release state: %w"
	writeErrorTemplate    = "unable to write release state %s: %w"
	deleteErrorTemplate   = "unable to delete release state %s: %w"
	trailingDataMessage   = "unexpected data after record"
	schemaMismatchMessage = "release state schema mismatch"
)

// ErrSchemaMismatch indicates a state file written by an incompatible build. The operator must discard it.
var ErrSchemaMismatch = errors.New(schemaMismatchMessage)

// Store persists the release record between invocations.
type Store interface {
	// Load returns the stored record and whether one exists.
	Load() (Record, bool, error)
	Save(record Record) error
	Delete() error
	Location() string
}

// FileStore keeps the record in a JSON file, replacing it atomically on every save.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Location returns the state file path.
func (store *FileStore) Location() string {
	return store.path
}

// Exists reports whether the state file is present.
func (store *FileStore) Exists() (bool, error) {
	_, statError := os.Stat(store.path)
	if statError == nil {
		return true, nil
	}
	if errors.Is(statError, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf(readErrorTemplate, store.path, statError)
}

// Load reads and validates the record. Unknown fields and other schema versions yield ErrSchemaMismatch.
func (store *FileStore) Load() (Record, bool, error) {
	content, readError := os.ReadFile(store.path)
	if readError != nil {
		if errors.Is(readError, os.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf(readErrorTemplate, store.path, readError)
	}

	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.DisallowUnknownFields()
	var record Record
	if decodeError := decoder.Decode(&record); decodeError != nil {
		return Record{}, true, fmt.Errorf(decodeErrorTemplate, ErrSchemaMismatch, store.path, decodeError)
	}
	if decoder.More() {
		return Record{}, true, fmt.Errorf(decodeErrorTemplate, ErrSchemaMismatch, store.path, trailingDataMessage)
	}
	if validationError := record.Validate(); validationError != nil {
		return Record{}, true, validationError
	}
	return record, true, nil
}

// Save writes the record to a temporary file next to the state file and renames it into place.
func (store *FileStore) Save(record Record) error {
	content, encodeError := json.MarshalIndent(record, "", jsonIndentConstant)
	if encodeError != nil {
		return fmt.Errorf(encodeErrorTemplate, encodeError)
	}
	if writeError := atomicWriteFile(store.path, append(content, '\n')); writeError != nil {
		return fmt.Errorf(writeErrorTemplate, store.path, writeError)
	}
	return nil
}

// Delete removes the state file. A missing file is not an error.
func (store *FileStore) Delete() error {
	if removeError := os.Remove(store.path); removeError != nil && !errors.Is(removeError, os.ErrNotExist) {
		return fmt.Errorf(deleteErrorTemplate, store.path, removeError)
	}
	return nil
}

func atomicWriteFile(path string, data []byte) error {
	temporaryFile, createError := os.CreateTemp(filepath.Dir(path), temporaryFilePattern)
	if createError != nil {
		return createError
	}
	temporaryPath := temporaryFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(temporaryPath)
		}
	}()

	if _, writeError := temporaryFile.Write(data); writeError != nil {
		_ = temporaryFile.Close()
		return writeError
	}
	if syncError := temporaryFile.Sync(); syncError != nil {
		_ = temporaryFile.Close()
		return syncError
	}
	if closeError := temporaryFile.Close(); closeError != nil {
		return closeError
	}
	if chmodError := os.Chmod(temporaryPath, stateFilePermissions); chmodError != nil {
		return chmodError
	}
	if renameError := os.Rename(temporaryPath, path); renameError != nil {
		return renameError
	}
	committed = true
	return nil
}

// MemoryStore keeps the record in memory. Dry runs use it so no state file is ever written.
type MemoryStore struct {
	mutex  sync.Mutex
	record *Record
	saves  int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Location describes the store.
func (store *MemoryStore) Location() string {
	return "memory"
}

// Load returns the last saved record.
func (store *MemoryStore) Load() (Record, bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if store.record == nil {
		return Record{}, false, nil
	}
	return *store.record, true, nil
}

// Save keeps a copy of the record.
func (store *MemoryStore) Save(record Record) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	copied := record
	copied.PullRequests = append([]PullRequest(nil), record.PullRequests...)
	store.record = &copied
	store.saves++
	return nil
}

// Delete forgets the record.
func (store *MemoryStore) Delete() error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.record = nil
	return nil
}

// SaveCount returns how many times Save was called.
func (store *MemoryStore) SaveCount() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return store.saves
}
