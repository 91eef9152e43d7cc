package store

import "fmt"

// StorageInitError reports a failure to prepare the database: the directory,
// the file, or a schema migration. A store is never returned alongside it.
type StorageInitError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageInitError) Error() string {
	return fmt.Sprintf("storage init: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageInitError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a statement the engine rejected, a transaction
// boundary that failed, or a write that affected an unexpected row count.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
