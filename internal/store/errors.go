package store

import "errors"

// ErrConflict is returned by compare-and-swap transitions when another writer
// already moved the record. Callers treat it as "someone else owns this unit"
// and move on.
var ErrConflict = errors.New("phase transition conflict")
