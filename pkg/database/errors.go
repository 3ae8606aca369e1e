package database

import "errors"

// ErrNotFound is returned when a query matches no documents.
var ErrNotFound = errors.New("document not found")
