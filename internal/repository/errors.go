package repository

import "errors"

// ErrNotFound is returned when a token or record does not exist. Driver
// specific sentinels (pgx.ErrNoRows) are mapped to it at the repository
// boundary so callers never import a driver to branch on misses.
var ErrNotFound = errors.New("record not found")
