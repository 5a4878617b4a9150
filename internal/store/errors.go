// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package store

import "errors"

// ErrRecoveryFailed is returned when bootstrap's single recovery attempt
// also fails; this is always treated as fatal.
var ErrRecoveryFailed = errors.New("store: recovery attempt failed")

// ErrPlaintextHeader is returned when the opened file's header equals the
// plaintext SQLite magic, meaning encryption is not actually in force.
var ErrPlaintextHeader = errors.New("store: database header is plaintext, encryption is not in force")
