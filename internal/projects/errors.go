// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package projects

import "errors"

// ErrNotFound is returned when an operation references a project id
// that does not exist.
var ErrNotFound = errors.New("project not found")

// ErrEmptyName is returned when a caller supplies a name that trims to
// the empty string.
var ErrEmptyName = errors.New("project name must not be empty")
