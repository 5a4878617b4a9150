// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package kml

import "errors"

// ErrNoCoordinates is recorded against a rejected placemark that has no
// parsable <coordinates> text.
var ErrNoCoordinates = errors.New("no parsable coordinates")
