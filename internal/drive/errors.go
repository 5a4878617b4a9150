// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package drive

import "errors"

// ErrChecksumMismatch is wrapped into a Parse error when the received
// bytes' MD5 does not match an expected checksum.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ErrSizeMismatch is wrapped into a Parse error when the received byte
// count does not match an expected size.
var ErrSizeMismatch = errors.New("size mismatch")
