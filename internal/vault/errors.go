// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package vault

import "errors"

// ErrNotFound is returned by a Backend when an account has no stored
// entry. It is not itself surfaced to callers of Vault — ensure()
// treats it as "create a new secret", delete() treats it as a no-op.
var ErrNotFound = errors.New("vault: secret not found")
