// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

package main

import (
	"context"

	"github.com/weixin07/listcompare/internal/drive"
)

func newDriveClient(ctx context.Context, accessToken string) (*drive.Client, error) {
	return drive.NewClient(ctx, accessToken)
}
