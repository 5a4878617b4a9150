// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

// Package drive implements the File Fetcher: a thin wrapper over the
// Drive v3 API that downloads a file's bytes into memory with
// byte-progress reporting, and fetches the metadata fields a List
// record persists alongside its raw content.
package drive

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/weixin07/listcompare/internal/apperr"
)

const chunkSize = 256 * 1024

// Metadata is the subset of Drive file metadata a List record persists.
type Metadata struct {
	FileID       string
	Name         string
	MimeType     string
	Size         int64
	ModifiedTime time.Time
	MD5Checksum  string
}

// DownloadResult is the outcome of a successful Download.
type DownloadResult struct {
	Bytes         []byte
	ReceivedBytes int64
	ChecksumMD5   string
	ExpectedBytes *int64
}

// ProgressFunc is invoked after each chunk is read, with the number of
// bytes received so far and the total if known.
type ProgressFunc func(received, total int64)

// Client wraps a Drive v3 service scoped to the current access token.
// A fresh Client is constructed per operation since the underlying
// token can be refreshed between calls by the Token Provider.
type Client struct {
	service *drive.Service
}

// NewClient constructs a Client authorized with accessToken.
func NewClient(ctx context.Context, accessToken string) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	service, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, apperr.HTTP(apperr.HTTPClassOther, 0, "www.googleapis.com", err)
	}
	return &Client{service: service}, nil
}

// GetMetadata fetches the fields a List record needs to display and
// re-verify a previously selected Drive file.
func (c *Client) GetMetadata(ctx context.Context, fileID string) (*Metadata, error) {
	file, err := c.service.Files.Get(fileID).
		Fields("id, name, mimeType, size, modifiedTime, md5Checksum").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyAPIError(err, fileID)
	}

	modified, err := time.Parse(time.RFC3339, file.ModifiedTime)
	if err != nil {
		modified = time.Time{}
	}
	return &Metadata{
		FileID:       file.Id,
		Name:         file.Name,
		MimeType:     file.MimeType,
		Size:         file.Size,
		ModifiedTime: modified,
		MD5Checksum:  file.Md5Checksum,
	}, nil
}

// Download streams fileID's content into memory, reporting progress via
// progressCB after every chunk. expectedMime, expectedSize, and
// expectedChecksum are optional verifications: a mime mismatch is not
// logged; it is reported through the returned bool (the caller decides
// what to do with it) while a size or checksum mismatch fails the
// download.
func (c *Client) Download(ctx context.Context, fileID string, expectedMime string, expectedSize *int64, expectedChecksum string, progressCB ProgressFunc) (*DownloadResult, bool, error) {
	resp, err := c.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, false, classifyAPIError(err, fileID)
	}
	defer resp.Body.Close()

	mimeWarning := expectedMime != "" && resp.Header.Get("Content-Type") != "" &&
		!mimeMatches(resp.Header.Get("Content-Type"), expectedMime)

	hasher := md5.New()
	buf := make([]byte, chunkSize)
	var received int64
	var total int64 = -1
	if resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	body := make([]byte, 0, max64(resp.ContentLength, 0))
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
			hasher.Write(buf[:n])
			received += int64(n)
			if progressCB != nil {
				progressCB(received, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, mimeWarning, apperr.IO(readErr)
		}
	}

	checksum := hex.EncodeToString(hasher.Sum(nil))
	result := &DownloadResult{
		Bytes:         body,
		ReceivedBytes: received,
		ChecksumMD5:   checksum,
		ExpectedBytes: expectedSize,
	}
	if err := VerifyIntegrity(result, expectedSize, expectedChecksum); err != nil {
		return nil, mimeWarning, err
	}
	return result, mimeWarning, nil
}

// VerifyIntegrity checks a downloaded result against the caller's
// expectations. Factored out of Download so it can be exercised without
// a live Drive service.
func VerifyIntegrity(result *DownloadResult, expectedSize *int64, expectedChecksum string) error {
	if expectedChecksum != "" && result.ChecksumMD5 != expectedChecksum {
		return apperr.Parse(fmt.Sprintf("%v: expected %s, got %s", ErrChecksumMismatch, expectedChecksum, result.ChecksumMD5), ErrChecksumMismatch)
	}
	if expectedSize != nil && result.ReceivedBytes != *expectedSize {
		return apperr.Parse(fmt.Sprintf("%v: expected %d bytes, got %d", ErrSizeMismatch, *expectedSize, result.ReceivedBytes), ErrSizeMismatch)
	}
	return nil
}

func mimeMatches(actual, expected string) bool {
	return actual == expected
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func classifyAPIError(err error, fileID string) error {
	class := apperr.HTTPClassOther
	status := 0
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		status = apiErr.Code
		if status == 429 || status == 503 {
			class = apperr.HTTPClassRateLimited
		}
	}
	host := apperr.RedactIDs("www.googleapis.com/drive/v3/files/" + fileID)
	return apperr.HTTP(class, status, host, err)
}
