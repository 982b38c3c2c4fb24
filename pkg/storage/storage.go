package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// ErrInvalidURI is returned when an object URI cannot be parsed
var ErrInvalidURI = errors.New("invalid object uri")

// UploadResult contains the result of an upload operation
type UploadResult struct {
	Key        string    `json:"key"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mime_type"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Storage is the object store used for vouch exports and run reports
type Storage interface {
	// Upload uploads an object
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (*UploadResult, error)

	// Download opens an object for reading
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete deletes an object
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns the URL for an object
	GetURL(key string) string
}

// ReportKey returns the key of a run artifact: {prefix}/{date}/{run_id}/{name}
func ReportKey(prefix, runID string, at time.Time, name string) string {
	return path.Join(
		strings.Trim(prefix, "/"),
		at.UTC().Format("2006-01-02"),
		runID,
		name,
	)
}

// ParseURI splits s3://bucket/key into its bucket and key
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q has no s3:// scheme", ErrInvalidURI, uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q needs a bucket and a key", ErrInvalidURI, uri)
	}
	return bucket, key, nil
}

// IsURI reports whether s names an object rather than a local path
func IsURI(s string) bool {
	return strings.HasPrefix(s, "s3://")
}

// GetMimeTypeFromExtension returns the MIME type for report file extensions
func GetMimeTypeFromExtension(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	mimeTypes := map[string]string{
		".json": "application/json",
		".csv":  "text/csv",
		".txt":  "text/plain",
		".gz":   "application/gzip",
	}

	if mime, ok := mimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}
