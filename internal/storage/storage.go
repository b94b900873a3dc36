package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrBlobNotFound is returned by Open when no bytes are stored under a key.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore holds document bytes addressed by opaque keys.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. Removing a key that does not exist is not an error.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]string, error)
}

const maxNameLen = 100

// GenerateKey returns a key of the form <unix-millis>-<8 hex>-<name> where
// name is the base of original reduced to a safe character set.
func GenerateKey(now time.Time, original string) string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + hex.EncodeToString(b[:]) + "-" + SanitizeName(original)
}

// SanitizeName strips directories and replaces anything outside
// [A-Za-z0-9._-] with an underscore.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	out := strings.Trim(sb.String(), ".")
	if out == "" {
		out = "file"
	}
	if len(out) > maxNameLen {
		out = out[len(out)-maxNameLen:]
	}
	return out
}
