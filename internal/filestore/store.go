// Package filestore keeps uploaded material files outside the database.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotExist is returned by Open when the key has no stored file.
var ErrNotExist = errors.New("stored file does not exist")

// Object describes a stored file.
type Object struct {
	Key  string
	Size int64
}

// Store is a place to put, stream back and remove files.
type Store interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, key string) error
}

// Options selects and configures a backend.
type Options struct {
	Backend string
	Dir     string

	S3Bucket   string
	S3Region   string
	S3Endpoint string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
}

// New builds the backend named by opts.Backend. An empty backend means local.
func New(opts Options) (Store, error) {
	switch opts.Backend {
	case "", "local":
		return NewLocal(opts.Dir)
	case "s3":
		return NewS3(opts.S3Bucket, opts.S3Region, opts.S3Endpoint)
	case "cloudinary":
		if opts.CloudinaryCloudName == "" || opts.CloudinaryAPIKey == "" || opts.CloudinaryAPISecret == "" {
			return nil, errors.New("filestore: cloudinary credentials missing")
		}
		return NewCloudinary(opts.CloudinaryCloudName, opts.CloudinaryAPIKey, opts.CloudinaryAPISecret, opts.CloudinaryFolder), nil
	default:
		return nil, fmt.Errorf("filestore: unknown backend %q", opts.Backend)
	}
}

// newKey returns a collision-free name keeping the original extension.
func newKey(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) > 16 || strings.ContainsAny(ext, `/\`) {
		ext = ""
	}
	return uuid.NewString() + ext
}
