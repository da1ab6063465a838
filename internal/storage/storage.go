// Package storage keeps message attachments.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrTooLarge = errors.New("attachment too large")

// Object is a stored attachment.
type Object struct {
	Key  string
	URL  string
	Name string
	// Kind is "image" for image content types and "file" otherwise.
	Kind string
	Size int64
}

type Store interface {
	Put(ctx context.Context, roomID uuid.UUID, name, contentType string, r io.Reader) (*Object, error)
}

// Local stores attachments under a directory served at publicURL.
type Local struct {
	dir       string
	publicURL string
	maxBytes  int64
}

// NewLocal creates dir if needed. publicURL is the base URL the directory is
// served from, e.g. https://chat.example/files.
func NewLocal(dir, publicURL string, maxBytes int64) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Local{dir: dir, publicURL: strings.TrimRight(publicURL, "/"), maxBytes: maxBytes}, nil
}

func (s *Local) Dir() string { return s.dir }

func (s *Local) Put(ctx context.Context, roomID uuid.UUID, name, contentType string, r io.Reader) (*Object, error) {
	name = cleanName(name)
	key := path.Join(roomID.String(), uuid.NewString()+strings.ToLower(filepath.Ext(name)))
	dst := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, err
	}

	f, err := os.Create(dst)
	if err != nil {
		return nil, err
	}
	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > s.maxBytes {
		err = ErrTooLarge
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		os.Remove(dst)
		return nil, err
	}

	return &Object{
		Key:  key,
		URL:  s.publicURL + "/" + key,
		Name: name,
		Kind: KindOf(contentType),
		Size: n,
	}, nil
}

// KindOf maps a content type to an attachment kind.
func KindOf(contentType string) string {
	if strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return "image"
	}
	return "file"
}

func cleanName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "attachment"
	}
	return name
}
