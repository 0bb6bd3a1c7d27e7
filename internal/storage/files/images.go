// Package files stores uploaded product images on the local filesystem.
package files

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/ethnicwear/storefront/internal/domain/apperr"
	"github.com/ethnicwear/storefront/internal/domain/catalog"
)

// URLPrefix is the public path under which stored images are served.
const URLPrefix = "/uploads/"

// sniffLen is how much of an upload is inspected to detect its type.
const sniffLen = 3072

// Errors returned for rejected uploads.
var (
	ErrUnsupportedType = apperr.Validation("image must be jpeg, png, webp or gif")
	ErrTooLarge        = apperr.Validation("image exceeds the upload size limit")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

var _ catalog.ImageStore = (*Images)(nil)

// Images writes uploads to <dir>/<yyyy>/<mm>/<uuid><ext>.
type Images struct {
	dir     string
	maxSize int64
	now     func() time.Time
	newID   func() string
}

// NewImages returns an image store rooted at dir. Uploads larger than
// maxSize bytes are rejected; zero means no limit.
func NewImages(dir string, maxSize int64) *Images {
	return &Images{
		dir:     dir,
		maxSize: maxSize,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Dir returns the root directory images are written to.
func (s *Images) Dir() string { return s.dir }

// Save stores u and returns its public path, e.g. /uploads/2025/08/<id>.jpg.
// The file type is detected from content, not from the file name.
func (s *Images) Save(ctx context.Context, u catalog.Upload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if u.Body == nil {
		return "", apperr.Required("image")
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(u.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", errors.Wrap(err, "read upload")
	}
	head = head[:n]

	ext, ok := extensions[mimetype.Detect(head).String()]
	if !ok {
		return "", ErrUnsupportedType
	}

	now := s.now().UTC()
	rel := path.Join(fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", int(now.Month())), s.newID()+ext)
	full := filepath.Join(s.dir, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", errors.Wrap(err, "create upload dir")
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "create image file")
	}

	var body io.Reader = io.MultiReader(bytes.NewReader(head), u.Body)
	if s.maxSize > 0 {
		body = io.LimitReader(body, s.maxSize+1)
	}
	written, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxSize > 0 && written > s.maxSize {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(full)
		if errors.Is(err, ErrTooLarge) {
			return "", err
		}
		return "", errors.Wrap(err, "write image file")
	}

	return URLPrefix + rel, nil
}

// Delete removes a previously saved image. Missing files are not an error.
func (s *Images) Delete(_ context.Context, p string) error {
	full, ok := s.resolve(p)
	if !ok {
		return errors.Errorf("image path %q is outside the upload dir", p)
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "remove image")
	}
	return nil
}

func (s *Images) resolve(p string) (string, bool) {
	rel, ok := strings.CutPrefix(p, URLPrefix)
	if !ok {
		return "", false
	}
	rel = path.Clean("/" + rel)[1:]
	if rel == "" {
		return "", false
	}
	return filepath.Join(s.dir, filepath.FromSlash(rel)), true
}

// PublicURL joins base and p. An empty base leaves p relative.
func PublicURL(base, p string) string {
	if base == "" || p == "" {
		return p
	}
	return strings.TrimSuffix(base, "/") + p
}
