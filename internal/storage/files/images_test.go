package files

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethnicwear/storefront/internal/domain/apperr"
	"github.com/ethnicwear/storefront/internal/domain/catalog"
)

func pngBytes(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestImages(t *testing.T, maxSize int64) *Images {
	t.Helper()
	s := NewImages(t.TempDir(), maxSize)
	s.now = func() time.Time { return time.Date(2025, 8, 15, 10, 0, 0, 0, time.UTC) }
	s.newID = func() string { return "0a1b2c3d-0000-0000-0000-000000000001" }
	return s
}

func TestImages_Save(t *testing.T) {
	s := newTestImages(t, 1<<20)
	data := pngBytes(t, 4)

	p, err := s.Save(context.Background(), catalog.Upload{Filename: "photo.jpeg", Body: bytes.NewReader(data)})
	require.NoError(t, err)
	assert.Equal(t, "/uploads/2025/08/0a1b2c3d-0000-0000-0000-000000000001.png", p)

	got, err := os.ReadFile(filepath.Join(s.Dir(), "2025", "08", "0a1b2c3d-0000-0000-0000-000000000001.png"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestImages_SaveRejects(t *testing.T) {
	tests := []struct {
		name    string
		maxSize int64
		body    func(t *testing.T) []byte
		wantErr error
	}{
		{
			name:    "text",
			maxSize: 1 << 20,
			body:    func(*testing.T) []byte { return []byte("just some text, not an image") },
			wantErr: ErrUnsupportedType,
		},
		{
			name:    "empty",
			maxSize: 1 << 20,
			body:    func(*testing.T) []byte { return nil },
			wantErr: ErrUnsupportedType,
		},
		{
			name:    "too large",
			maxSize: 64,
			body:    func(t *testing.T) []byte { return pngBytes(t, 32) },
			wantErr: ErrTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestImages(t, tt.maxSize)
			_, err := s.Save(context.Background(), catalog.Upload{Filename: "x.png", Body: bytes.NewReader(tt.body(t))})
			require.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, apperr.ErrValidation)

			// Nothing is left behind.
			entries, err := os.ReadDir(filepath.Join(s.Dir(), "2025", "08"))
			if err == nil {
				assert.Empty(t, entries)
			}
		})
	}
}

func TestImages_SaveNilBody(t *testing.T) {
	s := newTestImages(t, 0)
	_, err := s.Save(context.Background(), catalog.Upload{Filename: "x.png"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestImages_Delete(t *testing.T) {
	s := newTestImages(t, 0)
	p, err := s.Save(context.Background(), catalog.Upload{Body: bytes.NewReader(pngBytes(t, 2))})
	require.NoError(t, err)

	require.NoError(t, s.Delete(context.Background(), p))
	_, err = os.Stat(filepath.Join(s.Dir(), strings.TrimPrefix(p, URLPrefix)))
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Deleting twice is fine.
	assert.NoError(t, s.Delete(context.Background(), p))

	assert.Error(t, s.Delete(context.Background(), "/etc/passwd"))
}

func TestImages_DeleteStaysInsideDir(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(root, "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))

	s := NewImages(filepath.Join(root, "uploads"), 0)
	require.NoError(t, s.Delete(context.Background(), "/uploads/../secret.txt"))

	_, err := os.Stat(outside)
	assert.NoError(t, err)
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{base: "", path: "/uploads/a.png", want: "/uploads/a.png"},
		{base: "https://cdn.example.com", path: "/uploads/a.png", want: "https://cdn.example.com/uploads/a.png"},
		{base: "https://cdn.example.com/", path: "/uploads/a.png", want: "https://cdn.example.com/uploads/a.png"},
		{base: "https://cdn.example.com", path: "", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PublicURL(tt.base, tt.path))
	}
}
