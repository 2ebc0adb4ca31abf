// Package imagefile discovers and encodes flowchart images on disk.
package imagefile

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MaxSize is the largest image accepted by the inference endpoint.
const MaxSize = 10 * 1024 * 1024

var (
	ErrNotFound    = errors.New("imagefile: file does not exist")
	ErrTooLarge    = errors.New("imagefile: file exceeds 10MB limit")
	ErrUnsupported = errors.New("imagefile: unsupported image format")
)

var mimeByExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".bmp":  "image/bmp",
	".gif":  "image/gif",
}

// Encoded is an image ready to be embedded in a request.
type Encoded struct {
	Path   string
	MIME   string
	Base64 string
	Size   int64
}

// Supported reports whether path has an accepted image extension.
func Supported(path string) bool {
	_, ok := mimeByExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// MIMEType returns the MIME type for path's extension.
func MIMEType(path string) (string, bool) {
	m, ok := mimeByExt[strings.ToLower(filepath.Ext(path))]
	return m, ok
}

// Stem returns the file name without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// List returns the supported images directly under dir, sorted by name.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("imagefile: read dir %q: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !Supported(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Encode validates path and returns its base64 encoding.
func Encode(path string) (Encoded, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Encoded{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Encoded{}, fmt.Errorf("imagefile: stat %q: %w", path, err)
	}
	if info.Size() > MaxSize {
		return Encoded{}, fmt.Errorf("%w: %s is %.2fMB", ErrTooLarge, path, float64(info.Size())/1024/1024)
	}
	mime, ok := MIMEType(path)
	if !ok {
		return Encoded{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Encoded{}, fmt.Errorf("imagefile: read %q: %w", path, err)
	}
	return Encoded{
		Path:   path,
		MIME:   mime,
		Base64: base64.StdEncoding.EncodeToString(data),
		Size:   info.Size(),
	}, nil
}

// Encoder adapts Encode to the usecase.ImageEncoder interface.
type Encoder struct{}

func (Encoder) Encode(path string) (Encoded, error) {
	return Encode(path)
}

// SupportedMIME reports whether mime is one of the accepted image types.
func SupportedMIME(mime string) bool {
	for _, m := range mimeByExt {
		if m == mime {
			return true
		}
	}
	return false
}
