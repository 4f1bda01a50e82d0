// Package storage persists uploaded files under the local uploads root.
// Each upload class (CBC result sheets, blood smear images, profile
// pictures) carries its own subdirectory, extension whitelist, size cap
// and naming scheme, so handlers only pick a Kind and hand over the
// stream. Paths returned to callers are relative to the root and use
// forward slashes regardless of platform.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("file not found")
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	ErrBadExtension = errors.New("file extension is not allowed")
	ErrMissingName  = errors.New("file name is required")
	ErrEmptyFile    = errors.New("file is empty")
	ErrBadPath      = errors.New("path escapes the uploads root")
)

// MaxCSVSize caps CBC result sheets at 5 MB.
const MaxCSVSize = 5 * 1024 * 1024

// Kind describes one class of upload. Extensions is ordered so error
// messages list the whitelist deterministically.
type Kind struct {
	Dir        string
	Extensions []string
	MaxSize    int64 // 0 means no per-kind cap
	NamePrefix string
	UUIDName   bool
}

var (
	// KindCBCResult holds analyzed CBC sheets uploaded as CSV.
	KindCBCResult = Kind{
		Dir:        "tests/cbc",
		Extensions: []string{".csv"},
		MaxSize:    MaxCSVSize,
		NamePrefix: "cbc",
	}

	// KindManualCBC holds sheets the server writes from manual form entry.
	KindManualCBC = Kind{
		Dir:        "tests/cbc",
		Extensions: []string{".csv"},
		MaxSize:    MaxCSVSize,
		NamePrefix: "cbc_manual",
	}

	// KindBloodImage holds blood smear photos awaiting classification.
	KindBloodImage = Kind{
		Dir:        "tests/blood_cell",
		Extensions: []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff"},
	}

	// KindProfileImage holds account avatars.
	KindProfileImage = Kind{
		Dir:        "profiles",
		Extensions: []string{".jpg", ".jpeg", ".png", ".gif"},
		UUIDName:   true,
	}
)

// Allows reports whether the extension (with leading dot, any case) is
// on the whitelist.
func (k Kind) Allows(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range k.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// ExtensionList renders the whitelist for user-facing messages,
// e.g. ".jpg, .jpeg, .png".
func (k Kind) ExtensionList() string {
	return strings.Join(k.Extensions, ", ")
}

// newName builds the stored filename. Avatar kinds use a bare UUID so
// replacing an image never collides with the old one; test artifacts get
// a timestamp plus a short random suffix so directory listings sort by
// upload time.
func (k Kind) newName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if k.UUIDName {
		return uuid.New().String() + ext
	}
	u := uuid.New()
	stamp := time.Now().Format("20060102_150405")
	suffix := fmt.Sprintf("%x", u[:4])
	if k.NamePrefix != "" {
		return k.NamePrefix + "_" + stamp + "_" + suffix + ext
	}
	return stamp + "_" + suffix + ext
}

// StoredFile describes a persisted upload.
type StoredFile struct {
	Path         string // relative to the uploads root
	OriginalName string
	Extension    string
	Size         int64
	SavedAt      time.Time
}

// Store is the contract upload handlers and services depend on.
type Store interface {
	Save(ctx context.Context, kind Kind, originalName string, content io.Reader) (*StoredFile, error)
	Open(ctx context.Context, relPath string) (io.ReadCloser, error)
	Remove(ctx context.Context, relPath string) error
}

// validate runs the checks shared by every backend and returns the bytes
// to persist.
func validate(kind Kind, originalName string, content io.Reader) ([]byte, string, error) {
	if strings.TrimSpace(originalName) == "" {
		return nil, "", ErrMissingName
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	if !kind.Allows(ext) {
		return nil, "", fmt.Errorf("%w: %s", ErrBadExtension, ext)
	}

	limit := kind.MaxSize
	var data []byte
	var err error
	if limit > 0 {
		data, err = io.ReadAll(io.LimitReader(content, limit+1))
	} else {
		data, err = io.ReadAll(content)
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading upload: %w", err)
	}
	if len(data) == 0 {
		return nil, "", ErrEmptyFile
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, "", ErrFileTooLarge
	}
	return data, ext, nil
}

// cleanRelPath normalizes a stored path and rejects anything that would
// resolve outside the root.
func cleanRelPath(relPath string) (string, error) {
	p := path.Clean(strings.ReplaceAll(relPath, "\\", "/"))
	if p == "." || p == "/" || strings.HasPrefix(p, "../") || strings.HasPrefix(p, "/") {
		return "", ErrBadPath
	}
	return p, nil
}

// DiskStore keeps uploads on the local filesystem under root.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) *DiskStore {
	return &DiskStore{root: root}
}

func (s *DiskStore) Save(_ context.Context, kind Kind, originalName string, content io.Reader) (*StoredFile, error) {
	data, ext, err := validate(kind, originalName, content)
	if err != nil {
		return nil, err
	}

	name := kind.newName(originalName)
	rel := path.Join(kind.Dir, name)
	abs := filepath.Join(s.root, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing upload: %w", err)
	}

	return &StoredFile{
		Path:         rel,
		OriginalName: originalName,
		Extension:    ext,
		Size:         int64(len(data)),
		SavedAt:      time.Now().UTC(),
	}, nil
}

func (s *DiskStore) Open(_ context.Context, relPath string) (io.ReadCloser, error) {
	rel, err := cleanRelPath(relPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *DiskStore) Remove(_ context.Context, relPath string) error {
	rel, err := cleanRelPath(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.root, filepath.FromSlash(rel))); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// FormatSize renders a byte count the way the upload widgets do: binary
// units, two decimals with trailing zeros trimmed, and the literal
// "0 Bytes" for empty files. 1536 becomes "1.5 KB".
func FormatSize(size int64) string {
	if size == 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB"}
	v := float64(size)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s + " " + units[i]
}
