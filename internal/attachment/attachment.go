// Package attachment keeps one file per payment inside the project directory,
// named {group}_{payment}.{ext}.
package attachment

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"bil/internal/core"
	"bil/internal/storage"
)

// DefaultMaxBytes bounds an upload when no limit is configured.
const DefaultMaxBytes = 10 << 20

// sniffLen is how much of the upload http.DetectContentType looks at.
const sniffLen = 512

var extensions = map[string]string{
	"application/pdf": "pdf",
	"image/jpeg":      "jpg",
}

var contentTypes = map[string]string{
	"pdf": "application/pdf",
	"jpg": "image/jpeg",
}

type Store struct {
	root     string
	maxBytes int64
}

func NewStore(root string, maxBytes int64) *Store {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Store{root: root, maxBytes: maxBytes}
}

// MaxBytes is the largest accepted upload.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Sniff reports the file extension for data, or ErrUnsupportedMedia.
func Sniff(data []byte) (string, error) {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	ext, ok := extensions[http.DetectContentType(head)]
	if !ok {
		return "", core.ErrUnsupportedMedia
	}
	return ext, nil
}

// ContentType returns the MIME type for a stored attachment name.
func ContentType(filename string) string {
	ext := filepath.Ext(filename)
	if ext != "" {
		ext = ext[1:]
	}
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ReadUpload reads r fully, failing with ErrTooLarge past the size limit.
func (s *Store) ReadUpload(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, core.ErrTooLarge
	}
	return data, nil
}

// Put validates data and writes it for the payment, returning the stored
// file name. A previous attachment with another extension is left in place;
// the caller removes it once the new name is recorded.
func (s *Store) Put(projectID, groupID, paymentID int, data []byte) (string, error) {
	if int64(len(data)) > s.maxBytes {
		return "", core.ErrTooLarge
	}
	ext, err := Sniff(data)
	if err != nil {
		return "", err
	}

	name := storage.AttachmentName(groupID, paymentID, ext)
	dir := storage.ProjectDir(s.root, projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create project directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return name, nil
}

// Open returns the stored attachment. A missing file is ErrNotFound.
func (s *Store) Open(projectID int, filename string) (*os.File, error) {
	if !validName(filename) {
		return nil, fmt.Errorf("attachment %q: %w", filename, core.ErrNotFound)
	}
	f, err := os.Open(filepath.Join(storage.ProjectDir(s.root, projectID), filename))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("attachment %q: %w", filename, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open attachment: %w", err)
	}
	return f, nil
}

// Remove deletes a stored attachment; a file that is already gone is not an error.
func (s *Store) Remove(projectID int, filename string) error {
	if filename == "" {
		return nil
	}
	if !validName(filename) {
		return fmt.Errorf("attachment %q: %w", filename, core.ErrInvalidInput)
	}
	err := os.Remove(filepath.Join(storage.ProjectDir(s.root, projectID), filename))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove attachment: %w", err)
	}
	return nil
}

// RemoveAll deletes the attachments of every payment in the group.
func (s *Store) RemoveAll(projectID int, group core.Paygroup) error {
	var errs []error
	for _, p := range group.Payments {
		if err := s.Remove(projectID, p.Attachment); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validName(name string) bool {
	return name != "" && name == filepath.Base(name) && name != "." && name != ".."
}
