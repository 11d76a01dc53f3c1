package attachment

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bil/internal/core"
)

var (
	pdfData  = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
	jpegData = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 32)...)
)

func TestSniff(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    string
		wantErr error
	}{
		{name: "pdf", data: pdfData, want: "pdf"},
		{name: "jpeg", data: jpegData, want: "jpg"},
		{name: "text", data: []byte("hello world"), wantErr: core.ErrUnsupportedMedia},
		{name: "png", data: []byte("\x89PNG\r\n\x1a\n0000"), wantErr: core.ErrUnsupportedMedia},
		{name: "empty", data: nil, wantErr: core.ErrUnsupportedMedia},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sniff(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Sniff() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Sniff() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPutOpenRemove(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, 0)

	name, err := s.Put(1, 1, 1, pdfData)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if name != "1_1.pdf" {
		t.Errorf("Put() = %q, want 1_1.pdf", name)
	}
	if _, err := os.Stat(filepath.Join(root, "projects", "1", "1_1.pdf")); err != nil {
		t.Fatalf("attachment not on disk: %v", err)
	}

	f, err := s.Open(1, name)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, _ := io.ReadAll(f)
	f.Close()
	if !bytes.Equal(got, pdfData) {
		t.Error("Open() returned different bytes")
	}

	// A JPEG for the same payment gets its own name; the PDF stays until
	// the caller removes it.
	jpg, err := s.Put(1, 1, 1, jpegData)
	if err != nil {
		t.Fatalf("Put(jpeg) error = %v", err)
	}
	if jpg != "1_1.jpg" {
		t.Errorf("Put(jpeg) = %q, want 1_1.jpg", jpg)
	}
	if _, err := os.Stat(filepath.Join(root, "projects", "1", "1_1.pdf")); err != nil {
		t.Errorf("previous attachment removed by Put: %v", err)
	}
	if err := s.Remove(1, name); err != nil {
		t.Fatalf("Remove(pdf) error = %v", err)
	}

	if err := s.Remove(1, jpg); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := s.Remove(1, jpg); err != nil {
		t.Errorf("second Remove() error = %v, want nil", err)
	}
	if _, err := s.Open(1, jpg); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Open() after Remove error = %v, want ErrNotFound", err)
	}
}

func TestPutRejects(t *testing.T) {
	s := NewStore(t.TempDir(), 16)

	if _, err := s.Put(1, 1, 1, []byte("plain text")); !errors.Is(err, core.ErrUnsupportedMedia) {
		t.Errorf("Put(text) error = %v, want ErrUnsupportedMedia", err)
	}
	if _, err := s.Put(1, 1, 1, pdfData); !errors.Is(err, core.ErrTooLarge) {
		t.Errorf("Put(oversized) error = %v, want ErrTooLarge", err)
	}
}

func TestReadUpload(t *testing.T) {
	s := NewStore(t.TempDir(), 8)

	if data, err := s.ReadUpload(strings.NewReader("12345678")); err != nil || len(data) != 8 {
		t.Errorf("ReadUpload(8 bytes) = %d bytes, %v", len(data), err)
	}
	if _, err := s.ReadUpload(strings.NewReader("123456789")); !errors.Is(err, core.ErrTooLarge) {
		t.Errorf("ReadUpload(9 bytes) error = %v, want ErrTooLarge", err)
	}
}

func TestOpenRejectsPaths(t *testing.T) {
	s := NewStore(t.TempDir(), 0)
	for _, name := range []string{"", "../projects.json", "a/b.pdf", ".."} {
		if _, err := s.Open(1, name); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("Open(%q) error = %v, want ErrNotFound", name, err)
		}
	}
}

func TestRemoveAll(t *testing.T) {
	s := NewStore(t.TempDir(), 0)
	a, _ := s.Put(2, 3, 1, pdfData)
	b, _ := s.Put(2, 3, 2, jpegData)

	group := core.Paygroup{ID: 3, Payments: []core.Payment{
		{ID: 1, Attachment: a},
		{ID: 2, Attachment: b},
		{ID: 3},
	}}
	if err := s.RemoveAll(2, group); err != nil {
		t.Fatalf("RemoveAll() error = %v", err)
	}
	for _, name := range []string{a, b} {
		if _, err := s.Open(2, name); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("%s still present", name)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := ContentType("1_1.pdf"); got != "application/pdf" {
		t.Errorf("ContentType(pdf) = %q", got)
	}
	if got := ContentType("1_1.jpg"); got != "image/jpeg" {
		t.Errorf("ContentType(jpg) = %q", got)
	}
	if got := ContentType("x"); got != "application/octet-stream" {
		t.Errorf("ContentType(x) = %q", got)
	}
}
