package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestLocalPut(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocal(dir, "https://chat.test/files/", 1024)
	if err != nil {
		t.Fatal(err)
	}
	room := uuid.New()

	obj, err := s.Put(context.Background(), room, "../../etc/Diagram.PNG", "image/png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if obj.Kind != "image" || obj.Name != "Diagram.PNG" || obj.Size != 9 {
		t.Fatalf("unexpected object %+v", obj)
	}
	if !strings.HasPrefix(obj.URL, "https://chat.test/files/"+room.String()+"/") || !strings.HasSuffix(obj.URL, ".png") {
		t.Fatalf("unexpected url %s", obj.URL)
	}
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(obj.Key)))
	if err != nil || string(data) != "png-bytes" {
		t.Fatalf("stored %q, %v", data, err)
	}
}

func TestLocalPutRejectsOversize(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewLocal(dir, "http://x", 4)
	_, err := s.Put(context.Background(), uuid.New(), "notes.txt", "text/plain", strings.NewReader("too long"))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("got %v", err)
	}
	var files int
	filepath.Walk(dir, func(_ string, info os.FileInfo, _ error) error {
		if info != nil && !info.IsDir() {
			files++
		}
		return nil
	})
	if files != 0 {
		t.Fatalf("partial upload left %d files", files)
	}
}

func TestKindOf(t *testing.T) {
	tests := map[string]string{
		"image/jpeg":      "image",
		"IMAGE/PNG":       "image",
		"application/pdf": "file",
		"":                "file",
	}
	for in, want := range tests {
		if got := KindOf(in); got != want {
			t.Errorf("KindOf(%q) = %q, want %q", in, got, want)
		}
	}
}
