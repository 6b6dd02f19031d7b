package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestLocalStorePutOpenDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), "/uploads/", 1024)
	if err != nil {
		t.Fatal(err)
	}

	obj, err := store.Put(ctx, "attachment-1-2.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if obj.Path != "/uploads/attachment-1-2.txt" || obj.Size != 5 {
		t.Fatalf("unexpected object %+v", obj)
	}
	if len(obj.Checksum) != 64 {
		t.Fatalf("checksum %q is not a hex BLAKE3 digest", obj.Checksum)
	}

	again, _ := store.Put(ctx, "attachment-1-3.txt", strings.NewReader("hello"))
	if again.Checksum != obj.Checksum {
		t.Fatal("checksum is not content addressed")
	}

	rc, err := store.Open(ctx, obj.Name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Fatalf("read %q", data)
	}

	if err := store.Delete(ctx, obj.Name); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, obj.Name); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
}

func TestLocalStoreRejectsOversize(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewLocalStore(dir, "/uploads", 4)
	_, err := store.Put(context.Background(), "big.bin", bytes.NewReader(make([]byte, 5)))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("oversize upload left files behind: %v", entries)
	}
	if _, err := store.Put(context.Background(), "exact.bin", bytes.NewReader(make([]byte, 4))); err != nil {
		t.Fatalf("upload at the limit: %v", err)
	}
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir(), "/uploads", 0)
	for _, name := range []string{"", "../x", filepath.Join("a", "b"), ".hidden"} {
		if _, err := store.Put(context.Background(), name, strings.NewReader("x")); !errors.Is(err, ErrInvalidName) {
			t.Errorf("%q: expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestAttachmentName(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	pattern := regexp.MustCompile(`^attachment-1700000000123-\d+(\.[a-z0-9]+)?$`)
	cases := map[string]string{
		"report.PDF":       ".pdf",
		"archive.tar.gz":   ".gz",
		"noext":            "",
		`C:\docs\shot.png`: ".png",
		"weird.p$p":        "",
	}
	for original, ext := range cases {
		name := AttachmentName(original, now)
		if !pattern.MatchString(name) || !strings.HasSuffix(name, ext) {
			t.Errorf("AttachmentName(%q) = %q", original, name)
		}
		if ext == "" && strings.Contains(strings.TrimPrefix(name, "attachment-"), ".") {
			t.Errorf("AttachmentName(%q) = %q kept an unsafe extension", original, name)
		}
	}
}
