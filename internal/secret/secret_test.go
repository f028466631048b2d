package secret

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := LoadOrCreateKey(filepath.Join(t.TempDir(), "quill.key"))
	if err != nil {
		t.Fatalf("key: %v", err)
	}

	sealed, err := key.Seal("api-key-123")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed == "api-key-123" {
		t.Fatal("sealed value equals plaintext")
	}

	got, err := key.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got != "api-key-123" {
		t.Errorf("open = %q", got)
	}
}

func TestKeyFileIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.key")
	first, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first != second {
		t.Error("key changed between loads")
	}
}

func TestOpenWithWrongKey(t *testing.T) {
	dir := t.TempDir()
	keyA, _ := LoadOrCreateKey(filepath.Join(dir, "a.key"))
	keyB, _ := LoadOrCreateKey(filepath.Join(dir, "b.key"))

	sealed, err := keyA.Seal("secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := keyB.Open(sealed); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("err = %v, want ErrDecrypt", err)
	}
}

func TestOpenGarbage(t *testing.T) {
	key, _ := LoadOrCreateKey(filepath.Join(t.TempDir(), "quill.key"))
	for _, sealed := range []string{"", "!!!!", "c2hvcnQ="} {
		if _, err := key.Open(sealed); !errors.Is(err, ErrDecrypt) {
			t.Errorf("Open(%q) err = %v, want ErrDecrypt", sealed, err)
		}
	}
}

func TestTruncatedKeyFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.key")
	if err := os.WriteFile(path, []byte("short"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreateKey(path); err == nil {
		t.Fatal("expected error for truncated key file")
	}
}
