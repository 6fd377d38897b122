package googleauth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPrefersInline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key.json")
	if err := os.WriteFile(path, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	b, err := Credentials{JSON: ` {"from":"inline"} `, File: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(b) != `{"from":"inline"}` {
		t.Fatalf("got %s", b)
	}

	b, err = Credentials{File: path}.Load(context.Background())
	if err != nil {
		t.Fatalf("Load file: %v", err)
	}
	if string(b) != `{"from":"file"}` {
		t.Fatalf("got %s", b)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Credentials{}.Load(context.Background())
	if !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("err = %v, want ErrNoCredentials", err)
	}
	_, err = Credentials{File: filepath.Join(t.TempDir(), "nope.json")}.Load(context.Background())
	if err == nil {
		t.Fatal("expected read error")
	}
}

func TestOptions(t *testing.T) {
	opts, err := Credentials{JSON: `{}`}.Options(context.Background(), "scope-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(opts) != 2 {
		t.Fatalf("len(opts) = %d", len(opts))
	}
}
