package api

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCredentialsCache_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	want := Credentials{AccessToken: "a1", RefreshToken: "r1", UserID: "u1", Username: "alice"}

	if err := SaveCredentials(path, want); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm=%o, want 600", perm)
	}

	got, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if got != want {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestLoadCredentials_MissingFile(t *testing.T) {
	t.Parallel()

	creds, err := LoadCredentials(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.LoggedIn() {
		t.Fatalf("creds=%#v, want empty", creds)
	}
}

func TestLoadCredentials_Corrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := LoadCredentials(path); err == nil {
		t.Fatal("expected error for corrupt cache")
	}
}

func TestClearCredentials(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := SaveCredentials(path, Credentials{AccessToken: "a1"}); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	if err := ClearCredentials(path); err != nil {
		t.Fatalf("ClearCredentials: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file still there: %v", err)
	}

	// Clearing twice is fine.
	if err := ClearCredentials(path); err != nil {
		t.Fatalf("second ClearCredentials: %v", err)
	}
}
