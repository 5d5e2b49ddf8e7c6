package device

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStore_LoadMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), ".device"))

	if s.Exists() {
		t.Fatal("Exists() = true for missing record")
	}
	_, err := s.Load()
	if !errors.Is(err, ErrNoRecord) {
		t.Fatalf("Load() error = %v, want ErrNoRecord", err)
	}
}

func TestStore_SaveOmitsTamperExitToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".device")
	s := NewStore(path)

	id := Identity{
		RefreshToken:    "refresh-1",
		UUID:            "uuid-1",
		Name:            "laptop",
		TamperExitToken: "exit-123",
	}

	if err := s.Save(id, false); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if id.TamperExitToken != "exit-123" {
		t.Error("Save() must not modify the caller's identity")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var onDisk map[string]string
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if onDisk["tamper_exit_token"] != "" {
		t.Errorf("tamper_exit_token on disk = %q, want empty", onDisk["tamper_exit_token"])
	}
	if onDisk["refresh_token"] != "refresh-1" || onDisk["device_uuid"] != "uuid-1" {
		t.Errorf("unexpected record contents: %v", onDisk)
	}
}

func TestStore_SaveWithTamperExitToken(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nested", ".device"))

	id := Identity{RefreshToken: "r", UUID: "u", TamperExitToken: "exit-123"}
	if err := s.Save(id, true); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != id {
		t.Errorf("Load() = %+v, want %+v", got, id)
	}

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("record permissions = %o, want 600", perm)
	}
}

func TestStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".device")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := NewStore(path).Load()
	if err == nil || errors.Is(err, ErrNoRecord) {
		t.Fatalf("Load() error = %v, want parse error", err)
	}
}

func TestStore_Remove(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), ".device"))
	if err := s.Save(Identity{RefreshToken: "r"}, false); err != nil {
		t.Fatal(err)
	}

	if err := s.Remove(); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if s.Exists() {
		t.Error("record still exists after Remove()")
	}
	if err := s.Remove(); err != nil {
		t.Errorf("second Remove() error = %v, want nil", err)
	}
}

func TestIdentity_Redacted(t *testing.T) {
	id := Identity{RefreshToken: "secret", UUID: "u", Name: "n"}
	r := id.Redacted()

	if r.RefreshToken != "[REDACTED]" {
		t.Errorf("RefreshToken = %q", r.RefreshToken)
	}
	if r.AccessToken != "" || r.TamperExitToken != "" {
		t.Error("unset secrets should stay empty")
	}
	if r.UUID != "u" || r.Name != "n" {
		t.Error("non-secret fields must be kept")
	}
}
