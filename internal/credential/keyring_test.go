package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

func TestSaveLoadClear(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring(nil))

	if _, _, err := s.Load(); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}

	if err := s.Save("tok", "Profesor"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	token, role, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if token != "tok" || role != "Profesor" {
		t.Fatalf("Load = %q, %q", token, role)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, _, err := s.Load(); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials after Clear, got %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestLoadWithoutRole(t *testing.T) {
	s := NewStore(keyring.NewArrayKeyring([]keyring.Item{{Key: KeyToken, Data: []byte("tok")}}))
	token, role, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if token != "tok" || role != "" {
		t.Fatalf("Load = %q, %q", token, role)
	}
}
