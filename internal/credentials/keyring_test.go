package credentials

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestMockKeyring(t *testing.T) {
	kr := NewMockKeyring()

	if _, err := kr.Get("svc", "acct"); !errors.Is(err, ErrKeyringEntryNotFound) {
		t.Errorf("Get on empty keyring = %v", err)
	}
	if err := kr.Set("svc", "acct", "secret"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if v, err := kr.Get("svc", "acct"); err != nil || v != "secret" {
		t.Errorf("Get = %q, %v", v, err)
	}
	if err := kr.Delete("svc", "acct"); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
	if err := kr.Delete("svc", "acct"); !errors.Is(err, ErrKeyringEntryNotFound) {
		t.Errorf("second Delete = %v", err)
	}

	boom := errors.New("locked")
	kr.SetError(boom)
	if err := kr.Set("svc", "acct", "x"); !errors.Is(err, boom) {
		t.Errorf("Set with injected error = %v", err)
	}
}

// TestSystemKeyringWithMockProvider runs the OS keyring adapter against
// go-keyring's in-memory provider.
func TestSystemKeyringWithMockProvider(t *testing.T) {
	keyring.MockInit()
	kr := &systemKeyring{}

	if _, err := kr.Get(ServiceName, AccountKey); !errors.Is(err, ErrKeyringEntryNotFound) {
		t.Errorf("Get before Set = %v", err)
	}
	if err := kr.Set(ServiceName, AccountKey, "k"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if v, err := kr.Get(ServiceName, AccountKey); err != nil || v != "k" {
		t.Errorf("Get = %q, %v", v, err)
	}
	if err := kr.Delete(ServiceName, AccountKey); err != nil {
		t.Errorf("Delete failed: %v", err)
	}

	keyring.MockInitWithError(errors.New("dbus unavailable"))
	if err := kr.Set(ServiceName, AccountKey, "k"); !errors.Is(err, ErrKeyringNotAvailable) {
		t.Errorf("provider failure should map to ErrKeyringNotAvailable, got %v", err)
	}
	keyring.MockInit()
}
