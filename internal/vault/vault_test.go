package vault

import (
	"path/filepath"
	"testing"

	"github.com/jclee94/blacklist/pkg/ipstore"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	dir := t.TempDir()
	v, err := New(filepath.Join(dir, "entries"), filepath.Join(dir, ".seed"), 0, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return v
}

func TestVaultPutGetRoundTrip(t *testing.T) {
	v := newTestVault(t)

	if err := v.Put(ipstore.SourceRegtech, "operator", "s3cr3t"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	cred, err := v.Get(ipstore.SourceRegtech)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if cred.Username != "operator" || cred.Secret != "s3cr3t" {
		t.Errorf("Get() = %+v, want username=operator secret=s3cr3t", cred)
	}
}

func TestVaultGetMissingReturnsNotFound(t *testing.T) {
	v := newTestVault(t)

	if _, err := v.Get(ipstore.SourceSecudium); err != ErrNotFound {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestVaultGetCorruptFile(t *testing.T) {
	v := newTestVault(t)
	if err := v.Put(ipstore.SourceRegtech, "operator", "s3cr3t"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	path := v.entryPath(ipstore.SourceRegtech)
	if err := writeFileAtomic(path, []byte("not a real vault blob"), entryFilePerm); err != nil {
		t.Fatalf("corrupting entry file: %v", err)
	}

	if _, err := v.Get(ipstore.SourceRegtech); err != ErrCorrupt {
		t.Errorf("Get() error = %v, want ErrCorrupt", err)
	}
}

func TestVaultRotateReencryptsUnderNewKey(t *testing.T) {
	v := newTestVault(t)
	if err := v.Put(ipstore.SourceRegtech, "operator", "s3cr3t"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	newVersion, err := v.Rotate()
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if newVersion != 1 {
		t.Errorf("Rotate() version = %d, want 1", newVersion)
	}

	cred, err := v.Get(ipstore.SourceRegtech)
	if err != nil {
		t.Fatalf("Get() after rotate error = %v", err)
	}
	if cred.Secret != "s3cr3t" {
		t.Errorf("Get() after rotate = %+v, want secret preserved", cred)
	}

	entries, err := v.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 || entries[0].KeyVersion != 1 {
		t.Errorf("List() = %+v, want one entry at key version 1", entries)
	}
}

func TestVaultListOmitsSecrets(t *testing.T) {
	v := newTestVault(t)
	if err := v.Put(ipstore.SourceRegtech, "operator", "s3cr3t"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	entries, err := v.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("List() = %d entries, want 1", len(entries))
	}
	if entries[0].Source != ipstore.SourceRegtech || entries[0].Username != "operator" {
		t.Errorf("List()[0] = %+v, want source=REGTECH username=operator", entries[0])
	}
}
