// Package vault implements the Credential Vault: AES-256-GCM-encrypted,
// file-backed storage for per-source collector credentials, with an
// optional Redis-backed per-source lockout (auth.RateLimiter).
package vault

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jclee94/blacklist/internal/auth"
	"github.com/jclee94/blacklist/pkg/ipstore"
)

const entryFilePerm = 0o600

// Credential is a decrypted, in-memory secret for one source. Secret never
// serialises to JSON so a handler can't accidentally leak it in a response.
type Credential struct {
	Source   ipstore.Source `json:"source"`
	Username string         `json:"username"`
	Secret   string         `json:"-"`
}

// Entry describes a stored credential without exposing its secret, for
// status/listing endpoints.
type Entry struct {
	Source     ipstore.Source `json:"source"`
	Username   string         `json:"username"`
	KeyVersion uint32         `json:"key_version"`
	RotatedAt  time.Time      `json:"rotated_at"`
}

// AuthAttempt is the audit record behind a probe failure, fed to the rate
// limiter so repeated bad credentials lock the source out.
type AuthAttempt struct {
	Source    ipstore.Source
	Succeeded bool
	At        time.Time
}

type entryFile struct {
	Username   string    `json:"username"`
	Secret     string    `json:"secret"`
	KeyVersion uint32    `json:"key_version"`
	RotatedAt  time.Time `json:"rotated_at"`
}

// Vault is the Credential Vault. One Vault instance serves every source; it
// holds a single machine-local seed and per-source entry files.
type Vault struct {
	dir        string
	seed       []byte
	keyVersion uint32
	rl         *auth.RateLimiter

	mu sync.Mutex
}

// New opens or bootstraps a Vault rooted at dir, loading (or creating) the
// machine-local seed at seedPath. keyVersion is the current HKDF info
// counter, persisted by the caller in system_metadata (§3) and passed in so
// Vault stays storage-agnostic about where that counter lives.
func New(dir, seedPath string, keyVersion uint32, rdb *auth.RateLimiter) (*Vault, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating vault directory: %w", err)
	}

	seed, err := loadOrCreateSeed(seedPath)
	if err != nil {
		return nil, err
	}

	return &Vault{
		dir:        dir,
		seed:       seed,
		keyVersion: keyVersion,
		rl:         rdb,
	}, nil
}

func loadOrCreateSeed(path string) ([]byte, error) {
	seed, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(seed) != seedSize {
			return nil, fmt.Errorf("%w: seed file has unexpected length %d", ErrCorrupt, len(seed))
		}
		return seed, nil
	case os.IsNotExist(err):
		return createSeed(path)
	default:
		return nil, fmt.Errorf("reading vault seed: %w", err)
	}
}

func createSeed(path string) ([]byte, error) {
	seed := make([]byte, seedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generating vault seed: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating vault seed directory: %w", err)
	}
	if err := writeFileAtomic(path, seed, entryFilePerm); err != nil {
		return nil, fmt.Errorf("writing vault seed: %w", err)
	}
	return seed, nil
}

func (v *Vault) entryPath(source ipstore.Source) string {
	return filepath.Join(v.dir, string(source)+".cred")
}

// Get decrypts and returns the stored credential for source. Returns
// ErrNotFound if no entry exists, ErrCorrupt if the file fails to decode.
func (v *Vault) Get(source ipstore.Source) (Credential, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	blob, err := os.ReadFile(v.entryPath(source))
	if os.IsNotExist(err) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("reading vault entry: %w", err)
	}

	plaintext, err := open(v.seed, blob)
	if err != nil {
		return Credential{}, err
	}

	var ef entryFile
	if jsonErr := json.Unmarshal(plaintext, &ef); jsonErr != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrCorrupt, jsonErr)
	}

	return Credential{Source: source, Username: ef.Username, Secret: ef.Secret}, nil
}

// Put writes (or overwrites) the credential for source, encrypting it under
// the vault's current key version.
func (v *Vault) Put(source ipstore.Source, username, secret string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.put(source, username, secret, v.keyVersion)
}

func (v *Vault) put(source ipstore.Source, username, secret string, keyVersion uint32) error {
	ef := entryFile{Username: username, Secret: secret, KeyVersion: keyVersion, RotatedAt: time.Now()}
	plaintext, err := json.Marshal(ef)
	if err != nil {
		return fmt.Errorf("encoding vault entry: %w", err)
	}

	blob, err := seal(v.seed, keyVersion, plaintext)
	if err != nil {
		return fmt.Errorf("sealing vault entry: %w", err)
	}

	return writeFileAtomic(v.entryPath(source), blob, entryFilePerm)
}

// Rotate bumps the vault's key version and re-encrypts every existing entry
// under the new key, without discarding the underlying seed.
func (v *Vault) Rotate() (uint32, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	newVersion := v.keyVersion + 1

	entries, err := os.ReadDir(v.dir)
	if err != nil {
		return 0, fmt.Errorf("listing vault directory: %w", err)
	}

	for _, de := range entries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".cred" {
			continue
		}
		source := ipstore.Source(de.Name()[:len(de.Name())-len(".cred")])

		blob, err := os.ReadFile(filepath.Join(v.dir, de.Name()))
		if err != nil {
			return 0, fmt.Errorf("reading vault entry %s: %w", source, err)
		}
		plaintext, err := open(v.seed, blob)
		if err != nil {
			return 0, fmt.Errorf("decrypting vault entry %s during rotation: %w", source, err)
		}
		var ef entryFile
		if err := json.Unmarshal(plaintext, &ef); err != nil {
			return 0, fmt.Errorf("%w: decoding entry %s: %v", ErrCorrupt, source, err)
		}
		if err := v.put(source, ef.Username, ef.Secret, newVersion); err != nil {
			return 0, fmt.Errorf("re-encrypting vault entry %s: %w", source, err)
		}
	}

	v.keyVersion = newVersion
	return newVersion, nil
}

// List returns every stored entry's metadata without decrypting secrets,
// backing the control plane's credential status endpoint.
func (v *Vault) List() ([]Entry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	dirEntries, err := os.ReadDir(v.dir)
	if err != nil {
		return nil, fmt.Errorf("listing vault directory: %w", err)
	}

	var out []Entry
	for _, de := range dirEntries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".cred" {
			continue
		}
		source := ipstore.Source(de.Name()[:len(de.Name())-len(".cred")])

		blob, err := os.ReadFile(filepath.Join(v.dir, de.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading vault entry %s: %w", source, err)
		}
		plaintext, err := open(v.seed, blob)
		if err != nil {
			return nil, fmt.Errorf("decrypting vault entry %s: %w", source, err)
		}
		var ef entryFile
		if err := json.Unmarshal(plaintext, &ef); err != nil {
			return nil, fmt.Errorf("%w: decoding entry %s: %v", ErrCorrupt, source, err)
		}
		out = append(out, Entry{Source: source, Username: ef.Username, KeyVersion: ef.KeyVersion, RotatedAt: ef.RotatedAt})
	}
	return out, nil
}

// Probe checks whether source is currently locked out before a collector
// attempts to authenticate, and records the outcome afterward via Record.
func (v *Vault) Probe(ctx context.Context, source ipstore.Source) error {
	if v.rl == nil {
		return nil
	}
	result, err := v.rl.Check(ctx, string(source))
	if err != nil {
		return fmt.Errorf("checking vault lockout: %w", err)
	}
	if !result.Allowed {
		return ErrLocked
	}
	return nil
}

// Record feeds an authentication outcome into the rate limiter: a failure
// counts against the lockout window, a success clears it.
func (v *Vault) Record(ctx context.Context, attempt AuthAttempt) error {
	if v.rl == nil {
		return nil
	}
	if attempt.Succeeded {
		return v.rl.Reset(ctx, string(attempt.Source))
	}
	return v.rl.Record(ctx, string(attempt.Source))
}

// writeFileAtomic writes data to a tempfile in the same directory as path
// and renames it into place, so a crash mid-write never leaves a partial
// entry visible to a concurrent reader.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming temp file into place: %w", err)
	}
	return nil
}

// KeyVersionStore persists the vault's key-version counter in
// system_metadata, the §3-supplemented table; the cache layer's active-set
// version is not stored there.
type KeyVersionStore struct {
	pool *pgxpool.Pool
}

// NewKeyVersionStore creates a KeyVersionStore backed by the given pool.
func NewKeyVersionStore(pool *pgxpool.Pool) *KeyVersionStore {
	return &KeyVersionStore{pool: pool}
}

// Load returns the persisted key-version counter, defaulting to 0 when no
// row exists yet (a fresh install).
func (s *KeyVersionStore) Load(ctx context.Context) (uint32, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM system_metadata WHERE key = 'vault_key_version'`).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading persisted key version: %w", err)
	}
	var v uint32
	if _, err := fmt.Sscanf(value, "%d", &v); err != nil {
		return 0, fmt.Errorf("parsing persisted key version: %w", err)
	}
	return v, nil
}

// Save persists the current key-version counter.
func (s *KeyVersionStore) Save(ctx context.Context, version uint32) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO system_metadata (key, value, updated_at) VALUES ('vault_key_version', $1, now())
		ON CONFLICT (key) DO UPDATE SET value = $1, updated_at = now()`, fmt.Sprintf("%d", version))
	if err != nil {
		return fmt.Errorf("persisting key version: %w", err)
	}
	return nil
}
