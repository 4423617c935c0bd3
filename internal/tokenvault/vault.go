package tokenvault

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/corebridge/platform-core/internal/apperr"
)

// record is the plaintext state a vault entry tracks before encryption.
type record struct {
	Token     string
	ExpiresAt time.Time // zero means no expiry
}

// storedRecord is what actually lives in the map: the AEAD blob plus a
// keyed-hash checksum computed over the plaintext before encryption, so a
// corrupted checksum and a corrupted ciphertext are both caught on
// Retrieve.
type storedRecord struct {
	blob       []byte
	checksum   []byte
	rotatedAt  time.Time
	auditEntry string // MaskToken(plaintext), retained so later events (retrieve, remove, tamper) can still log a masked token after the plaintext itself is gone
}

// AuditEntry is one masked record of vault activity. Per spec.md §4.4 the
// raw token never reaches the log — only MaskedToken, the output of
// MaskToken.
type AuditEntry struct {
	Time        time.Time
	Kind        string
	Action      string // "store", "retrieve", "remove", "rotate", "tamper"
	MaskedToken string
}

// OAuthConfig is the per-kind oauth2 configuration used by Rotate.
type OAuthConfig struct {
	Config oauth2.Config
}

// Vault is the AEAD-protected credential store of spec.md §4.4.
type Vault struct {
	key []byte

	mu       sync.RWMutex
	records  map[string]storedRecord
	oauthCfg map[string]OAuthConfig

	auditMu sync.Mutex
	audit   []AuditEntry
	maxLog  int
}

// New builds a Vault. key must be exactly 32 bytes (AES-256).
func New(key []byte) (*Vault, error) {
	if len(key) != keySize {
		return nil, apperr.Misconfigured("vault key must be 32 bytes")
	}
	return &Vault{
		key:      append([]byte(nil), key...),
		records:  make(map[string]storedRecord),
		oauthCfg: make(map[string]OAuthConfig),
		maxLog:   500,
	}, nil
}

// SetAuditLogSize bounds how many AuditEntry records Status retains. n <= 0
// leaves the default (500) in place.
func (v *Vault) SetAuditLogSize(n int) {
	if n <= 0 {
		return
	}
	v.auditMu.Lock()
	defer v.auditMu.Unlock()
	v.maxLog = n
	if len(v.audit) > n {
		v.audit = v.audit[len(v.audit)-n:]
	}
}

// RegisterOAuth associates an oauth2.Config with a token kind so Rotate can
// later exchange a refresh token for that kind.
func (v *Vault) RegisterOAuth(kind string, cfg OAuthConfig) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.oauthCfg[kind] = cfg
}

// Store encrypts and saves token under kind. A zero expiresAt means the
// token never expires.
func (v *Vault) Store(kind, token string, expiresAt time.Time) error {
	plaintext := []byte(token)
	blob, err := seal(v.key, plaintext)
	if err != nil {
		return err
	}
	sum := checksum(v.key, plaintext)
	masked := MaskToken(token)

	v.mu.Lock()
	v.records[kind] = storedRecord{blob: blob, checksum: sum, rotatedAt: time.Now(), auditEntry: masked}
	v.mu.Unlock()

	v.logAudit(kind, "store", masked)
	_ = expiresAt // expiry is tracked by the caller's cache TTL (appTokens category); the vault stores ciphertext only
	return nil
}

// Retrieve decrypts and returns the token stored under kind. A checksum or
// GCM authentication failure purges the record and returns
// apperr.TamperDetected wrapped as apperr.Unavailable to the caller, per
// spec.md §4.4's "never surface raw integrity details".
func (v *Vault) Retrieve(kind string) (string, error) {
	v.mu.RLock()
	rec, ok := v.records[kind]
	v.mu.RUnlock()
	if !ok {
		return "", apperr.AuthUnavailable(kind)
	}

	plaintext, err := open(v.key, rec.blob)
	if err != nil {
		v.purgeAfterTamper(kind, rec.auditEntry)
		return "", apperr.Unavailable()
	}
	if !verifyChecksum(v.key, plaintext, rec.checksum) {
		v.purgeAfterTamper(kind, rec.auditEntry)
		return "", apperr.Unavailable()
	}

	v.logAudit(kind, "retrieve", rec.auditEntry)
	return string(plaintext), nil
}

func (v *Vault) purgeAfterTamper(kind, maskedToken string) {
	v.mu.Lock()
	delete(v.records, kind)
	v.mu.Unlock()
	v.logAudit(kind, "tamper", maskedToken)
}

// Remove deletes the record for kind, if any.
func (v *Vault) Remove(kind string) {
	v.mu.Lock()
	rec, existed := v.records[kind]
	delete(v.records, kind)
	v.mu.Unlock()
	if existed {
		v.logAudit(kind, "remove", rec.auditEntry)
	}
}

// Rotate exchanges refreshToken for a new access token via the oauth2.Config
// registered for kind, then stores the result.
func (v *Vault) Rotate(ctx context.Context, kind, refreshToken string) error {
	v.mu.RLock()
	cfg, ok := v.oauthCfg[kind]
	v.mu.RUnlock()
	if !ok {
		return apperr.Misconfigured("no oauth config registered for " + kind)
	}

	src := cfg.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return apperr.RotationFailed(kind, err)
	}

	if err := v.Store(kind, tok.AccessToken, tok.Expiry); err != nil {
		return apperr.RotationFailed(kind, err)
	}
	v.logAudit(kind, "rotate", MaskToken(tok.AccessToken))
	return nil
}

// Status reports, for every stored kind, when it was last written and the
// last N masked audit entries.
type Status struct {
	Kinds     map[string]time.Time
	RecentLog []AuditEntry
}

func (v *Vault) Status() Status {
	v.mu.RLock()
	kinds := make(map[string]time.Time, len(v.records))
	for k, r := range v.records {
		kinds[k] = r.rotatedAt
	}
	v.mu.RUnlock()

	v.auditMu.Lock()
	log := append([]AuditEntry(nil), v.audit...)
	v.auditMu.Unlock()

	return Status{Kinds: kinds, RecentLog: log}
}

func (v *Vault) logAudit(kind, action, maskedToken string) {
	v.auditMu.Lock()
	defer v.auditMu.Unlock()
	v.audit = append(v.audit, AuditEntry{Time: time.Now(), Kind: kind, Action: action, MaskedToken: maskedToken})
	if len(v.audit) > v.maxLog {
		v.audit = v.audit[len(v.audit)-v.maxLog:]
	}
}

// MaskToken renders a token for logs: first 4 and last 4 characters with
// the middle replaced by "****", or a fixed placeholder if the token is too
// short to mask safely without leaking most of it (spec.md §4.4).
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "***MASKED***"
	}
	return token[:4] + "****" + token[len(token)-4:]
}
