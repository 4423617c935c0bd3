package tokenvault

import (
	"strings"
	"testing"
	"time"
)

func testKey() []byte {
	return []byte("01234567890123456789012345678901") // 32 bytes
}

func TestStoreRetrieve_RoundTrips(t *testing.T) {
	v, err := New(testKey())
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Store("github", "secret-token", time.Time{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := v.Retrieve("github")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "secret-token" {
		t.Fatalf("got %q, want secret-token", got)
	}
}

func TestRetrieve_Missing(t *testing.T) {
	v, _ := New(testKey())
	if _, err := v.Retrieve("nope"); err == nil {
		t.Fatal("expected AuthUnavailable for a missing kind")
	}
}

func TestRetrieve_TamperedCiphertext_PurgesAndReportsUnavailable(t *testing.T) {
	v, _ := New(testKey())
	v.Store("github", "secret-token", time.Time{})

	v.mu.Lock()
	rec := v.records["github"]
	rec.blob[len(rec.blob)-1] ^= 0xFF // flip a byte in the GCM tag
	v.records["github"] = rec
	v.mu.Unlock()

	if _, err := v.Retrieve("github"); err == nil {
		t.Fatal("expected a tamper-detection error")
	}

	v.mu.RLock()
	_, stillPresent := v.records["github"]
	v.mu.RUnlock()
	if stillPresent {
		t.Fatal("a tampered record must be purged, not left in place")
	}
}

func TestRetrieve_CorruptedChecksum_Detected(t *testing.T) {
	v, _ := New(testKey())
	v.Store("github", "secret-token", time.Time{})

	v.mu.Lock()
	rec := v.records["github"]
	rec.checksum[0] ^= 0xFF
	v.records["github"] = rec
	v.mu.Unlock()

	if _, err := v.Retrieve("github"); err == nil {
		t.Fatal("expected a checksum-mismatch error even though GCM itself would authenticate fine")
	}
}

func TestRemove(t *testing.T) {
	v, _ := New(testKey())
	v.Store("github", "tok", time.Time{})
	v.Remove("github")
	if _, err := v.Retrieve("github"); err == nil {
		t.Fatal("expected removed token to be gone")
	}
}

func TestNew_RejectsWrongKeySize(t *testing.T) {
	if _, err := New([]byte("too-short")); err == nil {
		t.Fatal("expected an error for a non-32-byte key")
	}
}

func TestStatus_TracksKindsAndAudit(t *testing.T) {
	v, _ := New(testKey())
	v.Store("github", "tok", time.Time{})
	v.Retrieve("github")

	status := v.Status()
	if _, ok := status.Kinds["github"]; !ok {
		t.Fatal("expected github to appear in status")
	}
	if len(status.RecentLog) < 2 {
		t.Fatalf("expected at least a store and retrieve audit entry, got %d", len(status.RecentLog))
	}
}

func TestMaskToken(t *testing.T) {
	if got := MaskToken("short"); got != "***MASKED***" {
		t.Fatalf("got %q", got)
	}
	long := "abcdefghijklmnop"
	got := MaskToken(long)
	if !strings.HasPrefix(got, "abcd") || !strings.HasSuffix(got, "mnop") {
		t.Fatalf("got %q, want masked form retaining first/last 4 chars", got)
	}
	if strings.Contains(got, "efghijkl") {
		t.Fatal("masked token must not leak the middle of the secret")
	}
}
