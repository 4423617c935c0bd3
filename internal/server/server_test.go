package server

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"testing"
	"time"

	"github.com/corebridge/platform-core/internal/config"
)

func testKeyHex(t *testing.T) string {
	t.Helper()
	return hex.EncodeToString(make([]byte, 32))
}

func minimalConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		AppID:     "test-app",
		AppSecret: "test-secret",
		TokenVault: config.TokenVaultConfig{
			EncryptionKeyHex: testKeyHex(t),
		},
		Conversation: config.ConversationConfig{
			Backend: "file",
			Dir:     filepath.Join(t.TempDir(), "conversations"),
		},
		TaskQueue: config.TaskQueueConfig{
			Backend: "memory",
		},
		Transport: config.TransportConfig{
			Stdio: config.StdioTransportConfig{Enabled: false},
			HTTP:  config.HTTPTransportConfig{Enabled: false},
		},
	}
}

func TestNew_BuildsEveryComponent(t *testing.T) {
	cfg := minimalConfig(t)
	srv, err := New(cfg, "", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer srv.Stop(context.Background())

	if srv.Registry() == nil {
		t.Error("Registry() is nil")
	}
	if srv.Dispatcher() == nil {
		t.Error("Dispatcher() is nil")
	}
	if srv.Vault() == nil {
		t.Error("Vault() is nil")
	}
	if srv.TaskQueue() == nil {
		t.Error("TaskQueue() is nil")
	}
}

func TestNew_RejectsMissingVaultKey(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.TokenVault.EncryptionKeyHex = ""

	if _, err := New(cfg, "", nil); err == nil {
		t.Fatal("expected error for missing token_vault.encryption_key_hex, got nil")
	}
}

func TestNew_RejectsBadVaultKeyHex(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.TokenVault.EncryptionKeyHex = "not-hex"

	if _, err := New(cfg, "", nil); err == nil {
		t.Fatal("expected error for malformed hex key, got nil")
	}
}

func TestNew_RejectsUnknownConversationBackend(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.Conversation.Backend = "postgres"

	if _, err := New(cfg, "", nil); err == nil {
		t.Fatal("expected error for unknown conversation backend, got nil")
	}
}

func TestNew_RejectsUnknownTaskQueueBackend(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.TaskQueue.Backend = "kafka"

	if _, err := New(cfg, "", nil); err == nil {
		t.Fatal("expected error for unknown task queue backend, got nil")
	}
}

func TestNew_RejectsMissingHTTPPairingKey(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.Transport.HTTP = config.HTTPTransportConfig{Enabled: true, Addr: "127.0.0.1:0"}

	if _, err := New(cfg, "", nil); err == nil {
		t.Fatal("expected error for missing transport.http.pairing_key_hex, got nil")
	}
}

// TestServer_StartStop exercises the full lifecycle with the HTTP transport
// enabled on an ephemeral port: Start should run until the context is
// cancelled, and Stop should tear everything down without error even though
// nothing ever called Start on a second Server in the same test.
func TestServer_StartStop(t *testing.T) {
	cfg := minimalConfig(t)
	cfg.Transport.HTTP = config.HTTPTransportConfig{
		Enabled:         true,
		Addr:            "127.0.0.1:0",
		PairingKeyHex:   testKeyHex(t),
		PairingTokenTTL: time.Minute,
	}

	srv, err := New(cfg, "", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := srv.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

// TestServer_Stop_WithoutStart mirrors how the operator subcommands
// (tools list, tasks stats, vault status) use a Server: they build it via
// New and defer Stop without ever calling Start.
func TestServer_Stop_WithoutStart(t *testing.T) {
	cfg := minimalConfig(t)
	srv, err := New(cfg, "", nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := srv.Stop(context.Background()); err != nil {
		t.Errorf("Stop() on a never-started server returned error = %v", err)
	}
}
