package main

import (
	"context"
	"os"
	"testing"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		os.Unsetenv(k)
	}
	t.Cleanup(func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
	})
}

func TestGetEnvUint32(t *testing.T) {
	clearEnv(t, "TEST_UINT32", "INVALID_UINT32")

	os.Setenv("TEST_UINT32", "12345")
	if val := getEnvUint32("TEST_UINT32", 0); val != 12345 {
		t.Errorf("expected 12345, got %d", val)
	}
	if val := getEnvUint32("NON_EXISTENT", 99); val != 99 {
		t.Errorf("expected default 99, got %d", val)
	}
	os.Setenv("INVALID_UINT32", "not-a-number")
	if val := getEnvUint32("INVALID_UINT32", 42); val != 42 {
		t.Errorf("expected default 42 for invalid input, got %d", val)
	}
}

func TestEnvInt(t *testing.T) {
	clearEnv(t, "TEST_INT")

	if val := envInt("TEST_INT", 7); val != 7 {
		t.Errorf("expected default 7, got %d", val)
	}
	os.Setenv("TEST_INT", "42")
	if val := envInt("TEST_INT", 7); val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
}

func TestRunConfigErrors(t *testing.T) {
	clearEnv(t, "DATABASE_URL", "API_ADDR")
	ctx := context.Background()

	os.Setenv("DATABASE_URL", "none")
	if err := run(ctx); err != nil {
		t.Errorf("expected nil for DATABASE_URL=none, got %v", err)
	}

	os.Setenv("DATABASE_URL", "none")
	os.Setenv("API_ADDR", "test-exit")
	if err := run(ctx); err != nil {
		t.Errorf("expected nil for API_ADDR=test-exit, got %v", err)
	}
}

func TestRunAnycastMissingConfig(t *testing.T) {
	clearEnv(t, "DATABASE_URL", "ANYCAST_ENABLED", "ANYCAST_VIP", "BGP_PEER_IP")
	ctx := context.Background()

	os.Setenv("DATABASE_URL", "none")
	os.Setenv("ANYCAST_ENABLED", "true")

	if err := run(ctx); err == nil {
		t.Error("expected error for missing ANYCAST_VIP/BGP_PEER_IP")
	}
}

func TestRunRedisConnectionFailure(t *testing.T) {
	clearEnv(t, "DATABASE_URL", "REDIS_URL")
	ctx := context.Background()

	os.Setenv("DATABASE_URL", "none")
	os.Setenv("REDIS_URL", "invalid.invalid:6379")

	if err := run(ctx); err == nil {
		t.Error("expected error for unreachable redis url")
	}
}

func TestRunFullLifecycle(t *testing.T) {
	clearEnv(t, "DATABASE_URL", "API_ADDR", "DNS_ADDR")
	os.Setenv("DATABASE_URL", "none")
	os.Setenv("API_ADDR", ":0")
	os.Setenv("DNS_ADDR", "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- run(ctx)
	}()
	cancel()

	if err := <-done; err != nil {
		t.Errorf("full lifecycle run failed: %v", err)
	}
}
