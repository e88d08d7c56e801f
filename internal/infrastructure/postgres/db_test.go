package postgres

import (
	"context"
	"testing"
	"time"
)

func TestNewPool_InvalidURL(t *testing.T) {
	_, err := NewPool(context.Background(), "not-a-url", 4, 1, time.Second)
	if err == nil {
		t.Fatal("expected error for invalid database URL")
	}
}

func TestNewPool_PingFailure(t *testing.T) {
	// Nothing listens on this port, so pool creation fails at the ping.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewPool(ctx, "postgres://127.0.0.1:1/opsledger?sslmode=disable", 4, 1, 500*time.Millisecond)
	if err == nil {
		t.Fatal("expected error for unreachable database")
	}
}
