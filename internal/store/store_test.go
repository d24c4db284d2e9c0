package store

import (
	"context"
	"testing"
)

func TestNewRedisParsesURL(t *testing.T) {
	r, err := NewRedis("redis://:pw@cache.internal:6380/2")
	if err != nil {
		t.Fatalf("new redis: %v", err)
	}
	defer r.Close()
	opts := r.Client.Options()
	if opts.Addr != "cache.internal:6380" || opts.DB != 2 || opts.Password != "pw" {
		t.Fatalf("unexpected options addr=%s db=%d", opts.Addr, opts.DB)
	}

	if _, err := NewRedis("redis://%zz"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestNilHandlesAreUnhealthy(t *testing.T) {
	var d *DB
	var r *Redis
	if d.Healthy(context.Background()) || r.Healthy(context.Background()) {
		t.Fatalf("nil handles must report unhealthy")
	}
	if d.Close() != nil || r.Close() != nil {
		t.Fatalf("closing nil handles must be a no-op")
	}
}
