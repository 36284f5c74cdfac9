package monitormeta

import (
	"testing"
	"time"

	"pulsewatch/pkg/monitor"
)

func TestTTLCache_ExpiresAfterTTL(t *testing.T) {
	c := newTTLCache(10 * time.Millisecond)
	now := time.Now()
	c.Set("example.test", monitor.TargetMetadata{Hostname: "example.test"}, now)

	if _, ok := c.Get("example.test", now); !ok {
		t.Fatal("expected a fresh entry to be present")
	}
	if _, ok := c.Get("example.test", now.Add(time.Hour)); ok {
		t.Fatal("expected entry to expire after TTL")
	}
}

func TestTTLCache_MissForUnknownHost(t *testing.T) {
	c := newTTLCache(time.Hour)
	if _, ok := c.Get("nope.test", time.Now()); ok {
		t.Fatal("expected a miss for an unknown host")
	}
}
