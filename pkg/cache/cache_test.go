package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/gatescan/gatescan/pkg/report"
	"github.com/gatescan/gatescan/pkg/risk"
	"github.com/gatescan/gatescan/pkg/rules"
)

func testCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	c, err := New(context.Background(), srv.Addr(), 300)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, srv
}

func TestCacheRoundTrip(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()

	hits := []risk.Hit{{Rule: "XSS_PATTERN", Severity: risk.SeverityHigh, Score: 1.75, Reason: "Potential XSS"}}
	rep := report.Build("<script>alert(1)</script>", "<script>alert(1)</script>", hits, 1.75, risk.DecisionBlock)
	key := Key(rep.Input.SHA256, "abcd1234")

	c.Put(ctx, key, rep)
	got, ok := c.Get(ctx, key)
	if !ok {
		t.Fatal("expected a cache hit")
	}

	wantJSON, _ := json.Marshal(rep)
	gotJSON, _ := json.Marshal(got)
	if string(wantJSON) != string(gotJSON) {
		t.Errorf("cached report differs:\n got %s\nwant %s", gotJSON, wantJSON)
	}
}

func TestCacheMiss(t *testing.T) {
	c, _ := testCache(t)
	if _, ok := c.Get(context.Background(), Key("deadbeef", "fp")); ok {
		t.Error("expected a miss for an unknown key")
	}
}

func TestCacheTTL(t *testing.T) {
	c, srv := testCache(t)
	ctx := context.Background()

	rep := report.Build("input", "input", nil, 0, risk.DecisionAllow)
	key := Key(rep.Input.SHA256, "fp")
	c.Put(ctx, key, rep)

	srv.FastForward(301 * time.Second)
	if _, ok := c.Get(ctx, key); ok {
		t.Error("entry should have expired")
	}
}

func TestCacheNeverStoresErrorReports(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()

	rep := report.BuildError("pipeline exploded")
	key := Key("errorhash", "fp")
	c.Put(ctx, key, rep)
	if _, ok := c.Get(ctx, key); ok {
		t.Error("error reports must not be cached")
	}
}

func TestCacheDegradesWhenServerGone(t *testing.T) {
	c, srv := testCache(t)
	ctx := context.Background()
	srv.Close()

	rep := report.Build("input", "input", nil, 0, risk.DecisionAllow)
	c.Put(ctx, Key("a", "b"), rep)
	if _, ok := c.Get(ctx, Key("a", "b")); ok {
		t.Error("expected a miss when the server is unreachable")
	}
}

func TestCacheCorruptEntryIsMiss(t *testing.T) {
	c, srv := testCache(t)
	key := Key("corrupt", "fp")
	srv.Set(key, "{not a report")

	if _, ok := c.Get(context.Background(), key); ok {
		t.Error("corrupt entries must read as misses")
	}
}

func TestNewFailsWithoutServer(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	if _, err := New(context.Background(), addr, 300); err == nil {
		t.Fatal("expected a connection error")
	}
}

func TestKeyFormat(t *testing.T) {
	key := Key("a1b2", "c3d4")
	if key != "gatescan:scan:a1b2:c3d4" {
		t.Errorf("key = %q", key)
	}
}

func TestFingerprint(t *testing.T) {
	th := risk.DefaultThresholds()
	w := risk.DefaultWeights()
	names := []string{"SQLI_KEYWORD", "XSS_PATTERN"}

	base := Fingerprint(th, w, nil, names)
	if len(base) != 16 {
		t.Errorf("fingerprint length = %d, want 16", len(base))
	}

	t.Run("stable", func(t *testing.T) {
		if Fingerprint(th, w, nil, names) != base {
			t.Error("same inputs should fingerprint identically")
		}
	})

	t.Run("catalog order ignored", func(t *testing.T) {
		reordered := []string{"XSS_PATTERN", "SQLI_KEYWORD"}
		if Fingerprint(th, w, nil, reordered) != base {
			t.Error("catalog name order should not change the fingerprint")
		}
	})

	t.Run("thresholds matter", func(t *testing.T) {
		if Fingerprint(risk.Thresholds{Warn: 0.1, Block: 0.2}, w, nil, names) == base {
			t.Error("different thresholds should change the fingerprint")
		}
	})

	t.Run("weights matter", func(t *testing.T) {
		if Fingerprint(th, risk.Weights{Low: 1, Medium: 2, High: 3}, nil, names) == base {
			t.Error("different weights should change the fingerprint")
		}
	})

	t.Run("overrides matter", func(t *testing.T) {
		ov := rules.Overrides{"SQLI_KEYWORD": {Severity: "low"}}
		if Fingerprint(th, w, ov, names) == base {
			t.Error("overrides should change the fingerprint")
		}
	})

	t.Run("catalog membership matters", func(t *testing.T) {
		if Fingerprint(th, w, nil, []string{"SQLI_KEYWORD"}) == base {
			t.Error("a different catalog should change the fingerprint")
		}
	})
}
