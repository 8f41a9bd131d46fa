package titankv

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"titankv/internal/enginetest"
)

func TestEngineSuite(t *testing.T) {
	enginetest.RunEngineTests(t, "titankv", func(t *testing.T) enginetest.Engine {
		dir := t.TempDir()
		e, err := Open(dir, Options{})
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return e
	})
}

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	e, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestRecoveryAfterRestart(t *testing.T) {
	dir := t.TempDir()

	e, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := e.Put("k1", []byte("v1"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := e.Put("k2", []byte("v2"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := e.Del("k2"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	e2, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()

	v, err := e2.Get("k1")
	if err != nil {
		t.Fatalf("get k1 after recovery: %v", err)
	}
	if !bytes.Equal(v, []byte("v1")) {
		t.Errorf("got %q, want v1", v)
	}

	if _, err := e2.Get("k2"); err == nil {
		t.Errorf("k2 should have stayed deleted across recovery")
	}
}

func TestCompaction(t *testing.T) {
	dir := t.TempDir()
	e, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for i := 0; i < 50; i++ {
		if err := e.Put("churn-key", []byte("v"), 0); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if err := e.Put("stable-key", []byte("stable"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	sizeBefore, err := walSize(dir)
	if err != nil {
		t.Fatalf("stat wal: %v", err)
	}

	if err := e.Compact(); err != nil {
		t.Fatalf("compact: %v", err)
	}

	sizeAfter, err := walSize(dir)
	if err != nil {
		t.Fatalf("stat wal: %v", err)
	}
	if sizeAfter >= sizeBefore {
		t.Errorf("expected compaction to shrink the wal: before=%d after=%d", sizeBefore, sizeAfter)
	}

	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	e2, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("reopen after compaction: %v", err)
	}
	defer e2.Close()

	v, err := e2.Get("churn-key")
	if err != nil || !bytes.Equal(v, []byte("v")) {
		t.Errorf("got %q err=%v, want v", v, err)
	}
	v, err = e2.Get("stable-key")
	if err != nil || !bytes.Equal(v, []byte("stable")) {
		t.Errorf("got %q err=%v, want stable", v, err)
	}
}

func walSize(dir string) (int64, error) {
	fi, err := os.Stat(filepath.Join(dir, "titan.wal"))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func TestTTLExpiryWithInjectedClock(t *testing.T) {
	e := openTestEngine(t)

	var nowMs int64 = 1000
	e.setClockForTest(func() int64 { return nowMs })

	if err := e.Put("ttl-key", []byte("v"), 500); err != nil {
		t.Fatalf("put: %v", err)
	}

	nowMs = 1400
	v, err := e.Get("ttl-key")
	if err != nil || !bytes.Equal(v, []byte("v")) {
		t.Errorf("expected key alive before ttl elapses, got v=%q err=%v", v, err)
	}

	nowMs = 1501
	if _, err := e.Get("ttl-key"); err == nil {
		t.Errorf("expected key to be expired")
	}

	if err := e.Put("no-ttl-key", []byte("v"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	nowMs = 10_000_000
	if _, err := e.Get("no-ttl-key"); err != nil {
		t.Errorf("ttl=0 key should never expire, got %v", err)
	}
}

func TestWrongTypeBinding(t *testing.T) {
	e := openTestEngine(t)

	if err := e.Put("k", []byte("v"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := e.LPush("k", []byte("x")); err == nil {
		t.Errorf("expected ErrWrongType pushing onto a string key")
	}
}

func TestIncrOverflowWraps(t *testing.T) {
	e := openTestEngine(t)

	if err := e.Put("maxint", []byte("9223372036854775807"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, err := e.Incr("maxint", 1)
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if v != -9223372036854775808 {
		t.Errorf("expected two's complement wraparound, got %d", v)
	}
}

func TestScanRangeSnapshot(t *testing.T) {
	e := openTestEngine(t)

	for _, k := range []string{"a1", "a2", "b1", "c1"} {
		if err := e.Put(k, []byte(k), 0); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	scanned, err := e.Scan("a", 10)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scanned) != 2 {
		t.Errorf("expected 2 keys with prefix a, got %d", len(scanned))
	}

	ranged, err := e.Range("a1", "b1", 10)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(ranged) != 3 {
		t.Errorf("expected 3 keys in [a1,b1], got %d", len(ranged))
	}

	snap, err := e.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 4 {
		t.Errorf("expected 4 keys in snapshot, got %d", len(snap))
	}
}

func TestPutBatchGetBatch(t *testing.T) {
	e := openTestEngine(t)

	pairs := []KV{
		{Key: "b1", Value: []byte("v1")},
		{Key: "b2", Value: []byte("v2")},
	}
	if err := e.PutBatch(pairs); err != nil {
		t.Fatalf("putbatch: %v", err)
	}

	results, err := e.GetBatch([]string{"b1", "b2", "missing"})
	if err != nil {
		t.Fatalf("getbatch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Found || !bytes.Equal(results[0].Value, []byte("v1")) {
		t.Errorf("b1 result wrong: %+v", results[0])
	}
	if !results[1].Found || !bytes.Equal(results[1].Value, []byte("v2")) {
		t.Errorf("b2 result wrong: %+v", results[1])
	}
	if results[2].Found {
		t.Errorf("missing key should not be found")
	}
}

func TestWritePrometheus(t *testing.T) {
	e := openTestEngine(t)
	if err := e.Put("k", []byte("v"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}

	var buf bytes.Buffer
	e.WritePrometheus(&buf)
	if buf.Len() == 0 {
		t.Errorf("expected non-empty prometheus output")
	}
	if !bytes.Contains(buf.Bytes(), []byte("titankv_key_count")) {
		t.Errorf("expected titankv_key_count in prometheus output, got %s", buf.String())
	}
}

func TestInvalidKeyRejected(t *testing.T) {
	e := openTestEngine(t)
	if err := e.Put("", []byte("v"), 0); err == nil {
		t.Errorf("expected error for empty key")
	}
}
