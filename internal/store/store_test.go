package store

import (
	"bytes"
	"testing"

	"titankv/internal/compressor"
)

func newTestStore() *Store {
	return New(compressor.New(3))
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore()
	if _, err := s.Put("k", []byte("hello"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, found, err := s.Get("k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatalf("expected found")
	}
	if !bytes.Equal(v, []byte("hello")) {
		t.Errorf("got %q, want hello", v)
	}
}

func TestTTLExpiry(t *testing.T) {
	s := newTestStore()
	var nowMs int64 = 100
	s.SetClock(func() int64 { return nowMs })

	if _, err := s.Put("k", []byte("v"), 50); err != nil {
		t.Fatalf("put: %v", err)
	}

	nowMs = 149
	if _, found, _ := s.Get("k"); !found {
		t.Errorf("expected key alive at 149")
	}

	nowMs = 150
	if _, found, _ := s.Get("k"); found {
		t.Errorf("expected key expired at 150")
	}
}

func TestCrossTypeBindingRejected(t *testing.T) {
	s := newTestStore()
	if _, err := s.Put("k", []byte("v"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := s.LPush("k", []byte("x")); err != ErrWrongType {
		t.Errorf("expected ErrWrongType, got %v", err)
	}
	if _, err := s.SAdd("k", []byte("x")); err != ErrWrongType {
		t.Errorf("expected ErrWrongType, got %v", err)
	}

	if _, err := s.RPush("l", []byte("x")); err != nil {
		t.Fatalf("rpush: %v", err)
	}
	if _, err := s.Put("l", []byte("v"), 0); err != ErrWrongType {
		t.Errorf("expected ErrWrongType putting over a list key, got %v", err)
	}
}

func TestListOps(t *testing.T) {
	s := newTestStore()
	if n, _ := s.RPush("l", []byte("a")); n != 1 {
		t.Fatalf("rpush a: %d", n)
	}
	if n, _ := s.RPush("l", []byte("b")); n != 2 {
		t.Fatalf("rpush b: %d", n)
	}
	if n, _ := s.LPush("l", []byte("z")); n != 3 {
		t.Fatalf("lpush z: %d", n)
	}
	if n := s.LLen("l"); n != 3 {
		t.Errorf("llen: %d", n)
	}

	got := s.LRange("l", -2, -1)
	want := [][]byte{[]byte("a"), []byte("b")}
	if len(got) != len(want) || !bytes.Equal(got[0], want[0]) || !bytes.Equal(got[1], want[1]) {
		t.Errorf("lrange(-2,-1) got %v, want %v", got, want)
	}

	v, found := s.LPop("l")
	if !found || !bytes.Equal(v, []byte("z")) {
		t.Errorf("lpop got %q found=%v, want z", v, found)
	}

	s.RPop("l")
	s.RPop("l")
	if s.LLen("l") != 0 {
		t.Errorf("expected list gone after draining")
	}
	if _, found := s.LPop("l"); found {
		t.Errorf("expected lpop on drained list to report not found")
	}
}

func TestSetOps(t *testing.T) {
	s := newTestStore()
	added, err := s.SAdd("s", []byte("m1"))
	if err != nil || !added {
		t.Fatalf("sadd: added=%v err=%v", added, err)
	}
	added, _ = s.SAdd("s", []byte("m1"))
	if added {
		t.Errorf("expected idempotent sadd")
	}
	if s.SCard("s") != 1 {
		t.Errorf("scard: %d", s.SCard("s"))
	}
	if !s.SIsMember("s", []byte("m1")) {
		t.Errorf("expected m1 to be a member")
	}
	if !s.SRem("s", []byte("m1")) {
		t.Errorf("expected srem to report removed")
	}
	if s.SRem("s", []byte("m1")) {
		t.Errorf("expected second srem to be a no-op")
	}
}

func TestIncrCoercesNonNumericToZero(t *testing.T) {
	s := newTestStore()
	if _, err := s.Put("k", []byte("not-a-number"), 0); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, _, err := s.Incr("k", 5)
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if v != 5 {
		t.Errorf("got %d, want 5", v)
	}
}

func TestScanRangeCountPrefix(t *testing.T) {
	s := newTestStore()
	for _, k := range []string{"p-1", "p-2", "q-1"} {
		if _, err := s.Put(k, []byte(k), 0); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	if n := s.CountPrefix("p-"); n != 2 {
		t.Errorf("countprefix: %d", n)
	}

	scanned, err := s.Scan("p-", 10)
	if err != nil || len(scanned) != 2 {
		t.Errorf("scan: len=%d err=%v", len(scanned), err)
	}

	ranged, err := s.Range("p-1", "q-1", 10)
	if err != nil || len(ranged) != 3 {
		t.Errorf("range: len=%d err=%v", len(ranged), err)
	}
	if ranged[0].Key != "p-1" || ranged[2].Key != "q-1" {
		t.Errorf("range not sorted: %v", ranged)
	}
}
