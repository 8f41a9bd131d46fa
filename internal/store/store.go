// Package store holds the in-memory string/list/set maps titankv mutates
// under a single RWMutex, plus TTL expiry and the compression hook values
// pass through on their way to disk. It is grounded on the original engine's
// Storage class (compression, TTL, scan/range/snapshot) merged with its
// simpler TitanEngine variant's list/set maps (container/list, incr/decr,
// batch ops) — spec.md's store is the union of the two.
package store

import (
	"container/list"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"titankv/internal/compressor"
	"titankv/internal/sizehist"
)

// ErrWrongType is returned when an operation targets a key already bound to
// a different collection type (I1: a key lives in at most one of
// strings/lists/sets at a time).
var ErrWrongType = fmt.Errorf("store: key is bound to a different collection type")

type stringEntry struct {
	compressed []byte
	expiresAt  int64 // millis on the store's clock; 0 means no TTL
}

// Stats mirrors the original engine's StorageStats/Stats structs.
type Stats struct {
	KeyCount        int
	ListCount       int
	SetCount        int
	RawBytes        uint64
	CompressedBytes uint64
	TotalOps        uint64
	Hits            uint64
	Misses          uint64
	Expired         uint64
	MedianValueSize int
	P99ValueSize    int
}

// Store is the single coarse-grained-locked container for all three
// typespaces. Every exported method takes the lock itself; there is no
// re-entrant internal locking.
type Store struct {
	mu sync.RWMutex

	strings map[string]stringEntry
	lists   map[string]*list.List
	sets    map[string]map[string]struct{}

	comp *compressor.Compressor

	rawBytes        uint64
	compressedBytes uint64
	totalOps        uint64
	hits            uint64
	misses          uint64
	expired         uint64

	valueSizes *sizehist.Histogram

	now func() int64
}

// New creates an empty Store using comp to compress/decompress string
// values. now defaults to a monotonic millisecond clock measured from the
// Store's creation; tests may override it.
func New(comp *compressor.Compressor) *Store {
	start := time.Now()
	return &Store{
		strings:    make(map[string]stringEntry),
		lists:      make(map[string]*list.List),
		sets:       make(map[string]map[string]struct{}),
		comp:       comp,
		valueSizes: sizehist.New(),
		now:        func() int64 { return time.Since(start).Milliseconds() },
	}
}

func (s *Store) nowMillis() int64 { return s.now() }

// SetClock overrides the clock used for TTL bookkeeping. Exposed for tests
// that need deterministic expiry without a real sleep.
func (s *Store) SetClock(now func() int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) isExpired(e stringEntry) bool {
	if e.expiresAt == 0 {
		return false
	}
	return s.nowMillis() >= e.expiresAt
}

func (s *Store) boundElsewhere(key string, wantStrings bool) bool {
	if wantStrings {
		if _, ok := s.lists[key]; ok {
			return true
		}
		if _, ok := s.sets[key]; ok {
			return true
		}
		return false
	}
	_, isStr := s.strings[key]
	return isStr
}

// --- strings ---

// Put compresses value and stores it under key with an optional TTL
// (ttlMs <= 0 means no expiry). It returns the exact bytes written to disk
// so the caller (the Engine) can log identical bytes to the WAL.
func (s *Store) Put(key string, value []byte, ttlMs int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.boundElsewhere(key, true) {
		return nil, ErrWrongType
	}

	compressed, err := s.comp.Compress(value)
	if err != nil {
		return nil, err
	}

	s.rawBytes += uint64(len(value))
	s.compressedBytes += uint64(len(compressed))
	s.valueSizes.AddSample(len(value))
	s.totalOps++

	var expires int64
	if ttlMs > 0 {
		expires = s.nowMillis() + ttlMs
	}
	s.strings[key] = stringEntry{compressed: compressed, expiresAt: expires}
	return compressed, nil
}

// PutPrecompressed installs an already-compressed payload, used during WAL
// recovery where the logged bytes are the compressed form already.
func (s *Store) PutPrecompressed(key string, compressed []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compressedBytes += uint64(len(compressed))
	s.strings[key] = stringEntry{compressed: compressed, expiresAt: 0}
}

// Get returns the decompressed value for key, or found=false if absent or expired.
func (s *Store) Get(key string) (value []byte, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalOps++

	e, ok := s.strings[key]
	if !ok || s.isExpired(e) {
		if ok {
			s.expired++
		}
		s.misses++
		return nil, false, nil
	}
	s.hits++
	v, err := s.comp.Decompress(e.compressed)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Del removes key from the string typespace, reporting whether it existed.
func (s *Store) Del(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalOps++
	_, ok := s.strings[key]
	delete(s.strings, key)
	return ok
}

// Has reports whether key is present (and unexpired) in the string typespace.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.strings[key]
	if !ok {
		return false
	}
	return !s.isExpired(e)
}

// Clear empties all three typespaces and resets byte counters.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strings = make(map[string]stringEntry)
	s.lists = make(map[string]*list.List)
	s.sets = make(map[string]map[string]struct{})
	s.rawBytes = 0
	s.compressedBytes = 0
}

// Keys returns up to limit unexpired string keys. limit <= 0 means unbounded.
func (s *Store) Keys(limit int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]string, 0, len(s.strings))
	for k, v := range s.strings {
		if s.isExpired(v) {
			continue
		}
		result = append(result, k)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

// KV is a decoded key/value pair, used by Scan/Range/Snapshot.
type KV struct {
	Key   string
	Value []byte
}

// Scan returns up to limit unexpired keys matching prefix, with decoded values.
func (s *Store) Scan(prefix string, limit int) ([]KV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []KV
	for k, v := range s.strings {
		if s.isExpired(v) || !strings.HasPrefix(k, prefix) {
			continue
		}
		dec, err := s.comp.Decompress(v.compressed)
		if err != nil {
			return nil, err
		}
		result = append(result, KV{Key: k, Value: dec})
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Range returns unexpired keys in [low, high], sorted, capped at limit.
func (s *Store) Range(low, high string, limit int) ([]KV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []KV
	for k, v := range s.strings {
		if s.isExpired(v) || k < low || k > high {
			continue
		}
		dec, err := s.comp.Decompress(v.compressed)
		if err != nil {
			return nil, err
		}
		result = append(result, KV{Key: k, Value: dec})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountPrefix counts unexpired keys with the given prefix.
func (s *Store) CountPrefix(prefix string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for k, v := range s.strings {
		if !s.isExpired(v) && strings.HasPrefix(k, prefix) {
			count++
		}
	}
	return count
}

// Snapshot returns every unexpired string key/value pair.
func (s *Store) Snapshot() ([]KV, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]KV, 0, len(s.strings))
	for k, v := range s.strings {
		if s.isExpired(v) {
			continue
		}
		dec, err := s.comp.Decompress(v.compressed)
		if err != nil {
			return nil, err
		}
		result = append(result, KV{Key: k, Value: dec})
	}
	return result, nil
}

// SnapshotCompressed returns every unexpired string key paired with its
// already-compressed on-disk bytes, for WAL compaction — it avoids a
// decompress/recompress round trip through Put, which would double-count
// the raw/compressed byte counters.
func (s *Store) SnapshotCompressed() []KV {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]KV, 0, len(s.strings))
	for k, v := range s.strings {
		if s.isExpired(v) {
			continue
		}
		result = append(result, KV{Key: k, Value: v.compressed})
	}
	return result
}

// Incr parses the current value as an int64 (coercing a missing, expired, or
// non-numeric value to 0, matching the original engine's try/catch-to-zero
// behavior), adds delta, and stores the result back, compressed like any
// other value, as its decimal string form. Returns the new stored bytes for
// WAL logging.
func (s *Store) Incr(key string, delta int64) (int64, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.boundElsewhere(key, true) {
		return 0, nil, ErrWrongType
	}

	var val int64
	if e, ok := s.strings[key]; ok && !s.isExpired(e) {
		if raw, err := s.comp.Decompress(e.compressed); err == nil {
			if n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64); err == nil {
				val = n
			}
		}
	}
	val += delta

	newVal := []byte(strconv.FormatInt(val, 10))
	compressed, err := s.comp.Compress(newVal)
	if err != nil {
		return 0, nil, err
	}
	s.rawBytes += uint64(len(newVal))
	s.compressedBytes += uint64(len(compressed))
	s.totalOps++
	s.strings[key] = stringEntry{compressed: compressed, expiresAt: 0}
	return val, compressed, nil
}

// PutBatch stores every pair with no TTL, returning the compressed bytes
// written for each (in order) for WAL logging.
func (s *Store) PutBatch(pairs []KV) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(pairs))
	for i, p := range pairs {
		if s.boundElsewhere(p.Key, true) {
			return nil, ErrWrongType
		}
		compressed, err := s.comp.Compress(p.Value)
		if err != nil {
			return nil, err
		}
		s.rawBytes += uint64(len(p.Value))
		s.compressedBytes += uint64(len(compressed))
		s.totalOps++
		s.strings[p.Key] = stringEntry{compressed: compressed, expiresAt: 0}
		out[i] = compressed
	}
	return out, nil
}

// GetBatch fetches each key in order, reporting per-key found/value.
func (s *Store) GetBatch(keys []string) ([][]byte, []bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := make([][]byte, len(keys))
	found := make([]bool, len(keys))
	for i, k := range keys {
		s.totalOps++
		e, ok := s.strings[k]
		if !ok || s.isExpired(e) {
			if ok {
				s.expired++
			}
			s.misses++
			continue
		}
		dec, err := s.comp.Decompress(e.compressed)
		if err != nil {
			return nil, nil, err
		}
		s.hits++
		values[i] = dec
		found[i] = true
	}
	return values, found, nil
}

// --- lists ---

func (s *Store) listBoundElsewhere(key string) bool {
	if _, ok := s.strings[key]; ok {
		return true
	}
	if _, ok := s.sets[key]; ok {
		return true
	}
	return false
}

// LPush prepends value to key's list, creating it if needed.
func (s *Store) LPush(key string, value []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listBoundElsewhere(key) {
		return 0, ErrWrongType
	}
	s.totalOps++
	l, ok := s.lists[key]
	if !ok {
		l = list.New()
		s.lists[key] = l
	}
	l.PushFront(value)
	return l.Len(), nil
}

// RPush appends value to key's list, creating it if needed.
func (s *Store) RPush(key string, value []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listBoundElsewhere(key) {
		return 0, ErrWrongType
	}
	s.totalOps++
	l, ok := s.lists[key]
	if !ok {
		l = list.New()
		s.lists[key] = l
	}
	l.PushBack(value)
	return l.Len(), nil
}

// LPop removes and returns the first element, deleting the list if it
// becomes empty. found is false if the list doesn't exist or is empty.
func (s *Store) LPop(key string) (value []byte, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalOps++
	l, ok := s.lists[key]
	if !ok || l.Len() == 0 {
		return nil, false
	}
	front := l.Front()
	l.Remove(front)
	if l.Len() == 0 {
		delete(s.lists, key)
	}
	return front.Value.([]byte), true
}

// RPop removes and returns the last element, deleting the list if it becomes empty.
func (s *Store) RPop(key string) (value []byte, found bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalOps++
	l, ok := s.lists[key]
	if !ok || l.Len() == 0 {
		return nil, false
	}
	back := l.Back()
	l.Remove(back)
	if l.Len() == 0 {
		delete(s.lists, key)
	}
	return back.Value.([]byte), true
}

// LRange returns elements in [start, stop] with Python/Redis-style negative
// indexing, clamped to the list bounds.
func (s *Store) LRange(key string, start, stop int) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lists[key]
	if !ok {
		return nil
	}
	length := l.Len()
	if start < 0 {
		start = start + length
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop = stop + length
	}
	if stop > length-1 {
		stop = length - 1
	}
	if start > stop || start >= length {
		return nil
	}

	result := make([][]byte, 0, stop-start+1)
	i := 0
	for e := l.Front(); e != nil; e = e.Next() {
		if i > stop {
			break
		}
		if i >= start {
			result = append(result, e.Value.([]byte))
		}
		i++
	}
	return result
}

// LLen returns the length of key's list, or 0 if it doesn't exist.
func (s *Store) LLen(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lists[key]
	if !ok {
		return 0
	}
	return l.Len()
}

// --- sets ---

func (s *Store) setBoundElsewhere(key string) bool {
	if _, ok := s.strings[key]; ok {
		return true
	}
	if _, ok := s.lists[key]; ok {
		return true
	}
	return false
}

// SAdd adds member to key's set, creating it if needed. Returns whether the
// member was newly inserted (idempotent on repeat adds, per spec).
func (s *Store) SAdd(key string, member []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setBoundElsewhere(key) {
		return false, ErrWrongType
	}
	s.totalOps++
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	k := string(member)
	if _, exists := set[k]; exists {
		return false, nil
	}
	set[k] = struct{}{}
	return true, nil
}

// SRem removes member from key's set, deleting the set if it becomes empty.
func (s *Store) SRem(key string, member []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalOps++
	set, ok := s.sets[key]
	if !ok {
		return false
	}
	k := string(member)
	if _, exists := set[k]; !exists {
		return false
	}
	delete(set, k)
	if len(set) == 0 {
		delete(s.sets, key)
	}
	return true
}

// SIsMember reports whether member is in key's set.
func (s *Store) SIsMember(key string, member []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[key]
	if !ok {
		return false
	}
	_, exists := set[string(member)]
	return exists
}

// SMembers returns all members of key's set, in unspecified order.
func (s *Store) SMembers(key string) [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.sets[key]
	if !ok {
		return nil
	}
	result := make([][]byte, 0, len(set))
	for m := range set {
		result = append(result, []byte(m))
	}
	return result
}

// SCard returns the cardinality of key's set, or 0 if it doesn't exist.
func (s *Store) SCard(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sets[key])
}

// --- stats ---

// GetStats reports a point-in-time snapshot of the store's counters.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		KeyCount:        len(s.strings),
		ListCount:       len(s.lists),
		SetCount:        len(s.sets),
		RawBytes:        s.rawBytes,
		CompressedBytes: s.compressedBytes,
		TotalOps:        s.totalOps,
		Hits:            s.hits,
		Misses:          s.misses,
		Expired:         s.expired,
		MedianValueSize: s.valueSizes.Percentile(50),
		P99ValueSize:    s.valueSizes.Percentile(99),
	}
}
