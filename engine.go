// Package titankv is an embeddable, in-process key-value engine with
// durable string storage, write-ahead logging, TTL expiry, optional
// compression, and list/set collections. It is designed to be linked
// directly into a host process — there is no network listener or server
// loop here, only a Go API an application calls into under its own
// goroutines.
package titankv

import (
	"errors"
	"io"
	"sync"

	"github.com/VictoriaMetrics/metrics"

	"titankv/internal/compressor"
	"titankv/internal/store"
	"titankv/internal/tlog"
	"titankv/internal/wal"
)

// SyncMode selects how aggressively the WAL is flushed to disk. It mirrors
// wal.SyncPolicy one-for-one; the alias exists so callers don't need to
// import the internal package to construct Options.
type SyncMode = wal.SyncPolicy

const (
	SyncAlways = wal.SyncAlways
	SyncAsync  = wal.SyncAsync
	SyncNone   = wal.SyncNone
)

// Options configures Open.
type Options struct {
	// Sync controls WAL flush behavior. Defaults to SyncAlways.
	Sync SyncMode
	// CompressionLevel is the zstd level used for string values. Defaults
	// to 3, matching the original engine's Storage::compression_level_.
	CompressionLevel int
	// LogLevel sets the verbosity of recovery/compaction diagnostics.
	// Defaults to "info".
	LogLevel string
}

func (o Options) withDefaults() Options {
	if o.CompressionLevel == 0 {
		o.CompressionLevel = 3
	}
	if o.LogLevel == "" {
		o.LogLevel = "info"
	}
	return o
}

// KV is a decoded key/value pair returned by Scan/Range/Snapshot.
type KV struct {
	Key   string
	Value []byte
}

// Maybe is one slot of a GetBatch result: Found reports whether Value is
// meaningful.
type Maybe struct {
	Value []byte
	Found bool
}

// Stats is a point-in-time report of engine counters, also exposed via
// WritePrometheus.
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

// Engine is a single open data directory: one WAL, one Store, one set of
// metrics. All exported methods are safe for concurrent use.
type Engine struct {
	mu   sync.Mutex // serializes store-then-log write sequences only
	dir  string
	opts Options

	store *store.Store
	wal   *wal.WAL
	log   *tlog.Logger

	metrics *metrics.Set
}

// Open opens or creates the engine's data directory at dataDir, replaying
// the WAL to rebuild in-memory state before returning.
func Open(dataDir string, opts Options) (*Engine, error) {
	opts = opts.withDefaults()

	log := tlog.New("titankv")
	log.SetLevel(tlog.ParseLevel(opts.LogLevel))

	comp := compressor.New(opts.CompressionLevel)
	st := store.New(comp)

	w, err := wal.Open(dataDir, opts.Sync, log)
	if err != nil {
		return nil, ioErrorf("open wal", err)
	}

	e := &Engine{
		dir:     dataDir,
		opts:    opts,
		store:   st,
		wal:     w,
		log:     log,
		metrics: metrics.NewSet(),
	}
	e.registerGauges()

	if err := e.recover(); err != nil {
		w.Close()
		return nil, err
	}
	return e, nil
}

// registerGauges wires live-computed gauges into the engine's metrics.Set.
// Each callback re-reads the store's stats at scrape time, so no separate
// "refresh before writing" step is needed.
func (e *Engine) registerGauges() {
	e.metrics.GetOrCreateGauge("titankv_key_count", func() float64 {
		return float64(e.store.GetStats().KeyCount)
	})
	e.metrics.GetOrCreateGauge("titankv_list_count", func() float64 {
		return float64(e.store.GetStats().ListCount)
	})
	e.metrics.GetOrCreateGauge("titankv_set_count", func() float64 {
		return float64(e.store.GetStats().SetCount)
	})
	e.metrics.GetOrCreateGauge("titankv_value_size_median_bytes", func() float64 {
		return float64(e.store.GetStats().MedianValueSize)
	})
	e.metrics.GetOrCreateGauge("titankv_value_size_p99_bytes", func() float64 {
		return float64(e.store.GetStats().P99ValueSize)
	})
}

// setClockForTest overrides the store's TTL clock; used only by this
// package's own tests to make expiry deterministic.
func (e *Engine) setClockForTest(now func() int64) {
	e.store.SetClock(now)
}

// recover replays the WAL into the store. PUT payloads are the already-
// compressed bytes the store wrote at the time; they are installed verbatim
// via PutPrecompressed, matching the original engine's recover() which
// re-installs logged bytes without re-compressing them. TTLs are never
// recovered, per spec: expiry is ephemeral across restarts.
func (e *Engine) recover() error {
	var putCount, delCount int
	err := wal.Recover(e.dir, func(rec wal.Record) error {
		switch rec.Op {
		case wal.OpPut:
			e.store.PutPrecompressed(rec.Key, rec.Value)
			putCount++
		case wal.OpDel:
			e.store.Del(rec.Key)
			delCount++
		}
		return nil
	})
	if err != nil {
		return wrapError(KindCorruptLog, "recover", err)
	}
	e.log.Infof("recovered %d puts, %d deletes from wal", putCount, delCount)
	return nil
}

// Close flushes and closes the WAL. The Engine must not be used afterward.
func (e *Engine) Close() error {
	if err := e.wal.Close(); err != nil {
		return ioErrorf("close wal", err)
	}
	return nil
}

func validateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}

// Put stores value under key, compressing it and appending a WAL record.
// ttlMs <= 0 means no expiry. Store mutation happens before the WAL append
// (store-then-log), so a crash between the two loses only the most recent
// write, never corrupts already-durable state.
func (e *Engine) Put(key string, value []byte, ttlMs int64) error {
	if err := validateKey(key); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	compressed, err := e.store.Put(key, value, ttlMs)
	if err != nil {
		return classifyStoreErr(err)
	}
	if err := e.wal.LogPut(key, compressed); err != nil {
		return ioErrorf("log put", err)
	}
	return nil
}

// Get returns the value stored under key, or ErrNotFound.
func (e *Engine) Get(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	v, found, err := e.store.Get(key)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	if !found {
		return nil, ErrNotFound
	}
	return v, nil
}

// Del removes key, reporting whether it existed. A WAL DEL record is only
// appended when the key actually existed.
func (e *Engine) Del(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	existed := e.store.Del(key)
	if existed {
		if err := e.wal.LogDel(key); err != nil {
			return false, ioErrorf("log del", err)
		}
	}
	return existed, nil
}

// Has reports whether key exists and is unexpired.
func (e *Engine) Has(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	return e.store.Has(key), nil
}

// Clear removes every key across all typespaces and compacts the WAL down
// to an empty log, matching the original engine's clear()-then-compact.
func (e *Engine) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.Clear()
	if err := e.wal.Compact(nil); err != nil {
		return ioErrorf("compact after clear", err)
	}
	return nil
}

// Keys returns up to limit unexpired string keys. limit <= 0 means unbounded.
func (e *Engine) Keys(limit int) ([]string, error) {
	return e.store.Keys(limit), nil
}

// Scan returns up to limit unexpired key/value pairs whose key has prefix.
func (e *Engine) Scan(prefix string, limit int) ([]KV, error) {
	res, err := e.store.Scan(prefix, limit)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	return convertKVs(res), nil
}

// Range returns unexpired key/value pairs with low <= key <= high, sorted
// by key, capped at limit.
func (e *Engine) Range(low, high string, limit int) ([]KV, error) {
	res, err := e.store.Range(low, high, limit)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	return convertKVs(res), nil
}

// CountPrefix counts unexpired keys with the given prefix.
func (e *Engine) CountPrefix(prefix string) (int, error) {
	return e.store.CountPrefix(prefix), nil
}

// Snapshot returns every unexpired string key/value pair.
func (e *Engine) Snapshot() ([]KV, error) {
	res, err := e.store.Snapshot()
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	return convertKVs(res), nil
}

// Incr adds delta to the integer value stored at key (treating a missing,
// expired, or non-numeric existing value as 0) and returns the new value.
func (e *Engine) Incr(key string, delta int64) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	val, compressed, err := e.store.Incr(key, delta)
	if err != nil {
		return 0, classifyStoreErr(err)
	}
	if err := e.wal.LogPut(key, compressed); err != nil {
		return 0, ioErrorf("log incr", err)
	}
	return val, nil
}

// Decr is Incr with delta negated.
func (e *Engine) Decr(key string, delta int64) (int64, error) {
	return e.Incr(key, -delta)
}

// PutBatch stores every pair with no TTL, logging one WAL record per pair
// under a single store lock acquisition (no cross-record atomicity beyond
// that — a crash mid-batch can leave a prefix applied).
func (e *Engine) PutBatch(pairs []KV) error {
	for _, p := range pairs {
		if err := validateKey(p.Key); err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	storePairs := make([]store.KV, len(pairs))
	for i, p := range pairs {
		storePairs[i] = store.KV{Key: p.Key, Value: p.Value}
	}
	compressedList, err := e.store.PutBatch(storePairs)
	if err != nil {
		return classifyStoreErr(err)
	}
	for i, p := range pairs {
		if err := e.wal.LogPut(p.Key, compressedList[i]); err != nil {
			return ioErrorf("log putbatch", err)
		}
	}
	return nil
}

// GetBatch fetches each key in order, reporting per-key found/value.
func (e *Engine) GetBatch(keys []string) ([]Maybe, error) {
	values, found, err := e.store.GetBatch(keys)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	out := make([]Maybe, len(keys))
	for i := range keys {
		out[i] = Maybe{Value: values[i], Found: found[i]}
	}
	return out, nil
}

// --- lists ---
// List mutations are not WAL-logged: collection durability is intentionally
// volatile, per spec — lists and sets rebuild empty on restart.

func (e *Engine) LPush(key string, value []byte) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	n, err := e.store.LPush(key, value)
	return n, classifyStoreErr(err)
}

func (e *Engine) RPush(key string, value []byte) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	n, err := e.store.RPush(key, value)
	return n, classifyStoreErr(err)
}

func (e *Engine) LPop(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	v, found := e.store.LPop(key)
	if !found {
		return nil, ErrNotFound
	}
	return v, nil
}

func (e *Engine) RPop(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	v, found := e.store.RPop(key)
	if !found {
		return nil, ErrNotFound
	}
	return v, nil
}

func (e *Engine) LRange(key string, start, stop int) ([][]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return e.store.LRange(key, start, stop), nil
}

func (e *Engine) LLen(key string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	return e.store.LLen(key), nil
}

// --- sets ---

func (e *Engine) SAdd(key string, member []byte) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	ok, err := e.store.SAdd(key, member)
	return ok, classifyStoreErr(err)
}

func (e *Engine) SRem(key string, member []byte) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	return e.store.SRem(key, member), nil
}

func (e *Engine) SIsMember(key string, member []byte) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	return e.store.SIsMember(key, member), nil
}

func (e *Engine) SMembers(key string) ([][]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return e.store.SMembers(key), nil
}

func (e *Engine) SCard(key string) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	return e.store.SCard(key), nil
}

// --- lifecycle ---

// Flush forces any buffered WAL records to disk regardless of sync policy.
func (e *Engine) Flush() error {
	if err := e.wal.Flush(); err != nil {
		return ioErrorf("flush", err)
	}
	return nil
}

// Compact rewrites the WAL to contain exactly one PUT per live string key,
// dropping superseded PUTs and tombstoned DELs. List and set state is not
// part of the WAL and is unaffected.
func (e *Engine) Compact() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.store.SnapshotCompressed()
	active := make([]wal.Record, len(snap))
	for i, kv := range snap {
		active[i] = wal.Record{Op: wal.OpPut, Key: kv.Key, Value: kv.Value}
	}
	if err := e.wal.Compact(active); err != nil {
		return ioErrorf("compact", err)
	}
	return nil
}

// GetStats reports the engine's point-in-time counters.
func (e *Engine) GetStats() Stats {
	s := e.store.GetStats()
	return Stats{
		KeyCount:        s.KeyCount,
		ListCount:       s.ListCount,
		SetCount:        s.SetCount,
		RawBytes:        s.RawBytes,
		CompressedBytes: s.CompressedBytes,
		TotalOps:        s.TotalOps,
		Hits:            s.Hits,
		Misses:          s.Misses,
		Expired:         s.Expired,
		MedianValueSize: s.MedianValueSize,
		P99ValueSize:    s.P99ValueSize,
	}
}

// WritePrometheus writes the engine's counters and gauges in Prometheus
// exposition format to w. Gauges were registered in Open with callbacks that
// read the store directly, so only the cumulative counters need refreshing
// here before the set is serialized.
func (e *Engine) WritePrometheus(w io.Writer) {
	s := e.GetStats()
	e.metrics.GetOrCreateCounter("titankv_raw_bytes_total").Set(s.RawBytes)
	e.metrics.GetOrCreateCounter("titankv_compressed_bytes_total").Set(s.CompressedBytes)
	e.metrics.GetOrCreateCounter("titankv_ops_total").Set(s.TotalOps)
	e.metrics.GetOrCreateCounter("titankv_hits_total").Set(s.Hits)
	e.metrics.GetOrCreateCounter("titankv_misses_total").Set(s.Misses)
	e.metrics.GetOrCreateCounter("titankv_expired_total").Set(s.Expired)
	e.metrics.WritePrometheus(w)
}

func convertKVs(in []store.KV) []KV {
	out := make([]KV, len(in))
	for i, kv := range in {
		out[i] = KV{Key: kv.Key, Value: kv.Value}
	}
	return out
}

func classifyStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrWrongType) {
		return ErrWrongType
	}
	if errors.Is(err, compressor.ErrTooLarge) {
		return ErrDecompressionTooLarge
	}
	return wrapError(KindDecompressionError, "store", err)
}
