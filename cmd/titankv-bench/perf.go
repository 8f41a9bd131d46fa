package main

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"titankv"
)

var (
	perfKeyPrefix    = "__bench"
	perfKeySpread    = 1000
	perfLargeValueKB = 100
	perfSkip         []string
)

var perfCmd = &cobra.Command{
	Use:     "perf",
	Short:   "run load benchmarks against a titankv data directory",
	PreRunE: processPerfConfig,
	RunE:    runPerf,
}

func init() {
	perfCmd.Flags().Int("keys", 1000, "how many distinct keys to use")
	perfCmd.Flags().Int("large-value-size", 100, "size in KB of the value used by the set-large benchmark")
	perfCmd.Flags().String("skip", "", "comma-separated benchmarks to skip (set,set-large,get,delete,mixed)")
	perfCmd.Flags().String("csv", "", "optional path to write results as CSV")
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	perfKeySpread = viper.GetInt("keys")
	perfLargeValueKB = viper.GetInt("large-value-size")
	if skip := viper.GetString("skip"); skip != "" {
		perfSkip = splitCSV(skip)
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func shouldSkip(name string) bool {
	for _, s := range perfSkip {
		if s == name {
			return true
		}
	}
	return false
}

func keysFor(prefix string) func(int) string {
	keys := make([]string, perfKeySpread)
	for i := range keys {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}
	return func(i int) string { return keys[i%perfKeySpread] }
}

func runPerf(cmd *cobra.Command, _ []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	syncMode, _ := cmd.Flags().GetInt("sync")
	compressionLevel, _ := cmd.Flags().GetInt("compression-level")

	engine, err := titankv.Open(dir, titankv.Options{
		Sync:             titankv.SyncMode(syncMode),
		CompressionLevel: compressionLevel,
	})
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer engine.Close()

	fmt.Println("titankv-bench")
	fmt.Printf("data dir: %s\n", dir)
	fmt.Println()

	results := make(map[string]testing.BenchmarkResult)

	results["set"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("set") {
			return
		}
		getKey := keysFor("set")
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if err := engine.Put(getKey(i), []byte("bench"), 0); err != nil {
				b.Logf("set error: %v", err)
			}
		}
	})
	printResult("set", results["set"])

	results["set-large"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("set-large") {
			return
		}
		largeValue := make([]byte, perfLargeValueKB*1024)
		getKey := keysFor("set-large")
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if err := engine.Put(getKey(i), largeValue, 0); err != nil {
				b.Logf("set-large error: %v", err)
			}
		}
	})
	printResult("set-large", results["set-large"])

	results["get"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("get") {
			return
		}
		getKey := keysFor("get")
		for i := 0; i < perfKeySpread; i++ {
			_ = engine.Put(getKey(i), []byte("bench"), 0)
		}
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := engine.Get(getKey(i)); err != nil && err != titankv.ErrNotFound {
				b.Logf("get error: %v", err)
			}
		}
	})
	printResult("get", results["get"])

	results["delete"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("delete") {
			return
		}
		getKey := keysFor("delete")
		for i := 0; i < perfKeySpread; i++ {
			_ = engine.Put(getKey(i), []byte("bench"), 0)
		}
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, err := engine.Del(getKey(i)); err != nil {
				b.Logf("delete error: %v", err)
			}
		}
	})
	printResult("delete", results["delete"])

	results["mixed"] = testing.Benchmark(func(b *testing.B) {
		if shouldSkip("mixed") {
			return
		}
		getKey := keysFor("mixed")
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			key := getKey(i)
			switch i % 4 {
			case 0:
				_ = engine.Put(key, []byte("bench"), 0)
			case 1:
				_, _ = engine.Get(key)
			case 2:
				_, _ = engine.Del(key)
			case 3:
				_, _ = engine.Has(key)
			}
		}
	})
	printResult("mixed", results["mixed"])

	stats := engine.GetStats()
	fmt.Println()
	fmt.Printf("final stats: keys=%d ops=%d hits=%d misses=%d raw=%d compressed=%d\n",
		stats.KeyCount, stats.TotalOps, stats.Hits, stats.Misses, stats.RawBytes, stats.CompressedBytes)

	if csvPath := viper.GetString("csv"); csvPath != "" {
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		fmt.Printf("results written to %s\n", csvPath)
	}
	return nil
}

func printResult(name string, result testing.BenchmarkResult) {
	if result.N == 0 {
		fmt.Printf("%-16sskipped\n", name)
		return
	}
	nsPerOp := math.Max(float64(result.NsPerOp()), 1)
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	fmt.Printf("%-16s%.0fns/op (%s/op)\t%.0f ops/sec\n", name, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

func writeResultsToCSV(path string, results map[string]testing.BenchmarkResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"Test", "NsPerOp", "OpsPerSec", "Skipped"}); err != nil {
		return err
	}
	for name, result := range results {
		skipped := "false"
		var nsPerOp, opsPerSec float64
		if result.N == 0 {
			skipped = "true"
		} else {
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}
		row := []string{
			name,
			strconv.FormatFloat(nsPerOp, 'f', 0, 64),
			strconv.FormatFloat(opsPerSec, 'f', 0, 64),
			skipped,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
