// Package main is the titankv-bench CLI: a small cobra program that opens
// an engine instance against a local data directory and drives
// testing.Benchmark load against it, the same shape as the teacher's
// "dkv kv perf" command but pointed at an in-process Engine instead of an
// RPC client.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "titankv-bench",
	Short: "benchmark a titankv data directory",
	Long: `titankv-bench opens a titankv engine against a data directory and runs
a battery of load benchmarks (set, get, delete, mixed) against it.`,
}

func init() {
	loadEnv()

	rootCmd.PersistentFlags().String("dir", "./titankv-bench-data", "data directory to open")
	rootCmd.PersistentFlags().Int("sync", 0, "wal sync policy: 0=always, 1=async, 2=none")
	rootCmd.PersistentFlags().Int("compression-level", 3, "zstd compression level")

	rootCmd.AddCommand(perfCmd)
}

// loadEnv mirrors the teacher's InitClientConfig: load .env/.env.local if
// present, bind TITANKV_-prefixed environment variables into viper.
func loadEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("titankv")
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
