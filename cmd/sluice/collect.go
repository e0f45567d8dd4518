package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sluicehq/sluice/internal/config"
)

var collectCmd = &cobra.Command{
	Use:   "collect <accountID> <date> <hour>",
	Short: "Run one collection pass for a single hour",
	Long:  "Runs a single idempotent collection pass for the given account, date (YYYY-MM-DD) and hour (0..23), and prints the resulting snapshot. An hour that is already terminal is returned as stored without an upstream call.",
	Args:  cobra.ExactArgs(3),
	RunE:  runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	hour, err := strconv.Atoi(args[2])
	if err != nil || hour < 0 || hour > 23 {
		return fmt.Errorf("hour must be 0..23, got %q", args[2])
	}

	client, err := newUpstreamClient(cfg)
	if err != nil {
		return err
	}
	gov := newGovernor(cfg)
	_, collector, err := newCollector(cfg, gov, client, loc)
	if err != nil {
		return err
	}

	snap, err := collector.CollectOnce(context.Background(), args[0], args[1], hour)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
