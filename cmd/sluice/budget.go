package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sluicehq/sluice/internal/audit"
	"github.com/sluicehq/sluice/internal/budget"
	"github.com/sluicehq/sluice/internal/config"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Preview or apply budget redistribution plans",
}

var budgetPreviewCmd = &cobra.Command{
	Use:   "preview <planID>",
	Short: "Compute a redistribution without applying it",
	Args:  cobra.ExactArgs(1),
	RunE:  runBudgetPreview,
}

var budgetApplyCmd = &cobra.Command{
	Use:   "apply <planID>",
	Short: "Compute and submit a redistribution",
	Args:  cobra.ExactArgs(1),
	RunE:  runBudgetApply,
}

func init() {
	budgetCmd.AddCommand(budgetPreviewCmd)
	budgetCmd.AddCommand(budgetApplyCmd)
	rootCmd.AddCommand(budgetCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func buildPreview(planID string) (*config.Config, *budget.Engine, *budget.Preview, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, nil, err
	}

	plan, err := budget.NewPlanStore(cfg.Plans.Path).Get(planID)
	if err != nil {
		return nil, nil, nil, err
	}

	client, err := newUpstreamClient(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	engine := newEngine(newGovernor(cfg), client, loc)
	preview, err := engine.BuildPreview(context.Background(), plan)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, engine, preview, nil
}

func runBudgetPreview(cmd *cobra.Command, args []string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	_, _, preview, err := buildPreview(args[0])
	if err != nil {
		return err
	}
	return printJSON(preview)
}

func runBudgetApply(cmd *cobra.Command, args []string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	cfg, engine, preview, err := buildPreview(args[0])
	if err != nil {
		return err
	}

	auditLog, err := audit.New(cfg.Audit.DBPath)
	if err != nil {
		return err
	}
	defer auditLog.Close()
	engine.SetRecorder(auditLog)

	result, err := engine.Apply(context.Background(), preview)
	if err != nil {
		return err
	}
	return printJSON(result)
}
