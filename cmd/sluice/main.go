package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sluice",
	Short: "Sluice — ads data reliability core",
	Long:  "Sluice sits between operators and a rate-limited ads platform API, providing paced and policy-gated upstream access, durable hourly performance snapshots, and constraint-aware budget redistribution.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: configs/sluice.yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
