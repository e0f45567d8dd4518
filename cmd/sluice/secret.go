package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sluicehq/sluice/internal/auth"
	"github.com/sluicehq/sluice/internal/secrets"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Key and credential helpers",
}

var secretKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a token-sealing key",
	Long:  "Prints a fresh hex key for " + tokenKeyEnv + ". Configs written with a sealed upstream token can only be used where this key is present.",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := secrets.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	},
}

var secretSealCmd = &cobra.Command{
	Use:   "seal <token>",
	Short: "Seal an upstream token for use in a config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		box, err := secrets.NewBox(os.Getenv(tokenKeyEnv))
		if err != nil {
			return err
		}
		if box == nil {
			return fmt.Errorf("%s is not set", tokenKeyEnv)
		}
		sealed, err := box.Seal(args[0])
		if err != nil {
			return err
		}
		fmt.Println(sealed)
		return nil
	},
}

var secretHashKeyCmd = &cobra.Command{
	Use:   "hash-key <admin-key>",
	Short: "Hash an admin key for the auth.admin_key_hash config entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashKey(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	secretCmd.AddCommand(secretKeygenCmd)
	secretCmd.AddCommand(secretSealCmd)
	secretCmd.AddCommand(secretHashKeyCmd)
	rootCmd.AddCommand(secretCmd)
}
