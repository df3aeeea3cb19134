package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Save credentials from a .env file",
	Long: `Validates that the file defines API_KEY and AGENT_ID and copies it to
~/.assistant_vocal_config. The existing configuration is left untouched when
the file is invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := defaultStore()
		if err != nil {
			return err
		}
		creds, err := store.Import(args[0])
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Credentials for agent %s saved to %s\n", creds.AgentID, store.Path())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
