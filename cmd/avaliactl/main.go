package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "avaliactl",
		Short: "Administrative tooling for the Avalia server",
		Long: `avaliactl performs maintenance tasks against an Avalia deployment:
hashing passwords, seeding the first administrator and minting or
inspecting access tokens with the configured signing key.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the server config file")

	rootCmd.AddCommand(
		hashPasswordCmd(),
		bootstrapAdminCmd(&configPath),
		tokenCmd(&configPath),
	)
	return rootCmd
}
