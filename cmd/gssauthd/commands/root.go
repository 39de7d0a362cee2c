// Package commands implements the gssauthd CLI.
package commands

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "gssauthd",
	Short: "gssauthd - RPCSEC_GSS client credential engine",
	Long: `gssauthd mediates between an RPC transport and an external
keying daemon: it negotiates security contexts over an upcall pipe, caches
them per user, and wraps/unwraps RPC call bodies under the negotiated
service level.

Use "gssauthd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it. Called
// once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/gssauth/config.yaml)")
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(versionCmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("gssauthd %s (commit: %s, built: %s)\n", Version, Commit, Date)
		return nil
	},
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
	os.Exit(1)
}
