package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for sitemirror.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitemirror",
		Short: "Mirror a Webflow site for offline or static hosting",
		Long: `sitemirror crawls a published Webflow site from a seed URL, downloads every
page and asset of the site (including assets served from the Webflow CDN),
and rewrites all references so that the copy works from local files.

Failures of single URLs never stop a run; they are listed in the summary
and kept in the run history.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress logging and the summary")

	cmd.AddCommand(NewMirrorCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// boolFlag reads a flag from the command or, for global flags, its root.
func boolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}
