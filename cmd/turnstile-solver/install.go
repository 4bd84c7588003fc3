package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"turnstile-solver/solver"
)

func installCmd() *cobra.Command {
	var (
		browsers []string
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the Playwright driver and browsers",
		Long: `Install downloads the Playwright driver and the requested browsers.
Only Chromium is needed for the default engine; the chrome and msedge
browser types use the locally installed Chrome or Edge instead.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := solver.Install(browsers, !quiet); err != nil {
				return fmt.Errorf("install playwright: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Playwright driver and browsers installed")
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&browsers, "browsers", []string{"chromium"}, "Browsers to install")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress installer output")
	return cmd
}
