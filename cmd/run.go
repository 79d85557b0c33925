// File: cmd/run.go
package cmd

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		maxSteps     int
		noScripts    bool
		headful      bool
		artifactsDir string
	)

	runCmd := &cobra.Command{
		Use:   "run <goal>",
		Short: "Run one automation and print the result as JSON",
		Example: `  crust run "search for cats on https://example.com"
  crust run --max-steps 5 --no-scripts "open the pricing page"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("max-steps") {
				a.cfg.SetAutomationMaxSteps(maxSteps)
			}
			if noScripts {
				a.cfg.SetAutomationAllowScripts(false)
			}
			if headful {
				a.cfg.SetBrowserHeadless(false)
			}
			if flags.Changed("artifacts-dir") {
				a.cfg.SetArtifactsDir(artifactsDir)
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			comps, err := a.initializeComponents(ctx)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := shutdownContext()
				defer cancel()
				comps.Shutdown(shutdownCtx)
			}()

			goal := strings.Join(args, " ")
			result, runErr := comps.runner.Run(ctx, goal)
			if result != nil {
				enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					a.logger.Error("Failed to write result.", zap.Error(err))
				}
			}
			return runErr
		},
	}
	runCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "step budget (overrides automation.max_steps)")
	runCmd.Flags().BoolVar(&noScripts, "no-scripts", false, "disable the executeScript action")
	runCmd.Flags().BoolVar(&headful, "headful", false, "show the browser window")
	runCmd.Flags().StringVar(&artifactsDir, "artifacts-dir", "", "directory for diagnostic screenshots (overrides artifacts.dir)")
	return runCmd
}
