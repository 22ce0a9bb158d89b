package command

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sidebridge/internal/bridge"
	"sidebridge/internal/client"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the background is up",
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, release, err := openCaller(cmd)
		if err != nil {
			return err
		}
		defer release()

		out := cmd.OutOrStdout()
		started := time.Now()
		health := client.Mount(commandContext(cmd), caller,
			client.Options{AutoLoad: bridge.TypeHealthCheck},
			func(s client.State[bridge.HealthStatus]) {
				if s.Loading {
					color.New(color.FgHiBlack).Fprintln(out, "checking background...")
				}
			})
		defer health.Unmount()
		health.Wait()

		snap := health.Snapshot()
		if snap.Error != "" {
			color.New(color.FgRed).Fprintf(out, "✘ background unreachable: %s\n", snap.Error)
			return fmt.Errorf("health check failed")
		}
		elapsed := time.Since(started).Round(time.Millisecond)
		if snap.Data == nil {
			color.New(color.FgGreen).Fprint(out, "✔ background answered")
			fmt.Fprintf(out, " without health details (%s round trip)\n", elapsed)
			return nil
		}
		at := time.UnixMilli(snap.Data.Timestamp)
		color.New(color.FgGreen).Fprintf(out, "✔ %s", snap.Data.Status)
		fmt.Fprintf(out, " at %s (%s round trip)\n", at.Format(time.RFC3339), elapsed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
