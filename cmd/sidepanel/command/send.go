package command

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sidebridge/internal/bridge"
)

var sendCmd = &cobra.Command{
	Use:   "send [type] [json-data]",
	Short: "Send a raw message envelope",
	Long: `Send a message of any type and print the response. The optional second
argument is the JSON payload, for example:

  sidepanel send TASKS_GET_BY_ID '{"id":"task_1"}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload any
		if len(args) == 2 {
			if !json.Valid([]byte(args[1])) {
				return fmt.Errorf("payload is not valid JSON")
			}
			payload = json.RawMessage(args[1])
		}

		caller, release, err := openCaller(cmd)
		if err != nil {
			return err
		}
		defer release()

		resp := caller.Call(commandContext(cmd), args[0], payload)
		PrintResponse(cmd.OutOrStdout(), resp)
		if !resp.Success {
			return fmt.Errorf("%s failed", args[0])
		}
		return nil
	},
}

// PrintResponse renders resp with a colored status line and indented data.
func PrintResponse(w io.Writer, resp bridge.Response) {
	if resp.Success {
		color.New(color.FgGreen).Fprint(w, "✔ success")
	} else {
		color.New(color.FgRed).Fprintf(w, "✘ %s", resp.Error)
	}
	if resp.Status != 0 {
		fmt.Fprintf(w, " (status %d)", resp.Status)
	}
	fmt.Fprintln(w)

	if resp.Message != "" {
		color.New(color.FgYellow).Fprintln(w, resp.Message)
	}
	if resp.HasData() {
		var raw json.RawMessage
		if err := resp.DecodeData(&raw); err == nil {
			pretty, err := json.MarshalIndent(raw, "", "  ")
			if err == nil {
				fmt.Fprintln(w, string(pretty))
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
