package command

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sidebridge/internal/microservices/websocket"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print background events until interrupted",
	Long:  `Open a websocket port to the background and print every pushed event, such as STORAGE_CHANGED.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		port, err := websocket.DialPort(commandContext(cmd), wsURL(s.APIURL), s.Token, func(event string, data json.RawMessage) {
			color.New(color.FgYellow).Fprintf(out, "%s %s", time.Now().Format("15:04:05"), event)
			fmt.Fprintf(out, " %s\n", string(data))
		})
		if err != nil {
			return err
		}
		defer port.Close()
		fmt.Fprintln(out, "Watching for events (Ctrl+C to exit)")

		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		defer signal.Stop(interrupt)

		select {
		case <-interrupt:
		case <-port.Done():
			color.New(color.FgRed).Fprintln(out, "background closed the port")
		case <-commandContext(cmd).Done():
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
