package command

// root.go defines the root command and the global connection flags.

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sidebridge/cmd/sidepanel/command/state"
	"sidebridge/internal/bridge"
	httpapi "sidebridge/internal/microservices/http-api"
	"sidebridge/internal/microservices/tcp"
	"sidebridge/internal/microservices/websocket"
)

const (
	channelHTTP = "http"
	channelTCP  = "tcp"
	channelWS   = "ws"
)

var (
	channelName string
	apiURL      string
	tcpAddr     string
	token       string
	stateFile   string
	timeout     time.Duration
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "sidepanel",
	Short: "sidepanel - talk to a running sidebridge background",
	Long: `sidepanel is a terminal surface for the sidebridge background. It sends
messages over HTTP, TCP or a websocket port and renders the responses:
- send raw envelopes of any type
- check background health
- manage tasks
- watch storage change events

Use "sidepanel command -h" to see all available commands.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&channelName, "channel", channelHTTP, "channel to the background: http, tcp or ws")
	flags.StringVar(&apiURL, "api", "http://localhost:8080", "background HTTP URL")
	flags.StringVar(&tcpAddr, "tcp", "localhost:8081", "background TCP address")
	flags.StringVar(&token, "token", "", "sender token (defaults to the one saved in the keyring)")
	flags.StringVar(&stateFile, "state", state.DefaultPath(), "saved settings file")
	flags.DurationVar(&timeout, "timeout", bridge.DefaultRequestTimeout, "request timeout")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log transport events to stderr")
}

func cliLogger() *slog.Logger {
	level := slog.LevelError
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// settings merges saved state under explicitly set flags. The saved token
// comes from the keyring; an unavailable keyring means no saved token.
func settings(cmd *cobra.Command) (state.CLIState, error) {
	saved, err := state.Load(stateFile)
	if err != nil {
		return state.CLIState{}, fmt.Errorf("failed to load %s: %w", stateFile, err)
	}
	out := state.CLIState{Channel: channelName, APIURL: apiURL, TCPAddr: tcpAddr, Token: token}
	flags := cmd.Flags()
	if !flags.Changed("channel") && saved.Channel != "" {
		out.Channel = saved.Channel
	}
	if !flags.Changed("api") && saved.APIURL != "" {
		out.APIURL = saved.APIURL
	}
	if !flags.Changed("tcp") && saved.TCPAddr != "" {
		out.TCPAddr = saved.TCPAddr
	}
	if !flags.Changed("token") {
		savedToken, err := state.LoadToken()
		if err != nil {
			cliLogger().Warn("keyring_unavailable", "error", err)
		} else if savedToken != "" {
			out.Token = savedToken
		}
	}
	return out, nil
}

// openCaller builds a transport over the selected channel. release frees
// any long-lived connection.
func openCaller(cmd *cobra.Command) (caller bridge.Caller, release func(), err error) {
	s, err := settings(cmd)
	if err != nil {
		return nil, nil, err
	}

	var channel bridge.Channel
	release = func() {}
	switch s.Channel {
	case channelHTTP:
		channel = httpapi.NewChannel(s.APIURL, s.Token)
	case channelTCP:
		channel = tcp.NewChannel(s.TCPAddr, s.Token)
	case channelWS:
		port, err := websocket.DialPort(commandContext(cmd), wsURL(s.APIURL), s.Token, nil)
		if err != nil {
			return nil, nil, err
		}
		channel = port
		release = func() { port.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown channel %q", s.Channel)
	}
	return bridge.NewTransport(channel, bridge.WithRequestTimeout(timeout), bridge.WithTransportLogger(cliLogger())), release, nil
}

func wsURL(api string) string {
	api = strings.TrimRight(api, "/")
	switch {
	case strings.HasPrefix(api, "https://"):
		return "wss://" + strings.TrimPrefix(api, "https://") + "/ws"
	case strings.HasPrefix(api, "http://"):
		return "ws://" + strings.TrimPrefix(api, "http://") + "/ws"
	default:
		return api + "/ws"
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
