package command

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"sidebridge/cmd/sidepanel/command/state"
	"sidebridge/internal/bridge"
	"sidebridge/internal/config"
	"sidebridge/internal/middleware/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage sender tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Sign a sender token with the background's SENDER_SECRET",
	Long: `Sign a sender token locally. The secret comes from --secret or from the
same SENDER_SECRET setting the background reads (.env, CONFIG_FILE or env).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		if secret == "" {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			secret = cfg.SenderSecret
		}
		if secret == "" {
			return fmt.Errorf("no secret: pass --secret or set SENDER_SECRET")
		}

		id, _ := cmd.Flags().GetString("id")
		surface, _ := cmd.Flags().GetString("surface")
		origin, _ := cmd.Flags().GetString("origin")
		tabID, _ := cmd.Flags().GetInt("tab-id")
		tabURL, _ := cmd.Flags().GetString("tab-url")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		save, _ := cmd.Flags().GetBool("save")

		sender := bridge.Sender{ID: id, Surface: surface, Origin: origin}
		if tabID != 0 || tabURL != "" {
			sender.Tab = &bridge.TabInfo{ID: tabID, URL: tabURL}
		}
		signed, err := auth.NewTokenService(secret, ttl).Issue(sender)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !save {
			fmt.Fprintln(out, signed)
			return nil
		}
		if err := state.SaveToken(signed); err != nil {
			return fmt.Errorf("failed to save token to keyring: %w", err)
		}
		color.New(color.FgGreen).Fprintf(out, "✔ Token for %s saved to the system keyring\n", id)
		return nil
	},
}

var tokenForgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Remove the saved sender token from the keyring",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := state.DeleteToken(); err != nil {
			return fmt.Errorf("failed to remove token from keyring: %w", err)
		}
		color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "✔ Saved token removed")
		return nil
	},
}

var useCmd = &cobra.Command{
	Use:   "use",
	Short: "Save the current connection flags as defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := settings(cmd)
		if err != nil {
			return err
		}
		if err := state.Save(stateFile, &s); err != nil {
			return err
		}
		if cmd.Flags().Changed("token") {
			if err := state.SaveToken(s.Token); err != nil {
				return fmt.Errorf("failed to save token to keyring: %w", err)
			}
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✔ Using %s channel (saved to %s)\n", s.Channel, stateFile)
		return nil
	},
}

func init() {
	flags := tokenIssueCmd.Flags()
	flags.String("secret", "", "signing secret (defaults to SENDER_SECRET)")
	flags.String("id", "sidepanel-cli", "sender id")
	flags.String("surface", "sidepanel", "surface name")
	flags.String("origin", "", "sender origin")
	flags.Int("tab-id", 0, "attached tab id")
	flags.String("tab-url", "", "attached tab URL")
	flags.Duration("ttl", 0, "token lifetime, 0 for no expiry")
	flags.Bool("save", false, "store the token in the system keyring")

	tokenCmd.AddCommand(tokenIssueCmd, tokenForgetCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(useCmd)
}
