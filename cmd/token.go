package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/rangelog/internal/auth"
)

var tokenTeam string

var tokenCmd = &cobra.Command{
	Use:   "token [owner-id]",
	Short: "Issue a bearer token for the REST API",
	Long: `Issue a bearer token for the REST API, signed with auth.jwt_secret and
valid for auth.token_ttl. Without <owner-id>, the token is issued for the
configured owner_id.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return tokenRun(optionalArg(args))
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenTeam, "team", "", "Team id claim (default: team_id from config)")
	rootCmd.AddCommand(tokenCmd)
}

func tokenRun(owner string) error {
	secret := viper.GetString("auth.jwt_secret")
	if secret == "" {
		return fmt.Errorf("auth.jwt_secret is not set: configure it or export RANGELOG_AUTH_JWT_SECRET")
	}
	if owner == "" {
		owner = viper.GetString("owner_id")
	}
	if owner == "" {
		return fmt.Errorf("no owner: pass <owner-id> or set owner_id")
	}
	team := tokenTeam
	if team == "" {
		team = viper.GetString("team_id")
	}

	token, err := auth.NewVerifier(secret).Issue(owner, team, viper.GetDuration("auth.token_ttl"))
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(ui.Out, token)
	return nil
}
