package commands

import (
	"errors"
	"fmt"

	"github.com/arnavshah/coordination-api/internal/config"
	"github.com/arnavshah/coordination-api/pkg/auth"
	"github.com/spf13/cobra"
)

func newKeygenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen <userID>",
		Short: "Generate an HMAC signed API key",
		Long: `Generate an API key for userID signed with API_MASTER_SECRET.
The key is accepted by the server without being stored first; its usage
record is created on first use.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.APIMasterSecret == "" {
				return errors.New("API_MASTER_SECRET is not set")
			}
			key := auth.New(cfg.JWTSecret, cfg.APIMasterSecret).GenerateHMACKey(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "Generated Key for %s:\n%s\n", args[0], key)
			return nil
		},
	}
	return cmd
}
