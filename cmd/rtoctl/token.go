package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rtodocs/internal/auth"
	"rtodocs/internal/config"
	"rtodocs/internal/model"
)

func tokenCmd(cfg *config.AppConfig) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for local testing",
		Long: `Sign an HS256 access token with JWT_SECRET.

Examples:
  rtoctl token --sub citizen-42 --role CITIZEN
  rtoctl token --sub officer-7 --role RTO_OFFICER --ttl 8h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Auth.JWTSecret == "" {
				return errors.New("JWT_SECRET is required")
			}
			r, err := model.ParseRole(role)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, ttl).Issue(subject, r)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "user id carried in the sub claim")
	cmd.Flags().StringVar(&role, "role", string(model.RoleCitizen), "CITIZEN, RTO_OFFICER, RTO_ADMIN, POLICE or AUDITOR")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to JWT_TOKEN_TTL_MIN)")
	_ = cmd.MarkFlagRequired("sub")

	return cmd
}
