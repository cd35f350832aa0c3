package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	jwttoken "claimreg/internal/jwt_token"
	id "claimreg/pkg/domain"
)

func newTokenCmd(v *viper.Viper) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <account>",
		Short: "Mint a bearer token for an account",
		Long:  `Signs a token with JWT_SIGNING_KEY. Intended for development servers.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := id.ParseAccountID(args[0])
			if err != nil {
				return err
			}
			key := v.GetString(keySigningKey)
			if key == "" {
				return errors.New("JWT_SIGNING_KEY is required to mint tokens")
			}
			svc := jwttoken.NewJWTService(key, v.GetString(keyIssuer), v.GetString(keyAudience))
			token, err := svc.GenerateAccessToken(account, ttl)
			if err != nil {
				return fmt.Errorf("mint token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

func newCreateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "create <fingerprint>",
		Short: "Claim a fingerprint for the token's account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := id.ParseFingerprint(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd, v)
			defer cancel()
			resp, err := newClient(v).Create(ctx, fp)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
}

func newRemoveCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <fingerprint>",
		Aliases: []string{"revoke"},
		Short:   "Revoke a claim owned by the token's account",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := id.ParseFingerprint(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd, v)
			defer cancel()
			if err := newClient(v).Remove(ctx, fp); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", fp)
			return err
		},
	}
}

func newTransferCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <fingerprint> <new-owner>",
		Short: "Hand a claim to another account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := id.ParseFingerprint(args[0])
			if err != nil {
				return err
			}
			newOwner, err := id.ParseAccountID(args[1])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd, v)
			defer cancel()
			resp, err := newClient(v).Transfer(ctx, fp, newOwner)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
}

func newGetCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "get <fingerprint>",
		Short: "Show the claim on a fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := id.ParseFingerprint(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd, v)
			defer cancel()
			resp, err := newClient(v).Get(ctx, fp)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
}

func newListCmd(v *viper.Viper) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list <owner>",
		Short: "List claims held by an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := id.ParseAccountID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd, v)
			defer cancel()
			resp, err := newClient(v).ListByOwner(ctx, owner, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of claims (server default when 0)")
	return cmd
}

func requestContext(cmd *cobra.Command, v *viper.Viper) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, v.GetDuration(keyTimeout))
}
