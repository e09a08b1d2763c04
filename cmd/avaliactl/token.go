package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flavalia/avalia/internal/auth"
	"github.com/flavalia/avalia/internal/platform/config"
	"github.com/spf13/cobra"
)

func tokenCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint or inspect access tokens",
	}
	cmd.AddCommand(tokenMintCmd(configPath), tokenInspectCmd(configPath))
	return cmd
}

func tokenMintCmd(configPath *string) *cobra.Command {
	var login, role string
	var userID int64

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint an access token without a password check",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := loadTokenService(*configPath)
			if err != nil {
				return err
			}
			token, err := tokens.Mint(login, auth.Role(strings.ToUpper(role)), userID)
			if err != nil {
				return fmt.Errorf("minting token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&login, "login", "", "Login name (sub claim)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleTeacher), "ADMIN or TEACHER")
	cmd.Flags().Int64Var(&userID, "uid", 0, "Principal id (uid claim)")
	_ = cmd.MarkFlagRequired("login")
	_ = cmd.MarkFlagRequired("uid")
	return cmd
}

func tokenInspectCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <token>",
		Short: "Verify a token and print its identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := loadTokenService(*configPath)
			if err != nil {
				return err
			}
			identity, err := tokens.Verify(strings.TrimPrefix(args[0], "Bearer "))
			if err != nil {
				return fmt.Errorf("token rejected: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(identity)
		},
	}
}

func loadTokenService(configPath string) (*auth.TokenService, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return auth.NewTokenService(
		cfg.Auth.JWT.SigningKey,
		cfg.Auth.JWT.Issuer,
		time.Duration(cfg.Auth.JWT.ExpiryMinutes)*time.Minute,
	), nil
}
