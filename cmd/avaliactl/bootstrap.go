package main

import (
	"fmt"

	"github.com/flavalia/avalia/internal/account"
	"github.com/flavalia/avalia/internal/auth"
	"github.com/flavalia/avalia/internal/platform/config"
	"github.com/flavalia/avalia/internal/platform/database"
	"github.com/spf13/cobra"
)

func bootstrapAdminCmd(configPath *string) *cobra.Command {
	var seed account.AdminSeed
	var migrate bool

	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the first administrator if none exists",
		Long: `Create an ADMIN principal unless one is already stored. Flags override
the auth.bootstrap section of the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("database.url is required")
			}

			b := cfg.Auth.Bootstrap
			merged := account.AdminSeed{
				LoginName:   firstNonEmpty(seed.LoginName, b.Login),
				Password:    firstNonEmpty(seed.Password, b.Password),
				Email:       firstNonEmpty(seed.Email, b.Email),
				DisplayName: firstNonEmpty(seed.DisplayName, b.Name),
			}
			if merged.LoginName == "" {
				return fmt.Errorf("a login name is required")
			}

			ctx := cmd.Context()
			if migrate {
				if err := database.RunMigrations(cfg.Database.URL, "file://"+cfg.Database.MigrationsPath); err != nil {
					return fmt.Errorf("running migrations: %w", err)
				}
			}

			pool, err := database.Connect(ctx, cfg.Database.URL, 2)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer pool.Close()

			hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
			created, err := account.EnsureAdmin(ctx, pool, account.NewUserStore(), hasher, merged)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if created {
				fmt.Fprintf(out, "administrator %q created\n", merged.LoginName)
			} else {
				fmt.Fprintln(out, "an administrator already exists; nothing to do")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&seed.LoginName, "login", "", "Administrator login name")
	cmd.Flags().StringVar(&seed.Password, "password", "", "Administrator password")
	cmd.Flags().StringVar(&seed.Email, "email", "", "Administrator email")
	cmd.Flags().StringVar(&seed.DisplayName, "name", "", "Administrator display name")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply pending migrations first")
	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
