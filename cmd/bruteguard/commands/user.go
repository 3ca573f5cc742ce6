package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BradenHooton/bruteguard/internal/app"
	"github.com/BradenHooton/bruteguard/internal/services"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage dashboard accounts",
	}
	cmd.AddCommand(newUserAddCmd())
	return cmd
}

func newUserAddCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:     "add <username>",
		Short:   "Create a dashboard account",
		Example: "  bruteguard user add alice --password 'Correct-Horse-9'",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("--password is required")
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			store, err := app.OpenStore(cmd.Context(), &cfg.Database, logger)
			if err != nil {
				return fmt.Errorf("opening ledger: %w", err)
			}
			defer func() { _ = store.Close() }()

			users := services.NewUserService(store.Ledger.Users, logger, nil)
			user, err := users.CreateUser(cmd.Context(), args[0], password, "cli")
			if err != nil {
				return fmt.Errorf("creating %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created account %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password for the new account")
	return cmd
}
