package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BradenHooton/bruteguard/internal/app"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply or inspect ledger schema migrations",
		Example:   "  bruteguard migrate up\n  DB_DRIVER=sqlite bruteguard migrate status",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if err := app.Migrate(cmd.Context(), &cfg.Database, logger, command); err != nil {
				return fmt.Errorf("migrate %s: %w", command, err)
			}
			return nil
		},
	}
}
