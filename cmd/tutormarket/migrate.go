package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/tutormarket/internal/domain/rules"
	"github.com/okian/tutormarket/pkg/logger"
)

func newMigrateCommand(env *runtimeEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema and seed the default base-price rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := env.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return err
			}
			n, err := store.SeedRules(ctx, rules.Defaults())
			if err != nil {
				return err
			}
			env.log.Info(ctx, "migration complete", logger.Int64("rules_inserted", n))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema migrated, %d base-price rules inserted\n", n)
			return err
		},
	}
}
