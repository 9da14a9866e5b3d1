package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mathewtroy/candle/config"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables",
		Long: `Create the database tables.

Identity provider accounts always live in Postgres. The document table and
its change trigger are created only when STORE_BACKEND is postgres.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigFile)
			if err != nil {
				return err
			}

			dbConn, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer dbConn.Close()

			withDocuments := cfg.StoreBackend == config.BackendPostgres
			if err := dbConn.Migrate(cmd.Context(), withDocuments); err != nil {
				return err
			}

			result := map[string]any{"accounts": true, "documents": withDocuments}
			return render(cmd.OutOrStdout(), rootOpts, result, func(w io.Writer) {
				fmt.Fprintln(w, "Migrated auth accounts")
				if withDocuments {
					fmt.Fprintln(w, "Migrated document store")
				}
			})
		},
	}
}
