package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/d60-Lab/microblog/pkg/database"
)

func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := database.Migrate(a.DB); err != nil {
				return err
			}
			fmt.Println("migrated")
			return nil
		},
	}
}
