package cmd

import (
	"github.com/spf13/cobra"
)

// migrateSQLCmd represents the migrate sql command
var migrateSQLCmd = &cobra.Command{
	Use:   "sql [database-url]",
	Short: "Create SQL schemas and apply migration plans",
	Run:   cmdHandler.Migration.MigrateSQL,
}

func init() {
	migrateSQLCmd.Flags().Bool("down", false, "roll back the migrations")
	migrateSQLCmd.Flags().String("dir", "db/migrations", "directory of the migration files")
	migrateCmd.AddCommand(migrateSQLCmd)
}
