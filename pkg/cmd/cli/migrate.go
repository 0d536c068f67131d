package cli

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	colorable "github.com/mattn/go-colorable"
	"github.com/nsyszr/eventbroker/config"
	migrate "github.com/rubenv/sql-migrate"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// MigrationTable keeps track of the applied migrations.
const MigrationTable = "eventbroker_migrations"

type MigrateHandler struct {
	c *config.Config
}

func newMigrateHandler(c *config.Config) *MigrateHandler {
	return &MigrateHandler{c: c}
}

// databaseURL returns the url given as argument, or the configured one.
func (h *MigrateHandler) databaseURL(args []string, position int) string {
	if len(args) > position && args[position] != "" {
		return args[position]
	}
	if h.c.DatabaseURL == "memory" {
		return ""
	}
	return h.c.DatabaseURL
}

func (h *MigrateHandler) MigrateSQL(cmd *cobra.Command, args []string) {
	url := h.databaseURL(args, 0)
	if url == "" {
		fmt.Println(cmd.UsageString())
		os.Exit(2) // Return missing keyword or command
	}

	direction := migrate.Up
	if down, _ := cmd.Flags().GetBool("down"); down {
		direction = migrate.Down
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = "db/migrations"
	}

	log.SetLevel(log.DebugLevel)
	log.SetFormatter(&log.TextFormatter{
		ForceColors: true,
	})
	log.SetOutput(colorable.NewColorableStdout())

	log.Infof("Applying SQL migrations from %s...", dir)

	db, err := sqlx.Open("postgres", url)
	if err != nil {
		log.Errorf("An error occurred while connecting to SQL: %s", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Errorf("An error occurred while connecting to SQL: %s", err)
		os.Exit(1)
	}

	migrate.SetTable(MigrationTable)
	migrations := &migrate.FileMigrationSource{
		Dir: dir,
	}

	n, err := migrate.Exec(db.DB, "postgres", migrations, direction)
	if err != nil {
		log.Errorf("An error occurred while running the migrations: %s", err)
		os.Exit(1)
	}
	log.Infof("Migration successful! Applied a total of %d migrations.", n)
}
