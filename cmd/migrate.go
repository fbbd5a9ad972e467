package cmd

import (
	"errors"

	"github.com/stacklaunch-io/ms-go-accounts/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  `Apply (or with --down, roll back) the SQL migrations in the migrations directory.`,
	Run:   runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back all migrations")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	m, err := migrate.New("file://"+cfg.MigrationsPath, "mysql://"+cfg.DSN())
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize migrations")
	}
	defer m.Close()

	if migrateDown {
		err = m.Down()
	} else {
		err = m.Up()
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logrus.Info("Migrations already up to date")
		return
	}
	if err != nil {
		logrus.WithError(err).Fatal("Migration failed")
	}
	logrus.Info("Migrations applied")
}
