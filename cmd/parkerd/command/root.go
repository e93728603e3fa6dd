// Package command provides the parkerd CLI. The root command runs the HTTP
// server; sub-commands run a single feed import or only the schema
// migration.
//
//	./parkerd [-c config/config.yaml]          # start web server
//	./parkerd import [-c config/config.yaml]   # one import cycle
//	./parkerd migrate [-c config/config.yaml]  # AutoMigrate and exit
package command

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"parking-finder-backend/config"
	"parking-finder-backend/internal/db"
	"parking-finder-backend/internal/logger"
)

const defaultConfigPath = "./config/config.yaml"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "parkerd",
	Short: "Parking availability finder backend",
	Long: `parkerd serves the parking finder API: nearest parking lots with
their restriction windows, availability reports, accounts with report
credits and web-push notifications for lots that become available.`,
	SilenceUsage: true,
	RunE:         serve,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadEnv, fixConfigPath)
	rootCmd.PersistentFlags().StringVarP(
		&cfgPath, "config", "c", "", "config file path (default $CONFIG_PATH or "+defaultConfigPath+")",
	)
	rootCmd.AddCommand(importCmd, migrateCmd)
}

func loadEnv() {
	_ = godotenv.Load(".env")
}

// fixConfigPath picks the -c flag, then CONFIG_PATH, then the default path.
func fixConfigPath() {
	if cfgPath != "" {
		return
	}
	if p, ok := os.LookupEnv("CONFIG_PATH"); ok && p != "" {
		cfgPath = p
		return
	}
	cfgPath = defaultConfigPath
}

// setup loads the configuration, installs the logger and opens the
// database with the schema migrated.
func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config.Load(%q): %w", cfgPath, err)
	}
	logger.Setup(cfg.Log)
	slog.Info("configuration loaded", "path", cfgPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing database: %w", err)
	}
	return cfg, gormDB, nil
}
