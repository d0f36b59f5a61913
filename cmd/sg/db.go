package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/stenograph/internal/db"
	"github.com/zulandar/stenograph/internal/settings"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var (
		configPath string
		tenantID   uint
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Stenograph database",
		Long:  "Migrates all tables and seeds default settings for the tenant.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath, tenantID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Stenograph config file")
	cmd.Flags().UintVarP(&tenantID, "tenant", "t", 1, "tenant to seed settings for")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string, tenantID uint) error {
	out := cmd.OutOrStdout()

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	if err := db.SeedSettings(gormDB, tenantID, settings.Defaults()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded default settings for tenant %d\n", tenantID)
	return nil
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run schema migrations without seeding",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(gormDB); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables\n", len(db.AllModels()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Stenograph config file")
	return cmd
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		tenantID   uint
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop all tables and re-initialize",
		Long:  "Destroys all Stenograph data. Archived request bodies on disk are not touched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}

			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			if err := gormDB.Migrator().DropTable(db.AllModels()...); err != nil {
				return fmt.Errorf("drop tables: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Dropped all tables")

			return runDBInit(cmd, configPath, tenantID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Stenograph config file")
	cmd.Flags().UintVarP(&tenantID, "tenant", "t", 1, "tenant to seed settings for")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}
