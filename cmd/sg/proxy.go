package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/stenograph/internal/models"
	"github.com/zulandar/stenograph/internal/proxy"
)

func newProxyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Manage forwarding proxies and their API keys",
	}

	cmd.AddCommand(newProxyCreateCmd())
	cmd.AddCommand(newProxyListCmd())
	cmd.AddCommand(newProxyDeleteCmd())
	return cmd
}

func newProxyCreateCmd() *cobra.Command {
	var (
		configPath string
		tenantID   uint
		name       string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a proxy and print its API key",
		Long:  "The API key is shown once, in full, at creation time; list only shows a masked prefix.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProxyCreate(cmd, configPath, tenantID, name)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Stenograph config file")
	cmd.Flags().UintVarP(&tenantID, "tenant", "t", 1, "owning tenant")
	cmd.Flags().StringVarP(&name, "name", "n", "", "proxy name (required)")
	cmd.MarkFlagRequired("name")
	return cmd
}

func runProxyCreate(cmd *cobra.Command, configPath string, tenantID uint, name string) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	key, err := proxy.GenerateAPIKey()
	if err != nil {
		return err
	}

	row := models.Proxy{TenantID: tenantID, Name: name, APIKey: key}
	if err := gormDB.Create(&row).Error; err != nil {
		return fmt.Errorf("create proxy: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created proxy %d (%s)\n", row.ID, row.Name)
	fmt.Fprintf(out, "API key: %s\n", key)
	return nil
}

func newProxyListCmd() *cobra.Command {
	var (
		configPath string
		tenantID   uint
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List proxies for a tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProxyList(cmd, configPath, tenantID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Stenograph config file")
	cmd.Flags().UintVarP(&tenantID, "tenant", "t", 1, "owning tenant")
	return cmd
}

func runProxyList(cmd *cobra.Command, configPath string, tenantID uint) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	var proxies []models.Proxy
	if err := gormDB.Where("tenant_id = ?", tenantID).Order("id ASC").Find(&proxies).Error; err != nil {
		return fmt.Errorf("list proxies: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(proxies) == 0 {
		fmt.Fprintln(out, "No proxies")
		return nil
	}
	for _, p := range proxies {
		prefix := p.APIKey
		if len(prefix) > 11 {
			prefix = prefix[:11]
		}
		fmt.Fprintf(out, "%d\t%s\t%s...\t%d requests\n", p.ID, p.Name, prefix, p.TotalRequests)
	}
	return nil
}

func newProxyDeleteCmd() *cobra.Command {
	var (
		configPath string
		tenantID   uint
		id         uint
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a proxy by id",
		Long:  "Revokes the proxy's API key immediately. Recorded requests and sessions are removed with it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProxyDelete(cmd, configPath, tenantID, id)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Stenograph config file")
	cmd.Flags().UintVarP(&tenantID, "tenant", "t", 1, "owning tenant")
	cmd.Flags().UintVar(&id, "id", 0, "proxy id (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func runProxyDelete(cmd *cobra.Command, configPath string, tenantID, id uint) error {
	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	res := gormDB.Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&models.Proxy{})
	if res.Error != nil {
		return fmt.Errorf("delete proxy: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("proxy %d not found", id)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted proxy %d\n", id)
	return nil
}
