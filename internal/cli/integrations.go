package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/harun/conflux/pkg/credentials"
	"github.com/harun/conflux/pkg/integrations"
	"github.com/spf13/cobra"
)

var (
	integrationAPIKey      string
	integrationCredentials string
)

var integrationsCmd = &cobra.Command{
	Use:   "integrations",
	Short: "Manage users' connected services",
	Long:  `Store, list and remove the encrypted per-user credentials of connected services.`,
}

var integrationsSetCmd = &cobra.Command{
	Use:   "set <user-id> <service>",
	Short: "Connect a service for a user",
	Example: `  conflux integrations set u1 slack --api-key xoxb-123
  conflux integrations set u1 gmail --credentials '{"token":"ya29...","refresh_token":"1//..."}'`,
	Args: cobra.ExactArgs(2),
	RunE: runIntegrationsSet,
}

var integrationsListCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List a user's connected services",
	Args:  cobra.ExactArgs(1),
	RunE:  runIntegrationsList,
}

var integrationsDeleteCmd = &cobra.Command{
	Use:   "delete <user-id> <service>",
	Short: "Disconnect a service for a user",
	Args:  cobra.ExactArgs(2),
	RunE:  runIntegrationsDelete,
}

func init() {
	integrationsSetCmd.Flags().StringVar(&integrationAPIKey, "api-key", "", "service API key")
	integrationsSetCmd.Flags().StringVar(&integrationCredentials, "credentials", "", "service credentials as a JSON object")

	integrationsCmd.AddCommand(integrationsSetCmd)
	integrationsCmd.AddCommand(integrationsListCmd)
	integrationsCmd.AddCommand(integrationsDeleteCmd)
	rootCmd.AddCommand(integrationsCmd)
}

// withStore runs fn against the credential store of the loaded config
func withStore(cmd *cobra.Command, fn func(store *credentials.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := prepareDataDir(cfg); err != nil {
		return err
	}

	store, err := openCredentials(cfg, commandLogger(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(store)
}

func runIntegrationsSet(cmd *cobra.Command, args []string) error {
	userID, service := args[0], args[1]
	if !integrations.IsSupported(service) {
		return fmt.Errorf("unsupported service: %s", service)
	}

	cfg := integrations.ServiceConfig{APIKey: integrationAPIKey}
	if integrationCredentials != "" {
		if err := json.Unmarshal([]byte(integrationCredentials), &cfg.Credentials); err != nil {
			return fmt.Errorf("invalid credentials JSON: %w", err)
		}
	}
	if cfg.APIKey == "" && len(cfg.Credentials) == 0 {
		return errors.New("either --api-key or --credentials is required")
	}

	return withStore(cmd, func(store *credentials.Store) error {
		if err := store.SaveIntegration(cmd.Context(), userID, service, cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Connected %s for %s\n", service, userID)
		return nil
	})
}

func runIntegrationsList(cmd *cobra.Command, args []string) error {
	userID := args[0]
	return withStore(cmd, func(store *credentials.Store) error {
		services, err := store.Services(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if len(services) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No services connected for %s\n", userID)
			return nil
		}
		for _, service := range services {
			fmt.Fprintln(cmd.OutOrStdout(), service)
		}
		return nil
	})
}

func runIntegrationsDelete(cmd *cobra.Command, args []string) error {
	userID, service := args[0], args[1]
	return withStore(cmd, func(store *credentials.Store) error {
		err := store.DeleteIntegration(cmd.Context(), userID, service)
		if errors.Is(err, credentials.ErrNotFound) {
			return fmt.Errorf("%s is not connected for %s", service, userID)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Disconnected %s for %s\n", service, userID)
		return nil
	})
}
