package cli

import (
	"fmt"

	"github.com/harun/conflux/pkg/credentials"
	"github.com/spf13/cobra"
)

var keysOutput string

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the credential encryption keyset",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a new AES-GCM keyset",
	Long: `Write a new keyset for encrypting integration credentials. An existing
file is never overwritten; credentials encrypted with an old keyset cannot be
read with a new one.`,
	Args: cobra.NoArgs,
	RunE: runKeysGenerate,
}

func init() {
	keysGenerateCmd.Flags().StringVarP(&keysOutput, "output", "o", "", "keyset path (default is the configured storage.keyset_path)")
	keysCmd.AddCommand(keysGenerateCmd)
	rootCmd.AddCommand(keysCmd)
}

func runKeysGenerate(cmd *cobra.Command, args []string) error {
	path := keysOutput
	if path == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path = cfg.Storage.KeysetPath
	}

	handle, err := credentials.GenerateKeyset()
	if err != nil {
		return err
	}
	if err := credentials.SaveKeyset(handle, path); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Keyset written to %s\n", path)
	return nil
}
