package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/s3lite/s3lite/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample s3lite configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/s3lite/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  s3lite init

  # Initialize with custom path
  s3lite init --config /etc/s3lite/config.yaml

  # Force overwrite existing config
  s3lite init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: s3lite start")
	fmt.Printf("  3. Or specify custom config: s3lite start --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  SigV4 request signing is disabled until both access_key and secret_key")
	fmt.Println("  are set in the configuration file. For production, set both to enable it:")
	fmt.Println("    access_key: <your-access-key>")
	fmt.Println("    secret_key: <your-secret-key>")

	return nil
}
