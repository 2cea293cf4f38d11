package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	serverURL    string
	networksFile string
	output       string
	apiKey       string
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

// ExitError ends the process with Code after a command that completed but
// did not fully succeed
type ExitError struct {
	Code int
	Msg  string
}

func (e *ExitError) Error() string {
	return e.Msg
}

// Execute runs the CLI
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "xdeploy",
		Short: "Deterministic multi-chain contract deployment",
		Long: `xdeploy deploys a contract to the same address on many EVM networks through a
CREATE2 factory, verifies its source on each network's block explorer, and
records every run.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: xdeploy.toml, xdeploy.yaml or ~/.xdeploy.toml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "report API URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&networksFile, "networks", "", "network file merged over the built-in catalog")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "output format: table or json")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for the report API")

	// Add subcommands
	rootCmd.AddCommand(createRunCmd())
	rootCmd.AddCommand(createVerifyCmd())
	rootCmd.AddCommand(createAddressCmd())
	rootCmd.AddCommand(createChainsCmd())
	rootCmd.AddCommand(createReportCmd())
	rootCmd.AddCommand(createServeCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd
}

// getServer returns the report API URL from flag, env or config file. An
// empty result means the local store is used.
func getServer() string {
	// 1. Command line flag
	if serverURL != "" {
		return serverURL
	}

	// 2. Environment variable
	if env := os.Getenv("XDEPLOY_SERVER"); env != "" {
		return env
	}

	// 3. Project config file
	if config := loadProjectConfigSilent(); config != nil && config.Server != "" {
		return config.Server
	}

	return ""
}

// getAPIKey returns the report API key from flag, env or config file
func getAPIKey() string {
	return resolve(apiKey, "XDEPLOY_API_KEY", projectConfigValue(func(c *ProjectConfig) string { return c.APIKey }), "")
}

// getNetworksFile returns the network file from flag, env or config file
func getNetworksFile() string {
	if networksFile != "" {
		return networksFile
	}
	if env := os.Getenv("XDEPLOY_NETWORKS_FILE"); env != "" {
		return env
	}
	if config := loadProjectConfigSilent(); config != nil {
		return config.Networks
	}
	return ""
}

// getOutput returns the output format from flag, env, config file or default
func getOutput() (string, error) {
	format := resolve(output, "XDEPLOY_OUTPUT", projectConfigValue(func(c *ProjectConfig) string { return c.Output }), outputTable)
	switch format {
	case outputTable, outputJSON:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want table or json)", format)
	}
}

// resolve applies flag > env > config file > default to one setting
func resolve(flagValue, envKey, fileValue, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envKey != "" {
		if env := os.Getenv(envKey); env != "" {
			return env
		}
	}
	if fileValue != "" {
		return fileValue
	}
	return defaultValue
}

func projectConfigValue(get func(*ProjectConfig) string) string {
	if config := loadProjectConfigSilent(); config != nil {
		return get(config)
	}
	return ""
}
