package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"xdeploy.toml", "xdeploy.yaml", "xdeploy.yml"}

// globalConfigFile is consulted when no project config exists
const globalConfigFile = ".xdeploy.toml"

// ProjectConfig is the project-level configuration, in TOML or YAML
type ProjectConfig struct {
	Server   string   `toml:"server" yaml:"server"`
	APIKey   string   `toml:"api_key,omitempty" yaml:"api_key,omitempty"`
	Networks string   `toml:"networks,omitempty" yaml:"networks,omitempty"`
	Output   string   `toml:"output,omitempty" yaml:"output,omitempty"`
	Project  string   `toml:"project,omitempty" yaml:"project,omitempty"`
	Contract string   `toml:"contract,omitempty" yaml:"contract,omitempty"`
	Salt     string   `toml:"salt,omitempty" yaml:"salt,omitempty"`
	Args     string   `toml:"args,omitempty" yaml:"args,omitempty"`
	Targets  []string `toml:"targets,omitempty" yaml:"targets,omitempty"`
	Factory  string   `toml:"factory,omitempty" yaml:"factory,omitempty"`
	Verify   *bool    `toml:"verify,omitempty" yaml:"verify,omitempty"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var contract string
	var salt string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create an xdeploy.toml configuration file in the current directory.

This file stores the defaults of a project: which contract to deploy, the
salt, the target networks and where run reports are served from.

EXAMPLES:
  # Create config with defaults
  xdeploy config init

  # Create config for a contract and salt
  xdeploy config init --contract Counter --salt WAGMI

  # Overwrite existing config
  xdeploy config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), contract, salt, force)
		},
	}

	cmd.Flags().StringVar(&contract, "contract", "", "contract to deploy")
	cmd.Flags().StringVar(&salt, "salt", "", "CREATE2 salt")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the current configuration.

Shows the environment, the project config (xdeploy.toml or xdeploy.yaml) and
the effective values after precedence is applied.

EXAMPLES:
  xdeploy config show
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}

	return cmd
}

func runConfigInit(w io.Writer, contract, salt string, force bool) error {
	configPath := projectConfigFiles[0]

	// Check if any config file already exists
	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil && !force {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", name)
		}
	}

	if contract == "" {
		contract = "Counter"
	}
	if salt == "" {
		salt = "WAGMI"
	}

	content := fmt.Sprintf(`# xdeploy project configuration

# Foundry or Hardhat project root
project = "."
contract = "%s"

# 0x-prefixed 32-byte hex is used as is, anything else is hashed with keccak256
salt = "%s"

# Networks to deploy to, by name or chain id
targets = ["sepolia", "baseSepolia"]

# "create2deployer" or "arachnid"
# factory = "create2deployer"

# JSON array of constructor arguments
# args = "deploy-args.json"

# Extra networks or overrides of built-in ones
# networks = "networks.toml"

# Report API used by 'xdeploy report'
# server = "http://localhost:8080"
`, contract, salt)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(w, "Created %s\n", configPath)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintf(w, "  1. Edit %s to choose target networks\n", configPath)
	fmt.Fprintln(w, "  2. Run 'xdeploy address' to preview the deployment address")
	fmt.Fprintln(w, "  3. Export DEPLOYER_PRIVATE_KEY and run 'xdeploy run'")

	return nil
}

func runConfigShow(w io.Writer) error {
	fmt.Fprintln(w, "Configuration sources (in order of precedence):")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "1. Command line flags")
	fmt.Fprintln(w, "   --server, --api-key, --networks, --output, --config")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "2. Environment variables")
	for _, key := range []string{"XDEPLOY_SERVER", "XDEPLOY_NETWORKS_FILE", "XDEPLOY_OUTPUT", "XDEPLOY_SALT", "XDEPLOY_FACTORY"} {
		if v := os.Getenv(key); v != "" {
			fmt.Fprintf(w, "   %s=%s\n", key, v)
		} else {
			fmt.Fprintf(w, "   %s=(not set)\n", key)
		}
	}
	for _, key := range []string{"XDEPLOY_API_KEY", privateKeyEnv} {
		if os.Getenv(key) != "" {
			fmt.Fprintf(w, "   %s=(set)\n", key)
		} else {
			fmt.Fprintf(w, "   %s=(not set)\n", key)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "3. Project config (xdeploy.toml, xdeploy.yaml or ~/.xdeploy.toml)")
	projectConfig, configPath, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(w, "   (not found)")
		} else {
			fmt.Fprintf(w, "   Error: %v\n", err)
		}
	} else {
		fmt.Fprintf(w, "   Loaded from: %s\n", configPath)
		if projectConfig.Project != "" {
			fmt.Fprintf(w, "   project: %s\n", projectConfig.Project)
		}
		if projectConfig.Contract != "" {
			fmt.Fprintf(w, "   contract: %s\n", projectConfig.Contract)
		}
		if projectConfig.Salt != "" {
			fmt.Fprintf(w, "   salt: %s\n", projectConfig.Salt)
		}
		if len(projectConfig.Targets) > 0 {
			fmt.Fprintf(w, "   targets: %s\n", strings.Join(projectConfig.Targets, ", "))
		}
		if projectConfig.Networks != "" {
			fmt.Fprintf(w, "   networks: %s\n", projectConfig.Networks)
		}
	}
	fmt.Fprintln(w)

	format, err := getOutput()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Effective configuration:")
	if s := getServer(); s != "" {
		fmt.Fprintf(w, "   Server:   %s\n", s)
	} else {
		fmt.Fprintln(w, "   Server:   (local store)")
	}
	if n := getNetworksFile(); n != "" {
		fmt.Fprintf(w, "   Networks: %s\n", n)
	} else {
		fmt.Fprintln(w, "   Networks: (built-in catalog)")
	}
	fmt.Fprintf(w, "   Output:   %s\n", format)

	return nil
}

// configSearchPaths lists the candidate config files, project first
func configSearchPaths() []string {
	paths := append([]string(nil), projectConfigFiles...)
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, globalConfigFile))
	}
	return paths
}

// loadProjectConfig loads the project config from the first matching config file.
// Returns the config, the path it was loaded from, and an error.
func loadProjectConfig() (*ProjectConfig, string, error) {
	// If --config flag was provided, use that directly
	if cfgFile != "" {
		config, err := loadProjectConfigFromPath(cfgFile)
		if err != nil {
			return nil, cfgFile, err
		}
		return config, cfgFile, nil
	}

	for _, name := range configSearchPaths() {
		if _, err := os.Stat(name); err == nil {
			config, err := loadProjectConfigFromPath(name)
			if err != nil {
				return nil, name, err
			}
			return config, name, nil
		}
	}
	return nil, "", os.ErrNotExist
}

// loadProjectConfigFromPath loads a project config, picking the format from the extension
func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config ProjectConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), &config); err != nil {
			return nil, fmt.Errorf("parsing TOML: %w", err)
		}
	}

	return &config, nil
}

// loadProjectConfigSilent loads the project config without returning errors for missing files.
// Returns nil if the file doesn't exist, but returns errors for parse failures.
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		// Show actionable errors (parse failures)
		fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		return nil
	}
	return config
}
