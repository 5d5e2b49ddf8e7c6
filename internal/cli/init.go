package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ac-freeman/open-accountability/deploy"
	"github.com/ac-freeman/open-accountability/internal/config"
	"github.com/ac-freeman/open-accountability/internal/version"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a configuration file with every setting at its default value.

The identity API key is not written; supply it through API_KEY (a .env file
works) or point identity.api_key_secret at a Secret Manager secret.

Example:
  open-accountability init
  open-accountability init --path /etc/open-accountability/.open-accountability.yaml \
    --unit /etc/systemd/system/open-accountability.service --user alice`,
	RunE: initProject,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("path", "."+version.Name+".yaml", "Where to write the config file")
	initCmd.Flags().String("api-key-secret", "", "Secret Manager path of the identity API key")
	initCmd.Flags().String("pairing", config.PairingWeb, "Pairing mode (web, terminal)")
	initCmd.Flags().String("unit", "", "Also write the systemd unit to this path")
	initCmd.Flags().String("user", "", "User the systemd unit runs as (default root)")
	initCmd.Flags().Bool("force", false, "Overwrite existing config")
}

func initProject(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")
	force, _ := cmd.Flags().GetBool("force")

	cfg := config.Defaults()
	cfg.Identity.APIKeySecret, _ = cmd.Flags().GetString("api-key-secret")
	cfg.Pairing.Mode, _ = cmd.Flags().GetString("pairing")
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := writeConfig(path, cfg, force); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)

	unitPath, _ := cmd.Flags().GetString("unit")
	if unitPath == "" {
		return nil
	}
	absConfig, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	user, _ := cmd.Flags().GetString("user")
	if err := deploy.WriteUnit(unitPath, deploy.UnitParams{
		User:       user,
		WorkingDir: filepath.Dir(absConfig),
		ConfigPath: absConfig,
	}); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", unitPath)
	if unitPath != cfg.Service.UnitPath {
		fmt.Fprintf(cmd.OutOrStdout(), "Note: set service.unit_path to %s so the tamper check reads it\n", unitPath)
	}
	return nil
}

func writeConfig(path string, cfg config.Config, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := "# " + version.Name + " configuration\n# Environment overrides use the " + config.EnvPrefix + "_ prefix, e.g. " + config.EnvPrefix + "_MONITOR_MIN_SLEEP=3m\n\n"
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
