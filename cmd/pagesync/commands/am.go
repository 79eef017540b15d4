package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/pagesync/am"
	"github.com/teranos/pagesync/display"
	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/sym"
)

// AmCmd groups configuration commands.
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Show and check pagesync configuration",
	Long: sym.AM + ` am — Show and check pagesync configuration

Configuration is merged from, lowest precedence first:
  built-in defaults
  /etc/pagesync/config.toml
  ~/.pagesync/config.toml
  pagesync.toml in the current or nearest parent directory
  --config <file>
  PAGESYNC_* environment variables (PAGESYNC_REMOTE_TOKEN, ...)`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runAmShow,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where each setting comes from",
	Args:  cobra.NoArgs,
	RunE:  runAmWhere,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := am.Load()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		pterm.Success.Println("Configuration is valid")
		return nil
	},
}

var amInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter " + am.ProjectConfigName,
	Args:  cobra.NoArgs,
	RunE:  runAmInit,
}

var (
	amShowFormat string
	amInitPath   string
	amInitRemote am.RemoteConfig
)

func init() {
	amShowCmd.Flags().StringVar(&amShowFormat, "format", "toml", "Output format: toml, json or yaml")

	amInitCmd.Flags().StringVar(&amInitPath, "path", am.ProjectConfigName, "File to create")
	amInitCmd.Flags().StringVar(&amInitRemote.BaseURL, "base-url", "", "Remote base URL, e.g. https://example.atlassian.net/wiki")
	amInitCmd.Flags().StringVar(&amInitRemote.SpaceKey, "space", "", "Space key to sync")
	amInitCmd.Flags().StringVar(&amInitRemote.Email, "email", "", "Account email")

	AmCmd.AddCommand(amShowCmd, amWhereCmd, amValidateCmd, amInitCmd)
}

// effectiveSettings nests the introspected settings back into sections.
// Secrets arrive masked.
func effectiveSettings() (map[string]interface{}, []am.SettingInfo, error) {
	settings, err := am.Introspect()
	if err != nil {
		return nil, nil, err
	}
	root := map[string]interface{}{}
	for _, s := range settings {
		parts := strings.Split(s.Key, ".")
		m := root
		for _, part := range parts[:len(parts)-1] {
			next, ok := m[part].(map[string]interface{})
			if !ok {
				next = map[string]interface{}{}
				m[part] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = s.Value
	}
	return root, settings, nil
}

func runAmShow(cmd *cobra.Command, args []string) error {
	tree, _, err := effectiveSettings()
	if err != nil {
		return err
	}
	format := amShowFormat
	if display.ShouldOutputJSON(cmd) {
		format = "json"
	}

	var data []byte
	switch format {
	case "toml":
		data, err = toml.Marshal(tree)
	case "json":
		data, err = json.MarshalIndent(tree, "", "  ")
	case "yaml":
		data, err = yaml.Marshal(tree)
	default:
		return errors.WithHint(errors.Newf("unknown format %q", format), "use toml, json or yaml")
	}
	if err != nil {
		return errors.Wrapf(err, "failed to render config as %s", format)
	}
	fmt.Print(strings.TrimRight(string(data), "\n") + "\n")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	_, settings, err := effectiveSettings()
	if err != nil {
		return err
	}
	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(settings)
	}
	if path := am.ActiveConfigFile(); path != "" {
		pterm.Info.Printf("Active config file: %s\n", path)
	}
	rows := make([][]string, 0, len(settings))
	for _, s := range settings {
		rows = append(rows, []string{s.Key, fmt.Sprint(s.Value), string(s.Source), s.SourcePath})
	}
	return display.Table([]string{"Key", "Value", "Source", "From"}, rows)
}

func runAmInit(cmd *cobra.Command, args []string) error {
	if err := am.InitFile(amInitPath, amInitRemote); err != nil {
		return err
	}
	pterm.Success.Printf("Wrote %s\n", amInitPath)
	pterm.Info.Println("Set PAGESYNC_REMOTE_TOKEN in the environment or a .env file")
	return nil
}
