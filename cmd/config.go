package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/kernel/sfexplain/internal/config"
	"github.com/kernel/sfexplain/pkg/util"
)

// ConfigCmd reads and writes config.yaml and the stored API key.
type ConfigCmd struct {
	dir        string
	getenv     func(string) string
	readSecret func(prompt string) (string, error)
}

// ConfigShowInput holds input for showing the configuration.
type ConfigShowInput struct {
	Output string
}

// Show prints the settings stored in the config file.
func (c ConfigCmd) Show(in ConfigShowInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}
	cfg, err := config.Load(c.dir)
	if err != nil {
		return err
	}
	key, source, err := config.APIKey(c.getenv)
	if err != nil {
		return err
	}

	if in.Output == "json" {
		return util.PrintPrettyJSON(map[string]any{
			"dir":            c.dir,
			"settings":       cfg.Entries(),
			"api_key":        config.MaskKey(key),
			"api_key_source": source,
		})
	}

	rows := pterm.TableData{{"Setting", "Value"}}
	for _, e := range cfg.Entries() {
		rows = append(rows, []string{e.Key, cell(e.Value)})
	}
	rows = append(rows, []string{"api_key", cell(config.MaskKey(key)) + " (" + source + ")"})
	pterm.Info.Printf("Config directory: %s\n", c.dir)
	PrintTableNoPad(rows, true)
	return nil
}

// ConfigSetInput holds input for changing a setting.
type ConfigSetInput struct {
	Key   string
	Value string
}

// Set changes one setting in the config file.
func (c ConfigCmd) Set(in ConfigSetInput) error {
	cfg, err := config.Load(c.dir)
	if err != nil {
		return err
	}
	if err := cfg.Set(in.Key, in.Value); err != nil {
		return err
	}
	if err := config.Save(c.dir, cfg); err != nil {
		return err
	}
	pterm.Success.Printf("Set %s = %s\n", in.Key, in.Value)
	return nil
}

// ConfigSetKeyInput holds input for storing the API key.
type ConfigSetKeyInput struct {
	Key string
}

// SetKey stores the OpenAI API key in the OS keyring, prompting when no key
// is given.
func (c ConfigCmd) SetKey(in ConfigSetKeyInput) error {
	key := in.Key
	if key == "" {
		var err error
		key, err = c.readSecret("OpenAI API key")
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
	}
	if err := config.SetAPIKey(key); err != nil {
		return err
	}
	pterm.Success.Printf("Stored API key %s in the OS keyring\n", config.MaskKey(key))
	if c.getenv(config.APIKeyEnv) != "" {
		pterm.Warning.Printf("%s is set and takes precedence over the stored key\n", config.APIKeyEnv)
	}
	return nil
}

// DeleteKey removes the stored API key.
func (c ConfigCmd) DeleteKey() error {
	if err := config.DeleteAPIKey(); err != nil {
		return err
	}
	pterm.Success.Println("Removed the stored API key")
	return nil
}

// --- Cobra wiring ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage sfexplain settings",
	Long:  "Commands for viewing and changing config.yaml and the stored OpenAI API key",
	// Config commands must work even when the current config is invalid.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current settings",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Long:  "Change a setting in config.yaml, e.g. `sfexplain config set protect_standard_fields false`",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key [key]",
	Short: "Store the OpenAI API key in the OS keyring",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigSetKey,
}

var configDeleteKeyCmd = &cobra.Command{
	Use:   "delete-key",
	Short: "Remove the stored OpenAI API key",
	Args:  cobra.NoArgs,
	RunE:  runConfigDeleteKey,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetKeyCmd)
	configCmd.AddCommand(configDeleteKeyCmd)

	configShowCmd.Flags().StringP("output", "o", "", "Output format: json for raw JSON")
}

func newConfigCmd() (ConfigCmd, error) {
	dir, err := config.Dir()
	if err != nil {
		return ConfigCmd{}, err
	}
	return ConfigCmd{
		dir:    dir,
		getenv: os.Getenv,
		readSecret: func(prompt string) (string, error) {
			return pterm.DefaultInteractiveTextInput.WithMask("*").Show(prompt)
		},
	}, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	c, err := newConfigCmd()
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	return c.Show(ConfigShowInput{Output: output})
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	c, err := newConfigCmd()
	if err != nil {
		return err
	}
	return c.Set(ConfigSetInput{Key: args[0], Value: args[1]})
}

func runConfigSetKey(cmd *cobra.Command, args []string) error {
	c, err := newConfigCmd()
	if err != nil {
		return err
	}
	in := ConfigSetKeyInput{}
	if len(args) > 0 {
		in.Key = args[0]
	}
	return c.SetKey(in)
}

func runConfigDeleteKey(cmd *cobra.Command, args []string) error {
	c, err := newConfigCmd()
	if err != nil {
		return err
	}
	return c.DeleteKey()
}
