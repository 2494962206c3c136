package cmd

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/micstream/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage MicStream configuration settings and device profiles.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	},
}

var configProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List device profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := config.ReadRootConfig(cfgFile)
		if err != nil {
			return err
		}

		for _, name := range config.ProfileNames(root) {
			marker := " "
			if name == cfg.Profile {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use [profile]",
	Short: "Set the active device profile in the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		// Make sure the profile resolves before writing it
		if _, err := config.LoadWithProfile(cfgFile, name); err != nil {
			return err
		}
		if err := config.UpdateActiveConfig(cfgFile, name); err != nil {
			return err
		}

		fmt.Printf("Active profile set to %s in %s\n", name, cfgFile)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configProfilesCmd)
	configCmd.AddCommand(configUseCmd)
}
