package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/storyforge/storyforge/internal/config"
	"github.com/storyforge/storyforge/internal/ux"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and bootstrap configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return ux.EnhanceError(err)
		}
		formatter, err := ux.NewFormatter(defaultedFormat("yaml"), nil)
		if err != nil {
			return err
		}
		return formatter.Format(cfg)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a storyforge.yaml with the default configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		const path = "storyforge.yaml"
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists, not overwriting", path)
		}

		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()

		formatter, err := ux.NewFormatter("yaml", &ux.FormatterOptions{Writer: f})
		if err != nil {
			return err
		}
		if err := formatter.Format(config.Default()); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

// defaultedFormat maps the text default to a structured format for
// commands whose output is inherently a document.
func defaultedFormat(fallback string) string {
	if outFormat == "" || outFormat == "text" {
		return fallback
	}
	return outFormat
}
