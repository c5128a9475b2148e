package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theirongolddev/emiscope/internal/config"
	"github.com/theirongolddev/emiscope/internal/tui"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil && config.Exists() {
		fmt.Printf("  Existing config is unreadable (%v), starting from defaults.\n", err)
		cfg = config.DefaultConfig()
	}

	fmt.Println()
	fmt.Println("  Welcome to emiscope!")
	fmt.Println()

	cfg, err = tui.RunSetup(cfg)
	if errors.Is(err, tui.ErrSetupAborted) {
		fmt.Println("  Setup cancelled, nothing saved.")
		return nil
	}
	if err != nil {
		return err
	}

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", config.ConfigPath())
	fmt.Println("  Run `emiscope status` to check the models, or `emiscope setup` anytime to reconfigure.")
	fmt.Println()
	return nil
}
