package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/superclaude/superclaude/internal/config"
)

var (
	initToken       string
	initUsers       []int64
	initProjectsDir string
	initForce       bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Writes a config file with the built-in defaults plus the values given as
flags. Existing files are left alone unless --force is set.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initToken, "token", "", "Telegram bot token")
	initCmd.Flags().Int64SliceVar(&initUsers, "user", nil, "Allowed Telegram user id (repeatable)")
	initCmd.Flags().StringVar(&initProjectsDir, "projects-dir", "", "Directory holding your projects")
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.Default()
	cfg.TelegramToken = initToken
	cfg.AllowedUsers = initUsers
	cfg.ProjectsDir = initProjectsDir
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
