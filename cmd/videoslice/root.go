package main

import (
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/qiaofuyo/video-slice/internal/config"
)

type commandContext struct {
	configFlag  *string
	dataDirFlag *string
	tokenFlag   *string

	configOnce sync.Once
	config     *config.EnvConfig
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.EnvConfig, error) {
	c.configOnce.Do(func() {
		if p := strings.TrimSpace(*c.configFlag); p != "" {
			os.Setenv(config.EnvConfigFile, p)
		}
		if d := strings.TrimSpace(*c.dataDirFlag); d != "" {
			os.Setenv(config.EnvDataDir, d)
		}
		c.config, c.configErr = config.New()
	})
	return c.config, c.configErr
}

func newRootCommand() *cobra.Command {
	var configFlag, dataDirFlag, tokenFlag string
	ctx := &commandContext{configFlag: &configFlag, dataDirFlag: &dataDirFlag, tokenFlag: &tokenFlag}

	rootCmd := &cobra.Command{
		Use:           "videoslice",
		Short:         "Mark clips in local recordings and generate cut commands",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["config"] == "skip" {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Agent data directory")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "API token (read from the data directory when empty)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newTimecodeCommand())
	rootCmd.AddCommand(newSourcesCommand(ctx))
	rootCmd.AddCommand(newClipsCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))

	return rootCmd
}
