// Package cmd expresses the command-line interface.
package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "vantaged",
	Short: "Headless XR compositor service",
	Long: `vantaged runs the multi-client XR compositor against a headless
display backend: adaptive frame timing, per-client layer scheduling and
z-ordered composition, without a GPU behind it.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, err := logrus.ParseLevel(viper.GetString("log-level"))
		if err != nil {
			logrus.WithError(err).Warn("bad log level, using info")
			level = logrus.InfoLevel
		}
		logrus.SetLevel(level)
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "logrus level (trace, debug, info, warn, error)")
	cobra.OnInitialize(initConfig)
}

// initConfig reads in environment variables and binds the flags.
func initConfig() {
	viper.SetEnvPrefix("vantaged")
	viper.AutomaticEnv()
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		logrus.WithError(err).Fatal("failed to set up flags")
	}
}
