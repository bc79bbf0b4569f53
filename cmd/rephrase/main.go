package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/rephrase/cmd/rephrase/cmds"
	"github.com/go-go-golems/rephrase/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "rephrase",
		Short:         "rephrase rewrites text in one or more styles, streamed from a backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cobra.CheckErr(config.InitViper(viper.GetViper(), rootCmd))

	app := cmds.NewApp(viper.GetViper())
	// reinitialize the logger once flags are parsed
	rootCmd.PersistentPreRunE = app.Init

	rootCmd.AddCommand(
		cmds.NewRewriteCommand(app),
		cmds.NewServeCommand(app),
		cmds.NewStylesCommand(app),
		cmds.NewModelsCommand(app),
		cmds.NewCyclesCommand(app),
		cmds.NewFixtureBackendCommand(app),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
