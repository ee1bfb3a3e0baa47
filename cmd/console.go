package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"shellbridge/pkg/ui/console"
)

var consoleFlags clientFlags

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive frame console",
	Long:  "Attaches to the shell as a frame and opens an interactive console for calls and broadcasts.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, log, closer, err := loadRuntime("cmd.console")
		if err != nil {
			fmt.Printf("%v\n", err)
			return
		}
		defer closer.Close()
		consoleFlags.apply(&cfg.Client)

		c, err := dialShell(cmd.Context(), cfg.Client)
		if err != nil {
			fmt.Printf("%v\n", err)
			return
		}
		defer c.Close()

		info := console.Info{URL: cfg.Client.URL, Origin: cfg.Client.Origin, Src: cfg.Client.Src}
		if err := console.Run(cmd.Context(), c, info); err != nil {
			log.Error("Console failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleFlags.register(consoleCmd)
}
