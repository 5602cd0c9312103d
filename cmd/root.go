package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/LukaHietala/live/cmd/gen"
)

var rootCmd = &cobra.Command{
	Use:   "live",
	Short: "A realtime relay for collaborative editing sessions",
	Long: `Live relays newline delimited JSON between the members of an
editing session over plain TCP or a websocket. The first client to
arrive hosts the session, everyone else's requests are forwarded to it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(StartCmd)
	rootCmd.AddCommand(ClientCmd)
	rootCmd.AddCommand(VersionCmd)
	rootCmd.AddCommand(gen.RootCmd)
}

// Execute runs whichever subcommand was asked for.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
