package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LukaHietala/live/internal/meta"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(meta.GetInfo())
	},
}
