package gen

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generators for shipping artifacts",
	Long:  `Generators for shipping artifacts, such as man pages`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
}
