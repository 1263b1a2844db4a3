package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fenceline/fenceline/coordinator"
)

// metadataCmd represents the metadata command
var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Print the resource-agent metadata XML",
	Long: `Print the agent's parameter and action description in the
resource-agent metadata XML format, for registration with the cluster
resource manager.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return coordinator.WriteMetadata(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(metadataCmd)
}
