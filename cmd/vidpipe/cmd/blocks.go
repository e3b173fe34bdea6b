package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vidpipe/internal/pipeline/blocks"
	"github.com/jmylchreest/vidpipe/internal/pipeline/core"
)

// blocksCmd lists the block types available to pipeline documents.
var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List available block types",
	Long:  "List the block types that pipeline documents can instantiate.",
	RunE: func(_ *cobra.Command, _ []string) error {
		registry := core.NewRegistry(nil)
		if err := blocks.RegisterAll(registry); err != nil {
			return fmt.Errorf("registering blocks: %w", err)
		}

		for _, typeName := range registry.Types() {
			fmt.Println(typeName)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(blocksCmd)
}
