package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"runwayscraper/pkg/checkpoint"
	"runwayscraper/pkg/logger"
)

// checkpointsCmd groups checkpoint inspection subcommands.
var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect resumable extraction instances",
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resumable instances in the data directory",
	Long: `List every instance file in the data directory, newest first. The instance
the checkpoint pointer currently names is marked as latest; pass its id (or
"latest") to 'scrape --resume' to continue it.`,
	Args: cobra.NoArgs,
	RunE: runCheckpointsList,
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)
	checkpointsCmd.AddCommand(checkpointsListCmd)
}

func runCheckpointsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(make(map[string]interface{}))
	if err != nil {
		return err
	}

	manager := checkpoint.NewManager(cfg.Storage.DataDir, logger.GetLogger())
	instances, err := manager.List()
	if err != nil {
		return err
	}

	if len(instances) == 0 {
		fmt.Println("No resumable instances found.")
		fmt.Printf("Data directory: %s\n", cfg.Storage.DataDir)
		return nil
	}

	fmt.Printf("Instances in %s:\n\n", cfg.Storage.DataDir)
	for _, inst := range instances {
		marker := " "
		if inst.Latest {
			marker = "*"
		}
		fmt.Printf("  %s %s  (modified %s)\n", marker, inst.ID, inst.Modified.Format("2006-01-02 15:04:05"))
	}
	fmt.Println("\n* latest checkpoint; resume with 'runwayscraper scrape --resume latest'")
	return nil
}
