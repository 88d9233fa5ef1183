package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"runwayscraper/pkg/checkpoint"
	"runwayscraper/pkg/logger"
	"runwayscraper/pkg/progress"
	"runwayscraper/pkg/storage"
)

var statusInstance string

// statusCmd reports extraction progress for a stored instance.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show extraction progress for a stored instance",
	Long: `Print the season-by-season extraction state of a stored instance without
starting a run. Defaults to the most recently checkpointed instance.`,
	Example: `  # Progress of the latest checkpoint
  runwayscraper status

  # Progress of a specific instance in the SQLite backend
  runwayscraper status --instance runway_20260214_093015 --storage sqlite`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusInstance, "instance", "latest", "instance id to inspect, or \"latest\"")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(make(map[string]interface{}))
	if err != nil {
		return err
	}

	log := logger.GetLogger()
	manager := checkpoint.NewManager(cfg.Storage.DataDir, log)

	instanceID, err := manager.Resolve(statusInstance, cfg.Storage.Backend)
	if err != nil {
		return err
	}

	engine, err := storage.NewEngine(cfg.Storage, instanceID, log)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := context.Background()
	snap, err := engine.Snapshot(ctx)
	if err != nil {
		return err
	}

	fmt.Print(progress.Summary(snap, time.Now()))
	return nil
}
