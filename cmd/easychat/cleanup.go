package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/easychat-dev/easychat/internal/cleaner"
	"github.com/easychat-dev/easychat/internal/history"
	"github.com/easychat-dev/easychat/internal/storage"
)

func newCleanupCmd() *cobra.Command {
	var emergency bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run a manual cleanup pass over the history store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			driver, closeDriver, err := openDriver(cfg)
			if err != nil {
				return err
			}
			defer closeDriver()

			log := history.NewLog(cfg.MaxContextMessages)
			if data, ok, err := driver.Read(storage.HistoryKey); err != nil {
				return err
			} else if ok {
				if err := log.LoadSnapshot(data); err != nil {
					// Unparseable history: the pass below rewrites it from
					// the (now empty) authoritative log.
					fmt.Println("history snapshot corrupt, discarding")
					_ = driver.Remove(storage.HistoryKey)
				}
			}

			engine := cleaner.New(cfg, log, driver, newCLILogger(), nil)
			before, _ := driver.Usage()
			if emergency {
				engine.RunEmergency()
			} else {
				engine.RunNormal()
			}
			after, err := driver.Usage()
			if err != nil {
				return err
			}

			fmt.Printf("Cleanup complete: %s -> %s (%.1f%% of budget), %d messages kept\n",
				formatBytes(before.TotalBytes),
				formatBytes(after.TotalBytes),
				after.Percent(cfg.CapacityBytes),
				log.Len())
			return nil
		},
	}

	cmd.Flags().BoolVar(&emergency, "emergency", false, "Run the aggressive emergency cleanup")
	return cmd
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the conversation history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			driver, closeDriver, err := openDriver(cfg)
			if err != nil {
				return err
			}
			defer closeDriver()

			if err := driver.Remove(storage.HistoryKey); err != nil {
				return err
			}
			fmt.Println("History cleared")
			return nil
		},
	}
}
