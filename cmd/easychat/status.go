package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show storage usage",
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

			usage, err := driver.Usage()
			if err != nil {
				return err
			}

			fmt.Printf("Store:    %s (%s)\n", storePath, backend)
			fmt.Printf("Usage:    %s / %s (%.1f%%)\n",
				formatBytes(usage.TotalBytes),
				formatBytes(cfg.CapacityBytes),
				usage.Percent(cfg.CapacityBytes))
			fmt.Printf("Items:    %d\n", usage.ItemCount)
			return nil
		},
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMG"[exp])
}
