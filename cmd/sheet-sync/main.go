// sheet-sync runs one reconciliation pass inline for the connection of a month.
//
// Usage:
//
//	go run ./cmd/sheet-sync --month 8 --year 2024
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/fieldops_backend/config"
	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/mmdatafocus/fieldops_backend/sheet"
	"github.com/mmdatafocus/fieldops_backend/syncjob"
)

func main() {
	month := flag.Int("month", 0, "Required: month (1-12)")
	year := flag.Int("year", 0, "Required: year, e.g. 2024")
	verbose := flag.Bool("progress", false, "Print every step as it runs")
	flag.Parse()

	if *month < 1 || *month > 12 || *year < 2000 {
		fmt.Fprintln(os.Stderr, "--month (1-12) and --year are required")
		os.Exit(1)
	}

	ctx := context.Background()
	logger := config.NewLogger()
	db := config.ConnectDatabaseWithRetry()
	store := models.NewStore(db)

	conn, err := store.GetConnectionByPeriod(ctx, models.Period{Month: *month, Year: *year})
	if errors.Is(err, models.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "no connection for %02d/%d\n", *month, *year)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "load connection: %v\n", err)
		os.Exit(1)
	}

	svc, err := config.NewSheetsService(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	runner, err := syncjob.NewRunner(store, sheet.NewGoogleClient(svc), config.LoadSyncPolicy(), logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var progress chan syncjob.Progress
	done := make(chan struct{})
	if *verbose {
		progress = make(chan syncjob.Progress, 16)
		go func() {
			defer close(done)
			for ev := range progress {
				fmt.Printf("[%d/%d] %s %s\n", ev.Index, ev.Total, ev.Step, ev.Message)
			}
		}()
	} else {
		close(done)
	}

	summary, err := runner.Run(ctx, conn.ID, progress)
	if progress != nil {
		close(progress)
	}
	<-done

	out, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(out))
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
		os.Exit(1)
	}
}
