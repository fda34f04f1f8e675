// drum-recalc recomputes the cached wastage aggregate of every drum, or of one
// drum when --drum is given.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/fieldops_backend/config"
	"github.com/mmdatafocus/fieldops_backend/drum"
	"github.com/mmdatafocus/fieldops_backend/models"
)

func main() {
	number := flag.String("drum", "", "Optional: drum number; all drums when empty")
	method := flag.String("method", "", "Optional: wastage method, overrides WASTAGE_METHOD")
	flag.Parse()

	policy := config.LoadSyncPolicy()
	if strings.TrimSpace(*method) != "" {
		policy.WastageMethod = *method
	}
	m, err := drum.ParseMethod(policy.WastageMethod)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx := context.Background()
	logger := config.NewLogger()
	store := models.NewStore(config.ConnectDatabaseWithRetry())
	svc := drum.NewService(store, m, policy.LowStockThreshold, logger)

	var outcomes []drum.Outcome
	if n := strings.TrimSpace(*number); n != "" {
		d, lookupErr := svc.Lookup(ctx, n)
		if lookupErr != nil {
			fmt.Fprintf(os.Stderr, "drum %s: %v\n", n, lookupErr)
			os.Exit(2)
		}
		outcomes, err = svc.Recalculate(ctx, []uint{d.ID})
	} else {
		outcomes, err = svc.RecalculateAll(ctx)
	}

	for _, o := range outcomes {
		fmt.Printf("%-16s %-12s used=%s wastage=%s remaining=%s current=%s\n",
			o.DrumNumber, o.Status, o.Result.TotalUsed, o.Result.TotalWastage,
			o.Result.RemainingCable, o.Result.CalculatedCurrentQuantity)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "recalculate: %v\n", err)
		os.Exit(1)
	}
}
