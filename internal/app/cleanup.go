package app

import (
	"context"
	"fmt"
	"time"
)

// Cleanup deletes readings older than the retention window, or only counts
// them when DryRun is set.
func (a *App) Cleanup(ctx context.Context, opts CleanupOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := a.newService(store, nil, nil)
	cutoff := svc.RetentionCutoff().Format(time.RFC3339)

	if opts.DryRun {
		n, err := svc.CountExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "%d readings older than %s would be deleted\n", n, cutoff)
		return nil
	}

	n, err := svc.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	a.Logger.Info().Int64("deleted", n).Str("cutoff", cutoff).Msg("manual cleanup complete")
	fmt.Fprintf(a.Out, "deleted %d readings older than %s\n", n, cutoff)
	return nil
}
