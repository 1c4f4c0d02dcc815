package app

import (
	"context"
	"fmt"
	"math"

	"filevault/pkg/domain"
)

// Usage reports an owner's consumption against the configured ceiling.
// With a zero ceiling everything reads as zero rather than dividing by it.
func (a *App) Usage(ctx context.Context, ownerID string) (domain.StorageUsage, error) {
	used, err := a.store.SumFileSizes(ctx, ownerID)
	if err != nil {
		return domain.StorageUsage{}, fmt.Errorf("sum file sizes: %w", err)
	}
	return computeUsage(used, a.maxStorageBytes), nil
}

func computeUsage(used, max int64) domain.StorageUsage {
	usage := domain.StorageUsage{
		UsedBytes: used,
		MaxBytes:  max,
	}
	if max <= 0 {
		return usage
	}
	remaining := max - used
	if remaining < 0 {
		remaining = 0
	}
	usage.RemainingBytes = remaining

	percent := int(math.Round(float64(used) / float64(max) * 100))
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	usage.UsedPercent = percent
	return usage
}
