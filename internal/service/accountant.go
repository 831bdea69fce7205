package service

import (
	"PanShare/internal/metrics"
	"PanShare/internal/repo"
	"context"
	"errors"
	"fmt"
	"time"
)

// DownloadAccountant records downloads against a share's limit.
type DownloadAccountant struct {
	shares ShareRepository
	now    Clock
}

func NewDownloadAccountant(shares ShareRepository, clock Clock) *DownloadAccountant {
	return &DownloadAccountant{shares: shares, now: clock}
}

// RecordDownload atomically increments download_count and stamps
// last_accessed_at. The increment happens only while the share is live,
// unexpired and under its limit, so N concurrent calls against limit L
// succeed at most L times.
func (a *DownloadAccountant) RecordDownload(ctx context.Context, shareID uint64) error {
	now := a.now()
	n, err := a.shares.TryIncrementDownload(ctx, shareID, now)
	if err != nil {
		metrics.ShareDownloadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("record download: %w", err)
	}
	if n > 0 {
		metrics.ShareDownloadsTotal.WithLabelValues("ok").Inc()
		return nil
	}

	reason, err := a.classify(ctx, shareID, now)
	if err != nil {
		metrics.ShareDownloadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("record download: %w", err)
	}
	if reason == ReasonNone {
		metrics.ShareDownloadsTotal.WithLabelValues("conflict").Inc()
		return ErrConflict
	}
	metrics.ShareDownloadsTotal.WithLabelValues(reason.label()).Inc()
	return reason.Err()
}

// classify explains a refused increment from the row as it is now.
func (a *DownloadAccountant) classify(ctx context.Context, shareID uint64, now time.Time) (Reason, error) {
	share, err := a.shares.GetShareByID(ctx, shareID)
	if errors.Is(err, repo.ErrNotFound) {
		return ReasonNotFound, nil
	}
	if err != nil {
		return ReasonNone, err
	}
	switch {
	case !share.Resolvable():
		return ReasonNotFound, nil
	case share.ExpiresAt != nil && !share.ExpiresAt.After(now):
		return ReasonExpired, nil
	case share.DownloadLimit != nil && share.DownloadCount >= *share.DownloadLimit:
		return ReasonLimitExceeded, nil
	default:
		// The row changed between the update and this read.
		return ReasonNone, nil
	}
}
