package gateway

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/pysugar/cloud-nexus/internal/activity"
	"github.com/pysugar/cloud-nexus/internal/db"
	"github.com/pysugar/cloud-nexus/internal/db/models"
	"github.com/pysugar/cloud-nexus/internal/provider"
	"go.uber.org/zap"
)

// Analytics summarizes a user's cached storage and transfer activity.
type Analytics struct {
	TotalFiles         int64            `json:"total_files"`
	TotalFolders       int64            `json:"total_folders"`
	TotalSize          int64            `json:"total_size"`
	FormattedTotalSize string           `json:"formatted_total_size"`
	FilesByType        map[string]int64 `json:"files_by_type"`
	FilesByProvider    map[string]int64 `json:"files_by_provider"`
	MostUsedProvider   string           `json:"most_used_provider"`
	UploadCount        int64            `json:"upload_count"`
	DownloadCount      int64            `json:"download_count"`
	TodayUploads       int64            `json:"today_uploads"`
	TodayDownloads     int64            `json:"today_downloads"`
}

// Search queries the user's cached, non-trashed records.
func (g *Gateway) Search(ctx context.Context, userID string, filter db.SearchFilter) ([]models.FileRecord, error) {
	recs, err := g.files.Search(ctx, userID, filter)
	if err != nil {
		return nil, wrap("search files", err)
	}
	g.log(ctx).Debug("Searched files", zap.String("name", filter.Name), zap.Int("results", len(recs)))
	return recs, nil
}

// Analytics aggregates the cache and the activity log for userID.
func (g *Gateway) Analytics(ctx context.Context, userID string) (*Analytics, error) {
	stats, err := g.files.Stats(ctx, userID)
	if err != nil {
		return nil, wrap("storage analytics", err)
	}
	out := &Analytics{
		TotalFiles:         stats.TotalFiles,
		TotalFolders:       stats.TotalFolders,
		TotalSize:          stats.TotalSize,
		FormattedTotalSize: humanize.IBytes(uint64(max(stats.TotalSize, 0))),
		FilesByType:        stats.ByCategory,
		FilesByProvider:    stats.ByProvider,
		MostUsedProvider:   mostUsed(stats.ByProvider),
	}

	if g.activity != nil {
		transfers, err := g.activity.Stats(ctx, userID)
		if err != nil {
			g.log(ctx).Warn("Failed to read activity stats", zap.Error(err))
		} else {
			out.UploadCount = transfers.UploadsTotal
			out.DownloadCount = transfers.DownloadsTotal
			out.TodayUploads = transfers.UploadsToday
			out.TodayDownloads = transfers.DownloadsToday
		}
	}
	return out, nil
}

// mostUsed picks the provider with the most files, breaking ties by the
// fixed provider order. It is "NONE" when nothing is cached.
func mostUsed(byProvider map[string]int64) string {
	best, bestCount := "NONE", int64(0)
	for _, p := range provider.Types {
		if n := byProvider[string(p)]; n > bestCount {
			best, bestCount = string(p), n
		}
	}
	return best
}

// RecentActivity returns up to limit of the user's newest activity entries.
func (g *Gateway) RecentActivity(ctx context.Context, userID string, limit int) []models.ActivityLog {
	if g.activity == nil {
		return nil
	}
	return g.activity.Recent(ctx, userID, limit)
}

// OperationCounters returns the process-lifetime outcome totals of recorded
// operations.
func (g *Gateway) OperationCounters() activity.Counters {
	if g.activity == nil {
		return activity.Counters{}
	}
	return g.activity.Counters()
}
