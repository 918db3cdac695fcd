package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/process"
)

const defaultHighWatermark = 0.8

var _ contract.Worker = (*MailboxMonitorWorker)(nil)

// MailboxReport summarizes the outbound queues at one instant.
type MailboxReport struct {
	Peers     int
	Queued    int
	Busiest   *domain.MailboxStats
	Saturated []domain.MailboxStats
	RSS       uint64
	OpenFDs   int32
}

// MailboxMonitorWorker periodically reports how full the peer mailboxes are.
// Reading len/cap of a channel is non-blocking, so sampling never slows
// delivery down. Peers above the high watermark are the next eviction candidates.
type MailboxMonitorWorker struct {
	log            *slog.Logger
	stats          contract.StatsProvider
	metricInterval time.Duration
	highWatermark  float64
}

func NewMailboxMonitorWorker(log *slog.Logger, stats contract.StatsProvider, metricInterval time.Duration) *MailboxMonitorWorker {
	return &MailboxMonitorWorker{
		log:            log,
		stats:          stats,
		metricInterval: metricInterval,
		highWatermark:  defaultHighWatermark,
	}
}

func (w *MailboxMonitorWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping mailbox monitoring")
			return nil
		case <-ticker.C:
			w.log.Info("Mailbox report", w.Report().attrs()...)
		}
	}
}

// Report samples the registry and the current process.
func (w *MailboxMonitorWorker) Report() MailboxReport {
	stats := w.stats.Stats()
	report := MailboxReport{
		Peers: len(stats),
		Queued: lo.SumBy(stats, func(s domain.MailboxStats) int {
			return s.Length
		}),
		Saturated: lo.Filter(stats, func(s domain.MailboxStats, _ int) bool {
			return s.Load() >= w.highWatermark
		}),
	}
	if len(stats) > 0 {
		busiest := lo.MaxBy(stats, func(a, b domain.MailboxStats) bool {
			return a.Length > b.Length
		})
		report.Busiest = &busiest
	}
	for _, s := range report.Saturated {
		w.log.Warn("Mailbox close to capacity", "peer", s.Peer, "username", s.Username,
			"length", s.Length, "capacity", s.Capacity)
	}

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		w.log.Debug("Error while retrieving process", "error", err)
		return report
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		report.RSS = mem.RSS
	} else {
		w.log.Debug("Error while finding process ram usage", "error", err)
	}
	if fds, err := p.NumFDs(); err == nil {
		report.OpenFDs = fds
	} else {
		w.log.Debug("Error while finding open file descriptors", "error", err)
	}
	return report
}

func (r MailboxReport) attrs() []any {
	attrs := []any{"peers", r.Peers, "queued", r.Queued, "saturated", len(r.Saturated),
		"rss_bytes", r.RSS, "open_fds", r.OpenFDs}
	if r.Busiest != nil {
		attrs = append(attrs, "busiest_peer", r.Busiest.Peer, "busiest_length", r.Busiest.Length)
	}
	return attrs
}
