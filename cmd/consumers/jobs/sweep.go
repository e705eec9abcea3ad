package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"truefantix/internal/metrics"
)

// SweepJob периодически запускает обход: просроченные резервы, escrow timeout
type SweepJob struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) (int, error)

	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewSweepJob создает job; run возвращает число обработанных заказов
func NewSweepJob(name string, interval time.Duration, run func(ctx context.Context) (int, error)) *SweepJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SweepJob{
		name:     name,
		interval: interval,
		run:      run,
		done:     make(chan struct{}),
	}
}

// Start запускает первый обход сразу, дальше по тикеру
func (j *SweepJob) Start(ctx context.Context) {
	slog.Info("Starting sweep job", "job", j.name, "interval", j.interval)

	j.ticker = time.NewTicker(j.interval)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.tick(ctx)
		for {
			select {
			case <-j.ticker.C:
				j.tick(ctx)
			case <-ctx.Done():
				return
			case <-j.done:
				slog.Info("Sweep job stopped", "job", j.name)
				return
			}
		}
	}()
}

// Stop останавливает тикер и ждет текущий обход
func (j *SweepJob) Stop() {
	if j.ticker != nil {
		j.ticker.Stop()
	}
	close(j.done)
	j.wg.Wait()
}

// tick выполняется в горутине job, обходы не пересекаются
func (j *SweepJob) tick(ctx context.Context) {
	started := time.Now()
	defer metrics.ObserveSweep(j.name, started)

	n, err := j.run(ctx)
	if err != nil {
		slog.Error("Sweep failed", "job", j.name, "error", err)
		return
	}
	if n > 0 {
		slog.Info("Sweep processed orders", "job", j.name, "orders", n, "elapsed", time.Since(started).String())
	} else {
		slog.Debug("Sweep found nothing to do", "job", j.name)
	}
}
