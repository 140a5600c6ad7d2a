package jobs

import (
	"context"
	"fmt"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/logger"
)

// PanelStore is satisfied by *s0_data.Repository
type PanelStore interface {
	SavePrices(ctx context.Context, series ...*s0_data.Series) (int, error)
	SaveFundamentals(ctx context.Context, t *s0_data.FundamentalsTable) (int, error)
}

// PanelSyncJob copies the CSV panel into Postgres
type PanelSyncJob struct {
	source   s0_data.Source
	store    PanelStore
	calendar *calendar.Calendar
	schedule string
	logger   *logger.Logger
}

// NewPanelSyncJob creates a new panel sync job
func NewPanelSyncJob(source s0_data.Source, store PanelStore, cal *calendar.Calendar, schedule string, log *logger.Logger) *PanelSyncJob {
	return &PanelSyncJob{
		source:   source,
		store:    store,
		calendar: cal,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *PanelSyncJob) Name() string {
	return "panel_sync"
}

// Schedule returns the cron schedule
func (j *PanelSyncJob) Schedule() string {
	return j.schedule
}

// Run loads the panel and upserts prices and fundamentals
func (j *PanelSyncJob) Run(ctx context.Context) error {
	panel, err := j.source.Load(ctx, j.calendar)
	if err != nil {
		return fmt.Errorf("load panel: %w", err)
	}
	prices, fundamentals, err := SyncPanel(ctx, panel, j.store)
	if err != nil {
		return err
	}

	j.logger.WithFields(map[string]interface{}{
		"prices":       prices,
		"fundamentals": fundamentals,
	}).Info("Panel synced")
	return nil
}

// SyncPanel writes every series and quarter table of a panel
func SyncPanel(ctx context.Context, panel *s0_data.Panel, store PanelStore) (prices, fundamentals int, err error) {
	series := make([]*s0_data.Series, 0, len(panel.Prices.Symbols()))
	for _, sym := range panel.Prices.Symbols() {
		s, err := panel.Prices.Series(sym)
		if err != nil {
			return 0, 0, err
		}
		series = append(series, s)
	}
	if prices, err = store.SavePrices(ctx, series...); err != nil {
		return prices, 0, fmt.Errorf("save prices: %w", err)
	}

	for _, q := range panel.Fundamentals.Quarters() {
		t, err := panel.Fundamentals.Table(q)
		if err != nil {
			return prices, fundamentals, err
		}
		n, err := store.SaveFundamentals(ctx, t)
		fundamentals += n
		if err != nil {
			return prices, fundamentals, fmt.Errorf("save fundamentals %s: %w", q, err)
		}
	}
	return prices, fundamentals, nil
}
