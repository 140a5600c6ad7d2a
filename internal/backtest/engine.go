package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/cluster"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/internal/features"
	"github.com/parkercarrus/cluster-trading-strategy/internal/model"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/logger"
)

// Engine runs walk-forward backtests over a loaded panel
// ⭐ SSOT: 백테스팅 실행은 여기서만
type Engine struct {
	panel  *s0_data.Panel
	logger *logger.Logger
}

// Event is one buy or sell at an observed price
type Event struct {
	Quarter    string    `json:"quarter"`
	Symbol     string    `json:"symbol"`
	Date       time.Time `json:"date"`
	Price      float64   `json:"price"`
	Confidence float64   `json:"confidence,omitempty"` // buys only
	Gain       float64   `json:"gain,omitempty"`       // sells only
}

// Position is an open holding tracked by the loop
type Position struct {
	Symbol       string
	BuyPrice     float64
	PurchaseDate time.Time
	Quarter      string
}

// StepReport describes one train/feature/eval step
type StepReport struct {
	Index     int                      `json:"index"`
	Train     string                   `json:"train"`
	Feature   string                   `json:"feature"`
	Eval      string                   `json:"eval"`
	TrainRows int                      `json:"train_rows"`
	Ranking   []contracts.RankedSymbol `json:"ranking,omitempty"`
	Buys      []Event                  `json:"buys,omitempty"`
	Sells     []Event                  `json:"sells,omitempty"`
	Skipped   bool                     `json:"skipped"`
	Reason    string                   `json:"reason,omitempty"`
}

// StepObserver receives each step as it completes
type StepObserver interface {
	OnStep(StepReport)
}

// StepObserverFunc adapts a function to StepObserver
type StepObserverFunc func(StepReport)

func (f StepObserverFunc) OnStep(r StepReport) { f(r) }

// Result holds everything a run produced
type Result struct {
	Params    Params
	Quarters  []calendar.Quarter
	Buys      []Event
	Sells     []Event
	Open      []Position // still open at termination, reconciled as holds
	Steps     []StepReport
	Baselines map[string]float64
	Trades    []contracts.TradeRecord
	Skipped   []contracts.Skip
	Duration  time.Duration
}

// NewEngine creates a new backtest engine
func NewEngine(panel *s0_data.Panel, logger *logger.Logger) *Engine {
	return &Engine{panel: panel, logger: logger}
}

// Panel returns the engine's data context
func (e *Engine) Panel() *s0_data.Panel {
	return e.panel
}

// Run walks the quarter sequence with a (train, feature, eval) window,
// then reconciles buys and sells into trade records
func (e *Engine) Run(ctx context.Context, params Params, observers ...StepObserver) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	cal := e.panel.Calendar
	quarters, err := cal.Range(params.StartQuarter, params.EndQuarter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrConfiguration, err)
	}
	if len(quarters) < 3 {
		return nil, fmt.Errorf("%w: need at least 3 quarters, range has %d", contracts.ErrConfiguration, len(quarters))
	}

	trainer, err := model.New(params.Model, params.modelOptions())
	if err != nil {
		return nil, err
	}
	builder := features.NewBuilder(e.panel, cluster.NewKMeans(params.ClusterSeed), features.Options{
		ClusterCount: params.ClusterCount,
		WindowDays:   params.WindowDays,
	})

	e.logger.WithFields(map[string]interface{}{
		"k":              params.K,
		"model":          params.Model,
		"random_state":   params.RandomState,
		"sell_threshold": params.SellThreshold,
		"relative":       params.Relative,
		"from":           quarters[0].String(),
		"to":             quarters[len(quarters)-1].String(),
	}).Info("Starting backtest")

	startTime := time.Now()
	result := &Result{Params: params, Quarters: quarters}

	var open []Position
	for i := 0; i+2 < len(quarters); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		report, err := e.step(ctx, i, quarters, params, builder, trainer, &open, result)
		if err != nil {
			if !contracts.IsRecoverable(err) {
				return nil, err
			}
			report.Skipped = true
			report.Reason = err.Error()
			result.Skipped = append(result.Skipped, contracts.NewSkip(contracts.StageTrain, report.Train, "", time.Time{}, err))
			e.logger.WithFields(map[string]interface{}{
				"train":   report.Train,
				"feature": report.Feature,
				"reason":  err.Error(),
			}).Warn("Step skipped")
		} else {
			e.logger.WithFields(map[string]interface{}{
				"train":      report.Train,
				"feature":    report.Feature,
				"eval":       report.Eval,
				"train_rows": report.TrainRows,
				"buys":       len(report.Buys),
				"sells":      len(report.Sells),
				"open":       len(open),
			}).Debug("Step completed")
		}

		result.Steps = append(result.Steps, report)
		for _, o := range observers {
			o.OnStep(report)
		}
	}
	result.Open = open

	baselines, skips := Baselines(e.panel, quarters, params.benchmark())
	result.Baselines = baselines
	result.Skipped = append(result.Skipped, skips...)

	trades, skips := Reconcile(result.Buys, result.Sells, e.panel.Prices, baselines)
	result.Trades = trades
	result.Skipped = append(result.Skipped, skips...)
	result.Duration = time.Since(startTime)

	e.logger.WithFields(map[string]interface{}{
		"duration": result.Duration.Seconds(),
		"steps":    len(result.Steps),
		"buys":     len(result.Buys),
		"sells":    len(result.Sells),
		"trades":   len(result.Trades),
		"skipped":  len(result.Skipped),
	}).Info("Backtest completed")

	return result, nil
}

func (e *Engine) step(
	ctx context.Context,
	i int,
	quarters []calendar.Quarter,
	params Params,
	builder *features.Builder,
	trainer model.Trainer,
	open *[]Position,
	result *Result,
) (StepReport, error) {
	train, feat, eval := quarters[i], quarters[i+1], quarters[i+2]
	report := StepReport{Index: i, Train: train.String(), Feature: feat.String(), Eval: eval.String()}

	cal := e.panel.Calendar
	buyDate, err := cal.DateOf(feat)
	if err != nil {
		return report, err
	}
	sellDate, err := cal.DateOf(eval)
	if err != nil {
		return report, err
	}

	columns, err := builder.Columns([]calendar.Quarter{train, feat, eval}, params.FundamentalsOnly)
	if err != nil {
		return report, err
	}

	trainTable, err := builder.Build(ctx, train, columns, params.Relative)
	if trainTable != nil {
		result.Skipped = append(result.Skipped, trainTable.Skipped...)
	}
	if err != nil {
		return report, err
	}
	scoreTable, err := builder.BuildScoring(ctx, feat, columns)
	if scoreTable != nil {
		result.Skipped = append(result.Skipped, scoreTable.Skipped...)
	}
	if err != nil {
		return report, err
	}
	report.TrainRows = len(trainTable.Rows)

	X, y := trainTable.Matrix()
	scorer, err := trainer.Fit(ctx, X, y)
	if err != nil {
		return report, err
	}
	Xs, _ := scoreTable.Matrix()
	scores, err := scorer.Score(Xs)
	if err != nil {
		return report, err
	}
	ranking := Rank(scoreTable.Rows, scores)
	report.Ranking = ranking

	// buys first: a fresh position can be closed in the same step
	for _, r := range TopK(ranking, params.K) {
		pt, err := e.panel.Prices.PriceOnOrAfter(r.Symbol, buyDate)
		if err != nil {
			result.Skipped = append(result.Skipped, contracts.NewSkip(contracts.StageBuy, feat.String(), r.Symbol, buyDate, err))
			continue
		}
		ev := Event{Quarter: feat.String(), Symbol: r.Symbol, Date: pt.Date, Price: pt.Price, Confidence: r.Score}
		report.Buys = append(report.Buys, ev)
		*open = append(*open, Position{
			Symbol:       r.Symbol,
			BuyPrice:     pt.Price,
			PurchaseDate: pt.Date,
			Quarter:      feat.String(),
		})
	}

	bottom := Bottom(ranking, params.SellThreshold)
	kept := (*open)[:0]
	for _, pos := range *open {
		if !bottom[pos.Symbol] {
			kept = append(kept, pos)
			continue
		}
		pt, err := e.panel.Prices.PriceOnOrAfter(pos.Symbol, sellDate)
		if err != nil {
			result.Skipped = append(result.Skipped, contracts.NewSkip(contracts.StageSell, eval.String(), pos.Symbol, sellDate, err))
			kept = append(kept, pos)
			continue
		}
		report.Sells = append(report.Sells, Event{
			Quarter: eval.String(),
			Symbol:  pos.Symbol,
			Date:    pt.Date,
			Price:   pt.Price,
			Gain:    (pt.Price - pos.BuyPrice) / pos.BuyPrice,
		})
	}
	*open = kept

	result.Buys = append(result.Buys, report.Buys...)
	result.Sells = append(result.Sells, report.Sells...)
	return report, nil
}
