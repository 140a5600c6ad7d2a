package strategyconfig

import (
	"fmt"
	"math"
	"time"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/model"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.StrategyID == "" {
		return ValidationError{"meta.strategy_id", "required"}
	}

	// === Clustering ===
	if cfg.Clustering.K <= 0 {
		return ValidationError{"clustering.k", "must be > 0"}
	}

	// === Model ===
	if _, err := model.New(cfg.Model.ID, model.Options{}); err != nil {
		return ValidationError{"model.id", err.Error()}
	}
	if cfg.Model.Trees < 0 || cfg.Model.MaxDepth < 0 || cfg.Model.Workers < 0 {
		return ValidationError{"model", "trees, max_depth and workers must be >= 0"}
	}

	// === Labels ===
	if cfg.Labels.WindowDays < 0 {
		return ValidationError{"labels.window_days", "must be >= 0"}
	}

	// === Selection ===
	if cfg.Selection.TopK <= 0 {
		return ValidationError{"selection.top_k", "must be > 0"}
	}
	if !(cfg.Selection.SellThreshold >= 0 && cfg.Selection.SellThreshold <= 1) {
		return ValidationError{"selection.sell_threshold", "must be in [0, 1]"}
	}

	// === Portfolio ===
	if !(cfg.Portfolio.InitialCapital > 0) || math.IsInf(cfg.Portfolio.InitialCapital, 0) {
		return ValidationError{"portfolio.initial_capital", "must be > 0"}
	}

	// === Range ===
	var start, end calendar.Quarter
	var err error
	if cfg.Range.StartQuarter != "" {
		if start, err = calendar.ParseQuarter(cfg.Range.StartQuarter); err != nil {
			return ValidationError{"range.start_quarter", err.Error()}
		}
	}
	if cfg.Range.EndQuarter != "" {
		if end, err = calendar.ParseQuarter(cfg.Range.EndQuarter); err != nil {
			return ValidationError{"range.end_quarter", err.Error()}
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return ValidationError{"range", "start_quarter must not be after end_quarter"}
	}

	// === Calendar ===
	for i, q := range cfg.Calendar {
		if _, err := calendar.ParseQuarter(q.Quarter); err != nil {
			return ValidationError{fmt.Sprintf("calendar[%d].quarter", i), err.Error()}
		}
		if _, err := time.Parse(calendar.DateLayout, q.Date); err != nil {
			return ValidationError{fmt.Sprintf("calendar[%d].date", i), "must be YYYY-MM-DD"}
		}
	}
	if len(cfg.Calendar) > 0 {
		if _, err := cfg.BuildCalendar(); err != nil {
			return ValidationError{"calendar", err.Error()}
		}
	}

	return nil
}

// Warn returns recommendations that do not block a run
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if cfg.Clustering.K > 0 && cfg.Selection.TopK > cfg.Clustering.K*10 {
		warnings = append(warnings, Warning{
			Code:    "TOP_K_LARGE",
			Message: fmt.Sprintf("top_k=%d is large relative to %d clusters", cfg.Selection.TopK, cfg.Clustering.K),
		})
	}
	if cfg.Selection.SellThreshold == 0 {
		warnings = append(warnings, Warning{
			Code:    "NO_SELLS",
			Message: "sell_threshold=0 never closes positions; every trade is held to the end",
		})
	}
	if cfg.Model.Trees > 0 && cfg.Model.Trees < 20 {
		warnings = append(warnings, Warning{
			Code:    "FEW_TREES",
			Message: fmt.Sprintf("trees=%d gives noisy rankings", cfg.Model.Trees),
		})
	}
	if !cfg.Labels.Relative && cfg.Labels.WindowDays > 0 && cfg.Labels.WindowDays < 30 {
		warnings = append(warnings, Warning{
			Code:    "SHORT_WINDOW",
			Message: "outright labels over less than 30 days are dominated by noise",
		})
	}

	return warnings
}
