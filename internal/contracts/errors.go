package contracts

import "errors"

// Error taxonomy shared by every stage of the backtest.
// Recoverable errors are turned into Skip records at the stage boundary;
// configuration errors abort the run before any state is produced.
var (
	// ErrDataGap marks a missing price or fundamentals row for one symbol/date.
	ErrDataGap = errors.New("data gap")

	// ErrInsufficientData marks a quarter that cannot be trained or scored.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrConfiguration marks invalid run parameters.
	ErrConfiguration = errors.New("configuration error")

	// ErrOutOfRange is returned when navigating past the known quarter calendar.
	ErrOutOfRange = errors.New("quarter out of range")

	// ErrNumericDegeneracy marks a statistic that is undefined (reported as NaN).
	ErrNumericDegeneracy = errors.New("numeric degeneracy")
)

// IsRecoverable reports whether err should be skipped rather than abort a run
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrDataGap) || errors.Is(err, ErrInsufficientData)
}
