package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidTimeframe     ErrorCode = 102
	ErrCodeInvalidTimeRange     ErrorCode = 103
	ErrCodeMissingParameter     ErrorCode = 104
	ErrCodeInvalidSymbol        ErrorCode = 105

	// Data/Resource errors (200-299)
	ErrCodeDataNotFound    ErrorCode = 200
	ErrCodeQueryFailed     ErrorCode = 201
	ErrCodeDataUnavailable ErrorCode = 202
	ErrCodeStoreInitFailed ErrorCode = 203

	// Strategy errors (300-399)
	ErrCodeStrategyNotFound    ErrorCode = 300
	ErrCodeConditionNotFound   ErrorCode = 301
	ErrCodeStrategyConfigError ErrorCode = 302

	// Trading errors (400-499)
	ErrCodeOrderFailed      ErrorCode = 400
	ErrCodePositionNotFound ErrorCode = 401

	// Backtest errors (500-599)
	ErrCodeBacktestInProgress ErrorCode = 500
	ErrCodeBacktestNotFound   ErrorCode = 501
	ErrCodeBacktestNoSymbols  ErrorCode = 502
	ErrCodeReplayFailed       ErrorCode = 503

	// Market data errors (600-699)
	ErrCodeMarketDataFetchFailed ErrorCode = 600
	ErrCodeMarketDataParseFailed ErrorCode = 601
	ErrCodeInvalidProvider       ErrorCode = 602
	ErrCodeStreamAuthFailed      ErrorCode = 603
	ErrCodeStreamClosed          ErrorCode = 604
)
