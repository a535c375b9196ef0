package auditor

import "errors"

var (
	errNilState  = errors.New("auditor: state not configured")
	errNilOracle = errors.New("auditor: oracle not configured")

	// ErrNotAdmin is returned when a privileged call comes from an account
	// other than the auditor admin.
	ErrNotAdmin = errors.New("auditor: caller is not admin")
	// ErrInvalidParameter is returned for out-of-range risk parameters.
	ErrInvalidParameter = errors.New("auditor: invalid parameter")

	ErrMarketAlreadyListed = errors.New("auditor: market already listed")
	ErrMarketLimit         = errors.New("auditor: market limit reached")
	ErrMarketNotListed     = errors.New("auditor: market not listed")
	// ErrNotMarket is returned when a listed market has no attached ledger
	// in this process.
	ErrNotMarket = errors.New("auditor: market not attached")

	ErrDebtNotZero           = errors.New("auditor: debt not zero")
	ErrInsufficientLiquidity = errors.New("auditor: insufficient liquidity")
	ErrInsufficientShortfall = errors.New("auditor: account has no shortfall")
	ErrLiquidatorIsBorrower  = errors.New("auditor: liquidator is borrower")
	ErrSeizeExceedsBalance   = errors.New("auditor: seize exceeds borrower collateral")
)
