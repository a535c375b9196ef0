package lending

import "errors"

var (
	errNilState   = errors.New("lending: state not configured")
	errNilAuditor = errors.New("lending: auditor not configured")

	// ErrReentrant is returned when a mutating entry point is invoked while
	// another one is executing on the same market.
	ErrReentrant = errors.New("lending: reentrant call")
	// ErrNotAdmin is returned when a privileged setter is called by an
	// account other than the market admin.
	ErrNotAdmin = errors.New("lending: caller is not admin")
	// ErrInvalidParameter is returned by admin setters for out-of-range values.
	ErrInvalidParameter = errors.New("lending: invalid parameter")

	ErrZeroAmount   = errors.New("lending: amount must be positive")
	ErrZeroDeposit  = errors.New("lending: deposit mints zero shares")
	ErrZeroWithdraw = errors.New("lending: withdraw burns zero shares")
	ErrZeroRepay    = errors.New("lending: repay settles zero debt")

	ErrInvalidMaturity = errors.New("lending: maturity not aligned to interval")
	ErrPoolMatured     = errors.New("lending: maturity pool matured")
	ErrPoolNotReady    = errors.New("lending: maturity pool not open yet")
	// ErrMaturityOverflow is returned when an account's maturities span more
	// than the packed set can address.
	ErrMaturityOverflow = errors.New("lending: maturity range overflow")

	// ErrInsufficientProtocolLiquidity is returned when the floating pool
	// cannot cover a withdrawal or backup borrow.
	ErrInsufficientProtocolLiquidity = errors.New("lending: insufficient protocol liquidity")
	ErrInsufficientYield             = errors.New("lending: yield below requested minimum")
	ErrFeeExceedsMax                 = errors.New("lending: fee exceeds requested maximum")
	ErrRepayExceedsMax               = errors.New("lending: repay exceeds requested maximum")

	ErrTokensMoreThanBalance = errors.New("lending: amount exceeds balance")
	ErrOverpayment           = errors.New("lending: repay exceeds outstanding debt")
	ErrSeizeExceedsBalance   = errors.New("lending: seize exceeds borrower balance")
)
