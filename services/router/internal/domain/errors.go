package domain

import (
	"errors"
	"fmt"
)

// Kind groups abort codes so callers can map them to transport responses.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindInsufficient Kind = "insufficient"
	KindOracle       Kind = "oracle"
	KindSlippage     Kind = "slippage"
	KindLedger       Kind = "ledger"
	KindAuth         Kind = "auth"
	KindNotFound     Kind = "not_found"
	KindInternal     Kind = "internal"
)

// Error is an abort signal with a stable numeric code. Two errors match under
// errors.Is when their codes match, so wrapped detail never hides the code.
type Error struct {
	Code    uint16
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

func newError(code uint16, kind Kind, message string) *Error {
	return &Error{Code: code, Kind: kind, Message: message}
}

// Wrapf returns a copy of base with extra detail appended to the message.
func Wrapf(base *Error, format string, args ...any) error {
	return &Error{
		Code:    base.Code,
		Kind:    base.Kind,
		Message: base.Message + ": " + fmt.Sprintf(format, args...),
	}
}

// KindOf reports the taxonomy kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// CodeOf reports the abort code of err, or 0 for foreign errors.
func CodeOf(err error) uint16 {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return 0
}

var (
	ErrOrderBelowMinimum       = newError(1, KindValidation, "order quantity below pool minimum size")
	ErrQuantityNotLotMultiple  = newError(2, KindValidation, "order quantity is not a multiple of lot size")
	ErrPriceNotTickMultiple    = newError(3, KindValidation, "order price is not a multiple of tick size")
	ErrInvalidSlippage         = newError(4, KindValidation, "slippage out of range")
	ErrUnsupportedExpiration   = newError(5, KindValidation, "orders with finite expiration are not supported")
	ErrUnsupportedSelfMatching = newError(6, KindValidation, "self matching option not supported")
	ErrInvalidFeeRate          = newError(7, KindValidation, "fee rate out of range")
	ErrInvalidOrder            = newError(8, KindValidation, "invalid order parameters")
	ErrInvalidDiscount         = newError(9, KindValidation, "discount rate exceeds pool maximum")
	ErrCoinTypeMismatch        = newError(10, KindValidation, "coin type mismatch")

	ErrInsufficientDeepReserve  = newError(20, KindInsufficient, "insufficient deep in wallet, balance manager and reserve")
	ErrInsufficientCoverageFee  = newError(21, KindInsufficient, "insufficient funds to pay coverage fee")
	ErrInsufficientInputCoin    = newError(22, KindInsufficient, "insufficient input coin for order")
	ErrInsufficientProtocolFee  = newError(23, KindInsufficient, "insufficient funds to pay protocol fee")
	ErrReserveWithdrawExceeds   = newError(24, KindInsufficient, "withdrawal exceeds reserve balance")
	ErrInsufficientBalance      = newError(25, KindInsufficient, "insufficient balance")
	ErrFeeBucketWithdrawExceeds = newError(26, KindInsufficient, "withdrawal exceeds fee bucket balance")

	ErrOraclePriceNonPositive = newError(30, KindOracle, "oracle price is not positive")
	ErrOracleLowConfidence    = newError(31, KindOracle, "oracle price confidence interval too wide")
	ErrOracleStale            = newError(32, KindOracle, "oracle price is stale")
	ErrOracleExponent         = newError(33, KindOracle, "oracle price exponent must not be positive")
	ErrOracleUnavailable      = newError(34, KindOracle, "oracle price unavailable")
	ErrReferencePoolPrice     = newError(35, KindOracle, "reference pool price unavailable")
	ErrOracleFeedMismatch     = newError(36, KindOracle, "oracle feed id mismatch")
	ErrZeroExchangeRate       = newError(37, KindOracle, "exchange rate computed as zero")

	ErrDeepRequiredSlippage = newError(40, KindSlippage, "deep required exceeds estimate with slippage")
	ErrCoverageFeeSlippage  = newError(41, KindSlippage, "coverage fee exceeds estimate with slippage")

	ErrUnsettledFeeExists     = newError(50, KindLedger, "unsettled fee already exists for order")
	ErrZeroUnsettledFee       = newError(51, KindLedger, "unsettled fee must not be zero")
	ErrOrderNotLive           = newError(52, KindLedger, "order is not live or partially filled")
	ErrOrderFullyExecuted     = newError(53, KindLedger, "order is fully executed")
	ErrZeroMakerQuantity      = newError(54, KindLedger, "maker quantity is zero")
	ErrFilledExceedsOrder     = newError(55, KindLedger, "filled quantity not below order quantity")
	ErrCoverageFeeZero        = newError(56, KindLedger, "coverage fee is zero for non-zero reserve draw")
	ErrUnfilledExceedsMaker   = newError(57, KindLedger, "unfilled quantity exceeds recorded maker quantity")
	ErrUnsettledCoinMismatch  = newError(58, KindLedger, "unsettled fee coin type mismatch")

	ErrNotOwner              = newError(60, KindAuth, "caller does not own balance manager")
	ErrUnauthorized          = newError(61, KindAuth, "caller does not satisfy admin policy")
	ErrVersionNotAllowed     = newError(62, KindAuth, "package version not allowed")
	ErrVersionDisabled       = newError(63, KindAuth, "package version permanently disabled")
	ErrCannotDisableCurrent  = newError(64, KindAuth, "cannot disable current version")
	ErrVersionAlreadyEnabled = newError(65, KindAuth, "version already enabled")
	ErrVersionNotEnabled     = newError(66, KindAuth, "version not enabled")
	ErrTicketNotReady        = newError(67, KindAuth, "ticket delay has not elapsed")
	ErrTicketExpired         = newError(68, KindAuth, "ticket expired")
	ErrTicketTypeMismatch    = newError(69, KindAuth, "ticket type mismatch")
	ErrTicketNotFound        = newError(70, KindAuth, "ticket not found")

	ErrPoolNotFound    = newError(80, KindNotFound, "pool not found")
	ErrOrderNotFound   = newError(81, KindNotFound, "order not found")
	ErrManagerNotFound = newError(82, KindNotFound, "balance manager not found")

	ErrArithmeticOverflow = newError(90, KindInternal, "arithmetic overflow")
)
