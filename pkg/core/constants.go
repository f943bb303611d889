package core

import "errors"

// Errors
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrUnknownSecurity = errors.New("unknown security")
	ErrOrderNotFound   = errors.New("order not found")
)

// InvalidOpeningPrice is reported when no price would trade anything
const InvalidOpeningPrice int64 = 0

// NoTradePrice is the last trade price of a security that never traded
const NoTradePrice int64 = 0

// Rejection reasons reported back to the requester
const (
	MsgInvalidOrderID                     = "Invalid order ID"
	MsgOrderQuantityNotPositive           = "Order quantity is not-positive"
	MsgOrderPriceNotPositive              = "Order price is not-positive"
	MsgUnknownSecurityISIN                = "Unknown security ISIN"
	MsgOrderIDNotFound                    = "Order ID not found in the order book"
	MsgInvalidPeakSize                    = "Iceberg order peak size is out of range"
	MsgCannotSpecifyPeakSizeForNonIceberg = "Cannot specify peak size for a non-iceberg order"
	MsgCannotChangeMinimumExecution       = "Cannot change minimum execution quantity"
	MsgUnknownBrokerID                    = "Unknown broker ID"
	MsgUnknownShareholderID               = "Unknown shareholder ID"
	MsgBuyerHasNotEnoughCredit            = "Buyer has not enough credit"
	MsgQuantityNotMultipleOfLotSize       = "Quantity is not a multiple of security lot size"
	MsgPriceNotMultipleOfTickSize         = "Price is not a multiple of security tick size"
	MsgSellerHasNotEnoughPositions        = "Seller has not enough positions"
	MsgHasNotEnoughExecutionQuantity      = "Has not enough execution quantity"
	MsgStopLimitOrderCannotBeIceberg      = "Stop limit order cannot be iceberg"
	MsgCannotSpecifyMinExecForStopLimit   = "Cannot specify minimum execution quantity for a stop limit order"
	MsgCannotSpecifyStopPriceForNonStop   = "Cannot specify stop price for a non-stop limit order"
	MsgCannotSpecifyStopPriceForActive    = "Cannot specify stop price for activated order"
	MsgCannotDeleteInactiveOrderInAuction = "Cannot delete inactive order in auction"
	MsgStopLimitNotAllowedInAuction       = "Stop limit order is not allowed in auction state"
	MsgMinExecNotAllowedInAuction         = "Minimum execution quantity is not allowed in auction state"
)

// RejectionMessage maps a failed outcome to the reason reported to the
// requester. ok is false for outcomes that are not rejections.
func RejectionMessage(outcome Outcome) (msg string, ok bool) {
	switch outcome {
	case NotEnoughCredit:
		return MsgBuyerHasNotEnoughCredit, true
	case NotEnoughPositions:
		return MsgSellerHasNotEnoughPositions, true
	case NotEnoughExecutionQuantity:
		return MsgHasNotEnoughExecutionQuantity, true
	case StopLimitNotAllowedInAuction:
		return MsgStopLimitNotAllowedInAuction, true
	case MinExecNotAllowedInAuction:
		return MsgMinExecNotAllowedInAuction, true
	default:
		return "", false
	}
}
