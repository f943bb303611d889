package core

import (
	"fmt"
	"strings"
	"time"
)

// OrderEntryType tells new orders and updates apart
type OrderEntryType int

// Order entry types
const (
	NewOrderEntry OrderEntryType = iota
	UpdateOrderEntry
)

// String returns entry type as string
func (t OrderEntryType) String() string {
	switch t {
	case NewOrderEntry:
		return "NEW_ORDER"
	case UpdateOrderEntry:
		return "UPDATE_ORDER"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler
func (t OrderEntryType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *OrderEntryType) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "NEW_ORDER", "NEW":
		*t = NewOrderEntry
	case "UPDATE_ORDER", "UPDATE":
		*t = UpdateOrderEntry
	default:
		return fmt.Errorf("%w: request type %q", ErrInvalidArgument, string(text))
	}
	return nil
}

// EnterOrderRequest enters a new order or updates an existing one
type EnterOrderRequest struct {
	RequestID                int64          `json:"requestId"`
	Type                     OrderEntryType `json:"requestType"`
	SecurityISIN             string         `json:"securityIsin"`
	OrderID                  int64          `json:"orderId"`
	EntryTime                time.Time      `json:"entryTime"`
	Side                     Side           `json:"side"`
	Quantity                 int64          `json:"quantity"`
	Price                    int64          `json:"price"`
	BrokerID                 int64          `json:"brokerId"`
	ShareholderID            int64          `json:"shareholderId"`
	PeakSize                 int64          `json:"peakSize"`
	MinimumExecutionQuantity int64          `json:"minimumExecutionQuantity"`
	StopPrice                int64          `json:"stopPrice"`
}

// DeleteOrderRequest removes a resting or parked order
type DeleteOrderRequest struct {
	RequestID    int64  `json:"requestId"`
	SecurityISIN string `json:"securityIsin"`
	Side         Side   `json:"side"`
	OrderID      int64  `json:"orderId"`
}

// ChangeMatchingStateRequest switches a security between continuous
// trading and auction
type ChangeMatchingStateRequest struct {
	SecurityISIN string        `json:"securityIsin"`
	TargetState  MatchingState `json:"targetState"`
}

// ValidationError carries every reason a request was refused
type ValidationError struct {
	Reasons []string
	// Err optionally names a more specific sentinel, e.g. ErrOrderNotFound
	Err error
}

// NewValidationError creates a validation error from reasons
func NewValidationError(reasons ...string) *ValidationError {
	return &ValidationError{Reasons: reasons}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidRequest, strings.Join(e.Reasons, "; "))
}

// Is makes every ValidationError match ErrInvalidRequest
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidateEnterOrder checks a request against the reference data. All
// violations are reported together.
func ValidateEnterOrder(req EnterOrderRequest, repo Repository) error {
	var reasons []string
	if req.OrderID <= 0 {
		reasons = append(reasons, MsgInvalidOrderID)
	}
	if req.Quantity <= 0 {
		reasons = append(reasons, MsgOrderQuantityNotPositive)
	}
	if req.Price <= 0 {
		reasons = append(reasons, MsgOrderPriceNotPositive)
	}
	if security := repo.FindSecurity(req.SecurityISIN); security == nil {
		reasons = append(reasons, MsgUnknownSecurityISIN)
	} else {
		if req.Quantity%security.LotSize() != 0 {
			reasons = append(reasons, MsgQuantityNotMultipleOfLotSize)
		}
		if req.Price%security.TickSize() != 0 {
			reasons = append(reasons, MsgPriceNotMultipleOfTickSize)
		}
	}
	if repo.FindBroker(req.BrokerID) == nil {
		reasons = append(reasons, MsgUnknownBrokerID)
	}
	if repo.FindShareholder(req.ShareholderID) == nil {
		reasons = append(reasons, MsgUnknownShareholderID)
	}
	if req.PeakSize < 0 || req.PeakSize >= req.Quantity {
		reasons = append(reasons, MsgInvalidPeakSize)
	}
	if req.StopPrice > 0 && req.PeakSize > 0 {
		reasons = append(reasons, MsgStopLimitOrderCannotBeIceberg)
	}
	if req.StopPrice > 0 && req.MinimumExecutionQuantity > 0 {
		reasons = append(reasons, MsgCannotSpecifyMinExecForStopLimit)
	}
	if len(reasons) > 0 {
		return NewValidationError(reasons...)
	}
	return nil
}

// ValidateDeleteOrder checks the order id and ISIN of a delete request
func ValidateDeleteOrder(req DeleteOrderRequest, repo SecurityRepository) error {
	var reasons []string
	if req.OrderID <= 0 {
		reasons = append(reasons, MsgInvalidOrderID)
	}
	if repo.FindSecurity(req.SecurityISIN) == nil {
		reasons = append(reasons, MsgUnknownSecurityISIN)
	}
	if len(reasons) > 0 {
		return NewValidationError(reasons...)
	}
	return nil
}

func orderNotFound() *ValidationError {
	return &ValidationError{Reasons: []string{MsgOrderIDNotFound}, Err: ErrOrderNotFound}
}
