package messaging

import (
	"fmt"

	"github.com/erain9/tinyme/pkg/core"
)

// RequestType names the payload of a Request envelope
type RequestType string

// Request types
const (
	RequestEnterOrder          RequestType = "ENTER_ORDER"
	RequestDeleteOrder         RequestType = "DELETE_ORDER"
	RequestChangeMatchingState RequestType = "CHANGE_MATCHING_STATE"
)

// Request is the envelope inbound requests travel in over a message bus
type Request struct {
	Type                RequestType                      `json:"type"`
	EnterOrder          *core.EnterOrderRequest          `json:"enterOrder,omitempty"`
	DeleteOrder         *core.DeleteOrderRequest         `json:"deleteOrder,omitempty"`
	ChangeMatchingState *core.ChangeMatchingStateRequest `json:"changeMatchingState,omitempty"`
}

// Validate checks that the payload named by Type is present
func (r *Request) Validate() error {
	var ok bool
	switch r.Type {
	case RequestEnterOrder:
		ok = r.EnterOrder != nil
	case RequestDeleteOrder:
		ok = r.DeleteOrder != nil
	case RequestChangeMatchingState:
		ok = r.ChangeMatchingState != nil
	default:
		return fmt.Errorf("%w: request type %q", core.ErrInvalidArgument, r.Type)
	}
	if !ok {
		return fmt.Errorf("%w: %s request without payload", core.ErrInvalidArgument, r.Type)
	}
	return nil
}
