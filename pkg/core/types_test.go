package core

import (
	"encoding/json"
	"testing"

	"github.com/nikolaydubina/fpdecimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeString(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{Approved, "APPROVED"},
		{Executed, "EXECUTED"},
		{NotEnoughCredit, "NOT_ENOUGH_CREDIT"},
		{NotEnoughPositions, "NOT_ENOUGH_POSITIONS"},
		{NotEnoughExecutionQuantity, "NOT_ENOUGH_EXECUTION_QUANTITY"},
		{IsInactive, "IS_INACTIVE"},
		{StopLimitNotAllowedInAuction, "STOP_LIMIT_NOT_ALLOWED_IN_AUCTION"},
		{MinExecNotAllowedInAuction, "MIN_EXEC_NOT_ALLOWED_IN_AUCTION"},
		{Outcome(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.outcome.String())
		})
	}
}

func TestOutcomeSucceeded(t *testing.T) {
	assert.True(t, Executed.Succeeded())
	assert.True(t, IsInactive.Succeeded())
	assert.False(t, Approved.Succeeded())
	assert.False(t, NotEnoughCredit.Succeeded())
}

func TestRejectionMessage(t *testing.T) {
	msg, ok := RejectionMessage(NotEnoughCredit)
	assert.True(t, ok)
	assert.Equal(t, MsgBuyerHasNotEnoughCredit, msg)

	msg, ok = RejectionMessage(MinExecNotAllowedInAuction)
	assert.True(t, ok)
	assert.Equal(t, MsgMinExecNotAllowedInAuction, msg)

	_, ok = RejectionMessage(Executed)
	assert.False(t, ok)
	_, ok = RejectionMessage(IsInactive)
	assert.False(t, ok)
}

func TestParseMatchingState(t *testing.T) {
	state, err := ParseMatchingState("auction")
	require.NoError(t, err)
	assert.Equal(t, Auction, state)

	state, err = ParseMatchingState("CONTINUOUS")
	require.NoError(t, err)
	assert.Equal(t, Continuous, state)

	_, err = ParseMatchingState("closed")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	var req ChangeMatchingStateRequest
	require.NoError(t, json.Unmarshal([]byte(`{"securityIsin":"ABC","targetState":"AUCTION"}`), &req))
	assert.Equal(t, Auction, req.TargetState)
}

func TestNewTradeAssignsLegs(t *testing.T) {
	f := newFixture()
	sell := f.order(1, Sell, 10, 100)
	buy := f.order(2, Buy, 10, 105)

	trade := NewTrade(testISIN, 100, 4, sell, buy)
	assert.Equal(t, int64(2), trade.Buy.ID())
	assert.Equal(t, int64(1), trade.Sell.ID())
	assert.Equal(t, StatusSnapshot, trade.Buy.Status())
	assert.Same(t, buy, trade.OrderOf(Buy).origin())
	assert.True(t, fpdecimal.FromInt(400).Equal(trade.TradedValue()))

	buy.DecreaseQuantity(4)
	assert.Equal(t, int64(10), trade.Buy.TotalQuantity())
}

func TestTradeMarshalJSON(t *testing.T) {
	f := newFixture()
	trade := NewTrade(testISIN, 100, 4, f.order(2, Buy, 10, 105), f.order(1, Sell, 10, 100))

	data, err := json.Marshal(trade)
	require.NoError(t, err)
	assert.JSONEq(t, `{"security":"ABC","price":100,"quantity":4,"buyOrderId":2,"sellOrderId":1}`, string(data))
}

func TestMatchResultLastTrade(t *testing.T) {
	_, ok := ExecutedResult(nil, nil).LastTrade()
	assert.False(t, ok)

	f := newFixture()
	first := NewTrade(testISIN, 100, 1, f.order(1, Buy, 5, 100), f.order(2, Sell, 5, 100))
	second := NewTrade(testISIN, 101, 2, f.order(3, Buy, 5, 101), f.order(4, Sell, 5, 101))
	last, ok := ExecutedResult(nil, []Trade{first, second}).LastTrade()
	require.True(t, ok)
	assert.Equal(t, int64(101), last.Price)
}
