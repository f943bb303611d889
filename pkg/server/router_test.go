package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erain9/tinyme/pkg/logging"
	"github.com/erain9/tinyme/pkg/messaging"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiEnv struct {
	router    http.Handler
	publisher *messaging.MockPublisher
	engine    *Engine
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	repo := newRepository()
	publisher := messaging.NewMockPublisher()
	metrics := NewMetrics()

	engine := NewEngine(16, zerolog.Nop())
	go engine.Run(context.Background())
	t.Cleanup(engine.Stop)

	svc := NewService(engine, NewOrderHandler(repo, publisher, metrics), repo)
	feed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	return &apiEnv{
		router:    NewRouter(svc, metrics, feed),
		publisher: publisher,
		engine:    engine,
	}
}

func (env *apiEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

func decodeEvents(t *testing.T, rr *httptest.ResponseRecorder) []*messaging.Event {
	t.Helper()
	var resp eventsResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp.Events
}

const sellOrder = `{
	"requestId": 1,
	"requestType": "NEW_ORDER",
	"securityIsin": "ABC",
	"orderId": 1,
	"side": "SELL",
	"quantity": 10,
	"price": 100,
	"brokerId": 2,
	"shareholderId": 2
}`

const buyOrder = `{
	"requestId": 2,
	"requestType": "NEW_ORDER",
	"securityIsin": "ABC",
	"orderId": 2,
	"side": "BUY",
	"quantity": 4,
	"price": 100,
	"brokerId": 1,
	"shareholderId": 1
}`

func TestAPI_EnterOrder(t *testing.T) {
	env := newAPIEnv(t)

	rr := env.do(t, http.MethodPost, "/orders", sellOrder)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(logging.RequestIDHeader))
	events := decodeEvents(t, rr)
	require.Len(t, events, 1)
	assert.Equal(t, messaging.EventOrderAccepted, events[0].Type)

	rr = env.do(t, http.MethodPost, "/orders", buyOrder)
	require.Equal(t, http.StatusOK, rr.Code)
	events = decodeEvents(t, rr)
	require.Len(t, events, 2)
	assert.Equal(t, messaging.EventOrderExecuted, events[1].Type)
	assert.Equal(t, int64(4), events[1].Trades[0].Quantity)

	assert.Len(t, env.publisher.Events(), 3)
}

func TestAPI_EnterOrderRejected(t *testing.T) {
	env := newAPIEnv(t)

	rr := env.do(t, http.MethodPost, "/orders", strings.Replace(sellOrder, `"quantity": 10`, `"quantity": 0`, 1))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	events := decodeEvents(t, rr)
	require.Len(t, events, 1)
	assert.Equal(t, messaging.EventOrderRejected, events[0].Type)
	assert.NotEmpty(t, events[0].Errors)
}

func TestAPI_MalformedBody(t *testing.T) {
	env := newAPIEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"unknown field", `{"bogus": 1}`},
		{"bad side", `{"side": "SIDEWAYS"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			var resp errorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, "invalid_request", resp.Error)
		})
	}
}

func TestAPI_DeleteOrder(t *testing.T) {
	env := newAPIEnv(t)
	env.do(t, http.MethodPost, "/orders", sellOrder)

	body := `{"requestId": 3, "securityIsin": "ABC", "side": "SELL", "orderId": 1}`
	rr := env.do(t, http.MethodDelete, "/orders", body)
	require.Equal(t, http.StatusOK, rr.Code)
	events := decodeEvents(t, rr)
	require.Len(t, events, 1)
	assert.Equal(t, messaging.EventOrderDeleted, events[0].Type)

	rr = env.do(t, http.MethodDelete, "/orders", body)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestAPI_ChangeState(t *testing.T) {
	env := newAPIEnv(t)

	rr := env.do(t, http.MethodPut, "/securities/ABC/state", `{"targetState": "AUCTION"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	events := decodeEvents(t, rr)
	require.Len(t, events, 1)
	assert.Equal(t, "AUCTION", events[0].State)

	rr = env.do(t, http.MethodGet, "/securities/ABC", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var view securityView
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
	assert.Equal(t, "AUCTION", view.State.String())

	rr = env.do(t, http.MethodPut, "/securities/XYZ/state", `{"targetState": "AUCTION"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_Book(t *testing.T) {
	env := newAPIEnv(t)
	env.do(t, http.MethodPost, "/orders", sellOrder)

	rr := env.do(t, http.MethodGet, "/securities/ABC/book", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var book struct {
		ISIN         string            `json:"isin"`
		Bids         []json.RawMessage `json:"bids"`
		Asks         []json.RawMessage `json:"asks"`
		InactiveBids []json.RawMessage `json:"inactiveBids"`
		OpeningPrice *int64            `json:"openingPrice"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&book))
	assert.Equal(t, "ABC", book.ISIN)
	assert.Empty(t, book.Bids)
	assert.NotNil(t, book.InactiveBids)
	require.Len(t, book.Asks, 1)
	assert.Contains(t, string(book.Asks[0]), `"quantity":10`)
	assert.Nil(t, book.OpeningPrice)

	rr = env.do(t, http.MethodGet, "/securities/XYZ/book", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_ReferenceData(t *testing.T) {
	env := newAPIEnv(t)
	env.do(t, http.MethodPost, "/orders", sellOrder)
	env.do(t, http.MethodPost, "/orders", buyOrder)

	rr := env.do(t, http.MethodGet, "/brokers/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var broker brokerView
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&broker))
	assert.Equal(t, "buyer", broker.Name)
	assert.Equal(t, fpdecimal.FromInt(99_600).String(), broker.Credit)

	rr = env.do(t, http.MethodGet, "/shareholders/2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var holder shareholderView
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&holder))
	assert.Equal(t, int64(9_996), holder.Positions["ABC"])

	rr = env.do(t, http.MethodGet, "/brokers", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var brokers []brokerView
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&brokers))
	assert.Len(t, brokers, 3)

	rr = env.do(t, http.MethodGet, "/securities", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var securities []securityView
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&securities))
	require.Len(t, securities, 1)
	assert.Equal(t, int64(100), securities[0].LastTradePrice)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/brokers/42", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/shareholders/42", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/brokers/abc", "").Code)
}

func TestAPI_Operational(t *testing.T) {
	env := newAPIEnv(t)

	rr := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	env.do(t, http.MethodPost, "/orders", sellOrder)
	rr = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `tinyme_requests_total{result="accepted",type="NEW_ORDER"} 1`)
	assert.Contains(t, body, `tinyme_events_published_total{type="ORDER_ACCEPTED"} 1`)

	rr = env.do(t, http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusTeapot, rr.Code)
}

func TestAPI_EngineStopped(t *testing.T) {
	env := newAPIEnv(t)
	env.engine.Stop()

	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(sellOrder))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestAPI_UnexpectedErrorIsLoggedAndHidden(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	req := httptest.NewRequest(http.MethodGet, "/securities", nil)
	req = req.WithContext(logging.WithRequestID(req.Context(), "req-7"))
	rr := httptest.NewRecorder()
	writeEngineError(rr, req, errors.New("disk on fire"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "disk on fire")
	assert.Contains(t, buf.String(), "disk on fire")
	assert.Contains(t, buf.String(), "req-7")
}
