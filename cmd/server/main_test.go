package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/erain9/tinyme/config"
	redisstore "github.com/erain9/tinyme/pkg/backend/redis"
	"github.com/erain9/tinyme/pkg/testutil"
	"github.com/nikolaydubina/fpdecimal"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeed = `
securities:
  - isin: ABC
    tickSize: 10
    lotSize: 5
brokers:
  - id: 1
    name: alpha
    credit: 1000000
  - id: 2
    name: beta
    credit: 1000000
shareholders:
  - id: 1
    name: alice
    positions:
      ABC: 1000
  - id: 2
    name: bob
    positions:
      ABC: 1000
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSeed), 0o600))

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Seed.Path = path
	return cfg
}

func TestNewAppLoadsSeed(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer a.close()

	security := a.repo.FindSecurity("ABC")
	require.NotNil(t, security)
	assert.Equal(t, int64(10), security.TickSize())
	assert.Equal(t, int64(5), security.LotSize())
	assert.NotNil(t, a.repo.FindBroker(2))
	assert.Equal(t, int64(1000), a.repo.FindShareholder(1).Position("ABC"))
	assert.Equal(t, 1, a.publisher.Len(), "only the websocket hub without kafka or nats")
	assert.Nil(t, a.consumer)
	assert.Nil(t, a.store)
}

func TestNewAppMissingSeed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Seed.Path = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := newApp(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestAppServesOrders(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	defer a.close()

	go a.engine.Run(context.Background())
	defer a.engine.Stop()

	srv := httptest.NewServer(a.router)
	defer srv.Close()

	post := func(body string) *http.Response {
		resp, err := http.Post(srv.URL+"/orders", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		return resp
	}

	resp := post(`{"requestId":1,"requestType":"NEW_ORDER","securityIsin":"ABC","orderId":1,
		"side":"SELL","quantity":50,"price":1000,"brokerId":2,"shareholderId":2}`)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = post(`{"requestId":2,"requestType":"NEW_ORDER","securityIsin":"ABC","orderId":2,
		"side":"BUY","quantity":20,"price":1000,"brokerId":1,"shareholderId":1}`)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Events []struct {
			Type   string `json:"type"`
			Trades []struct {
				Quantity int64 `json:"quantity"`
			} `json:"trades"`
		} `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Events, 2)
	assert.Equal(t, "ORDER_EXECUTED", body.Events[1].Type)
	assert.Equal(t, int64(20), body.Events[1].Trades[0].Quantity)

	// lot size 5 rejects 7 shares
	resp = post(`{"requestId":3,"requestType":"NEW_ORDER","securityIsin":"ABC","orderId":3,
		"side":"BUY","quantity":7,"price":1000,"brokerId":1,"shareholderId":1}`)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAppPersistsToRedis(t *testing.T) {
	addr := testutil.RedisAddr()
	testutil.SkipIfRedisUnavailable(t, addr)

	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = addr
	cfg.Redis.DB = 14
	cfg.Redis.Prefix = "test:app"

	client := redisstore.NewClient(redisstore.Options{Addr: addr, DB: 14})
	require.NoError(t, client.FlushDB(context.Background()).Err())
	defer client.Close()

	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, a.store)

	go a.engine.Run(context.Background())
	srv := httptest.NewServer(a.router)
	for _, body := range []string{
		`{"requestId":1,"requestType":"NEW_ORDER","securityIsin":"ABC","orderId":1,"side":"SELL","quantity":50,"price":1000,"brokerId":2,"shareholderId":2}`,
		`{"requestId":2,"requestType":"NEW_ORDER","securityIsin":"ABC","orderId":2,"side":"BUY","quantity":20,"price":1000,"brokerId":1,"shareholderId":1}`,
	} {
		resp, err := http.Post(srv.URL+"/orders", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	srv.Close()
	a.engine.Stop()
	a.close()

	// a second start restores the snapshot instead of the seed
	cfg.Seed.Path = ""
	b, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer b.close()

	assert.Equal(t, int64(1000), b.repo.FindSecurity("ABC").LastTradePrice())
	assert.Equal(t, int64(1020), b.repo.FindShareholder(1).Position("ABC"))
	assert.True(t, b.repo.FindBroker(1).Credit().Equal(fpdecimal.FromInt(1_000_000-20_000)))
}
