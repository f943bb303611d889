package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/erain9/tinyme/pkg/core"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type config struct {
	addr        string
	isin        string
	workers     int
	orders      int
	rate        int
	basePrice   int64
	spread      int64
	quantity    int64
	buyBroker   int64
	sellBroker  int64
	buyHolder   int64
	sellHolder  int64
	httpTimeout time.Duration
}

// report holds the outcome of a run. Latencies are in microseconds.
type report struct {
	sent     int64
	accepted int64
	rejected int64
	failed   int64
	duration time.Duration
	latency  *hdrhistogram.Histogram
	firstErr error
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config{}
	flag.StringVar(&cfg.addr, "addr", "http://localhost:8080", "Server base URL")
	flag.StringVar(&cfg.isin, "isin", "ABC", "Security to trade")
	flag.IntVar(&cfg.workers, "workers", 50, "Concurrent workers")
	flag.IntVar(&cfg.orders, "orders", 200, "Orders per worker")
	flag.IntVar(&cfg.rate, "rate", 1000, "Maximum requests per second")
	flag.Int64Var(&cfg.basePrice, "price", 1000, "Mid price")
	flag.Int64Var(&cfg.spread, "spread", 5, "Ticks either side of the mid price")
	flag.Int64Var(&cfg.quantity, "qty", 10, "Order quantity")
	flag.Int64Var(&cfg.buyBroker, "buy-broker", 1, "Broker for buy orders")
	flag.Int64Var(&cfg.sellBroker, "sell-broker", 2, "Broker for sell orders")
	flag.Int64Var(&cfg.buyHolder, "buy-shareholder", 1, "Shareholder for buy orders")
	flag.Int64Var(&cfg.sellHolder, "sell-shareholder", 2, "Shareholder for sell orders")
	flag.DurationVar(&cfg.httpTimeout, "timeout", 5*time.Second, "Per-request timeout")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Info().Int("workers", cfg.workers).Int("orders_per_worker", cfg.orders).
		Int("rate", cfg.rate).Str("isin", cfg.isin).Msg("Starting load test")

	r := runLoad(ctx, cfg)
	r.log()
	if r.failed > 0 {
		os.Exit(1)
	}
}

func runLoad(ctx context.Context, cfg config) *report {
	client := &http.Client{Timeout: cfg.httpTimeout}
	limiter := rate.NewLimiter(rate.Limit(cfg.rate), cfg.rate)

	r := &report{latency: newHistogram()}
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		nextID   atomic.Int64
		firstErr sync.Once
	)

	start := time.Now()
	for w := 0; w < cfg.workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)))
			hist := newHistogram()
			defer func() {
				mu.Lock()
				r.latency.Merge(hist)
				mu.Unlock()
			}()

			for i := 0; i < cfg.orders; i++ {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				req := generateOrder(cfg, nextID.Add(1), rng)

				began := time.Now()
				rejected, err := send(ctx, client, cfg.addr, req)
				_ = hist.RecordValue(time.Since(began).Microseconds())
				atomic.AddInt64(&r.sent, 1)

				switch {
				case err != nil:
					atomic.AddInt64(&r.failed, 1)
					firstErr.Do(func() { r.firstErr = err })
				case rejected:
					atomic.AddInt64(&r.rejected, 1)
				default:
					atomic.AddInt64(&r.accepted, 1)
				}
			}
		}(w)
	}

	wg.Wait()
	r.duration = time.Since(start)
	return r
}

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, int64(time.Minute/time.Microsecond), 3)
}

// generateOrder spreads limit prices around the mid so roughly half of
// the flow crosses the book
func generateOrder(cfg config, id int64, rng *rand.Rand) core.EnterOrderRequest {
	side, broker, holder := core.Buy, cfg.buyBroker, cfg.buyHolder
	if rng.Intn(2) == 0 {
		side, broker, holder = core.Sell, cfg.sellBroker, cfg.sellHolder
	}
	price := cfg.basePrice
	if cfg.spread > 0 {
		price += rng.Int63n(2*cfg.spread+1) - cfg.spread
	}
	if price <= 0 {
		price = 1
	}
	return core.EnterOrderRequest{
		RequestID:     id,
		Type:          core.NewOrderEntry,
		SecurityISIN:  cfg.isin,
		OrderID:       id,
		EntryTime:     time.Now(),
		Side:          side,
		Quantity:      cfg.quantity,
		Price:         price,
		BrokerID:      broker,
		ShareholderID: holder,
	}
}

// send posts one order. A 422 is a business rejection, not a failure.
func send(ctx context.Context, client *http.Client, addr string, req core.EnterOrderRequest) (bool, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return false, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, addr+"/orders", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return false, nil
	case http.StatusUnprocessableEntity:
		return true, nil
	default:
		return false, fmt.Errorf("order %d: unexpected status %s", req.OrderID, resp.Status)
	}
}

func (r *report) log() {
	ev := log.Info()
	if r.failed > 0 {
		ev = log.Warn().AnErr("first_error", r.firstErr)
	}
	throughput := 0.0
	if r.duration > 0 {
		throughput = float64(r.sent) / r.duration.Seconds()
	}
	ev.Dur("duration", r.duration).
		Int64("sent", r.sent).
		Int64("accepted", r.accepted).
		Int64("rejected", r.rejected).
		Int64("failed", r.failed).
		Float64("orders_per_sec", throughput).
		Float64("mean_us", r.latency.Mean()).
		Int64("p50_us", r.latency.ValueAtQuantile(50)).
		Int64("p99_us", r.latency.ValueAtQuantile(99)).
		Int64("p999_us", r.latency.ValueAtQuantile(99.9)).
		Int64("max_us", r.latency.Max()).
		Msg("Load test completed")
}
