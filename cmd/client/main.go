package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/erain9/tinyme/pkg/core"
	"github.com/erain9/tinyme/pkg/db/queue"
	"github.com/erain9/tinyme/pkg/messaging"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errUsage = errors.New("usage")

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal().Err(err).Msg("Request failed")
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: tinyme-client [-addr URL] <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  enter        Enter a new order")
	fmt.Fprintln(w, "  update       Update a resting order")
	fmt.Fprintln(w, "  delete       Delete a resting order")
	fmt.Fprintln(w, "  state        Switch a security between CONTINUOUS and AUCTION")
	fmt.Fprintln(w, "  book         Show the order book of a security")
	fmt.Fprintln(w, "  securities   List securities")
	fmt.Fprintln(w, "  broker       Show a broker and its credit")
	fmt.Fprintln(w, "  shareholder  Show a shareholder and its positions")
	fmt.Fprintln(w, "  tail         Follow the protobuf event stream on Kafka")
}

// run parses the global flags, then dispatches to the command named by the
// first positional argument
func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("tinyme-client", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	addr := fs.String("addr", "http://localhost:8080", "Server base URL")
	timeout := fs.Duration("timeout", 5*time.Second, "Per-request timeout")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	c := newClient(*addr, *timeout, out)
	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "enter":
		return c.enterOrder(ctx, core.NewOrderEntry, rest)
	case "update":
		return c.enterOrder(ctx, core.UpdateOrderEntry, rest)
	case "delete":
		return c.deleteOrder(ctx, rest)
	case "state":
		return c.changeState(ctx, rest)
	case "book":
		return c.book(ctx, rest)
	case "securities":
		return c.securities(ctx)
	case "broker":
		return c.broker(ctx, rest)
	case "shareholder":
		return c.shareholder(ctx, rest)
	case "tail":
		return c.tail(ctx, rest)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

// apiError is returned for non-2xx answers that carry no events
type apiError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
}

type client struct {
	baseURL string
	http    *http.Client
	out     io.Writer
}

func newClient(baseURL string, timeout time.Duration, out io.Writer) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		out:     out,
	}
}

// call sends body as JSON and decodes the answer into result. A 422 still
// decodes, since rejections come back as events.
func (c *client) call(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusUnprocessableEntity {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *client) enterOrder(ctx context.Context, kind core.OrderEntryType, args []string) error {
	fs := flag.NewFlagSet(kind.String(), flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	requestID := fs.Int64("request", time.Now().UnixNano(), "Request ID")
	isin := fs.String("isin", "", "Security ISIN")
	orderID := fs.Int64("id", 0, "Order ID")
	side := fs.String("side", "", "Order side (BUY/SELL)")
	quantity := fs.Int64("qty", 0, "Order quantity")
	price := fs.Int64("price", 0, "Limit price")
	broker := fs.Int64("broker", 0, "Broker ID")
	shareholder := fs.Int64("shareholder", 0, "Shareholder ID")
	peak := fs.Int64("peak", 0, "Peak size for iceberg orders")
	meq := fs.Int64("meq", 0, "Minimum execution quantity")
	stop := fs.Int64("stop", 0, "Stop price")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	var s core.Side
	if err := s.UnmarshalText([]byte(strings.ToUpper(*side))); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	req := core.EnterOrderRequest{
		RequestID:                *requestID,
		Type:                     kind,
		SecurityISIN:             *isin,
		OrderID:                  *orderID,
		EntryTime:                time.Now(),
		Side:                     s,
		Quantity:                 *quantity,
		Price:                    *price,
		BrokerID:                 *broker,
		ShareholderID:            *shareholder,
		PeakSize:                 *peak,
		MinimumExecutionQuantity: *meq,
		StopPrice:                *stop,
	}
	var resp eventsResponse
	if err := c.call(ctx, http.MethodPost, "/orders", req, &resp); err != nil {
		return err
	}
	c.printEvents(resp.Events)
	return nil
}

func (c *client) deleteOrder(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	requestID := fs.Int64("request", time.Now().UnixNano(), "Request ID")
	isin := fs.String("isin", "", "Security ISIN")
	orderID := fs.Int64("id", 0, "Order ID")
	side := fs.String("side", "", "Order side (BUY/SELL)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	var s core.Side
	if err := s.UnmarshalText([]byte(strings.ToUpper(*side))); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	req := core.DeleteOrderRequest{
		RequestID:    *requestID,
		SecurityISIN: *isin,
		Side:         s,
		OrderID:      *orderID,
	}
	var resp eventsResponse
	if err := c.call(ctx, http.MethodDelete, "/orders", req, &resp); err != nil {
		return err
	}
	c.printEvents(resp.Events)
	return nil
}

func (c *client) changeState(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: state <isin> <CONTINUOUS|AUCTION>", errUsage)
	}
	target, err := core.ParseMatchingState(strings.ToUpper(args[1]))
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	body := map[string]core.MatchingState{"targetState": target}
	var resp eventsResponse
	if err := c.call(ctx, http.MethodPut, "/securities/"+args[0]+"/state", body, &resp); err != nil {
		return err
	}
	c.printEvents(resp.Events)
	return nil
}

func (c *client) book(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: book <isin>", errUsage)
	}
	var view bookView
	if err := c.call(ctx, http.MethodGet, "/securities/"+args[0]+"/book", nil, &view); err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Fprintf(c.out, "%s  %s  tick=%d lot=%d last=%d\n",
		view.ISIN, view.State, view.TickSize, view.LotSize, view.LastTradePrice)
	if view.OpeningPrice != nil {
		fmt.Fprintf(c.out, "opening price: %d\n", *view.OpeningPrice)
	}

	c.printOrders("Bids", color.New(color.FgGreen), view.Bids)
	c.printOrders("Asks", color.New(color.FgRed), view.Asks)
	if len(view.InactiveBids)+len(view.InactiveAsks) > 0 {
		c.printOrders("Inactive", color.New(color.FgYellow), append(view.InactiveBids, view.InactiveAsks...))
	}
	return nil
}

func (c *client) securities(ctx context.Context) error {
	var views []securityView
	if err := c.call(ctx, http.MethodGet, "/securities", nil, &views); err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ISIN\tSTATE\tTICK\tLOT\tLAST")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", v.ISIN, v.State, v.TickSize, v.LotSize, v.LastTradePrice)
	}
	return w.Flush()
}

func (c *client) broker(ctx context.Context, args []string) error {
	id, err := idArg(args, "broker <id>")
	if err != nil {
		return err
	}
	var view brokerView
	if err := c.call(ctx, http.MethodGet, "/brokers/"+id, nil, &view); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "broker %d (%s) credit %s\n", view.ID, view.Name, view.Credit)
	return nil
}

func (c *client) shareholder(ctx context.Context, args []string) error {
	id, err := idArg(args, "shareholder <id>")
	if err != nil {
		return err
	}
	var view shareholderView
	if err := c.call(ctx, http.MethodGet, "/shareholders/"+id, nil, &view); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "shareholder %d (%s)\n", view.ID, view.Name)
	isins := make([]string, 0, len(view.Positions))
	for isin := range view.Positions {
		isins = append(isins, isin)
	}
	sort.Strings(isins)

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ISIN\tPOSITION")
	for _, isin := range isins {
		fmt.Fprintf(w, "%s\t%d\n", isin, view.Positions[isin])
	}
	return w.Flush()
}

// tail prints every event published to the protobuf topic until ctx is done
func (c *client) tail(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tail", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	brokers := fs.String("brokers", "localhost:9092", "Comma-separated Kafka brokers")
	topic := fs.String("topic", "tinyme-events-pb", "Protobuf event topic")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	consumer, err := queue.NewEventConsumer(queue.Config{Brokers: strings.Split(*brokers, ","), Topic: *topic})
	if err != nil {
		return err
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = consumer.Close()
	}()

	log.Info().Str("topic", *topic).Msg("Following events, press Ctrl-C to stop")
	return consumer.Consume(func(e *messaging.Event) error {
		fmt.Fprintf(c.out, "%s %s request=%d order=%d %s\n", e.Time.Format(time.TimeOnly),
			eventColor(e.Type).Sprint(e.Type), e.RequestID, e.OrderID, eventDetails(e))
		return nil
	})
}

func idArg(args []string, usage string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("%w: %s", errUsage, usage)
	}
	if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
		return "", fmt.Errorf("%w: id must be an integer", errUsage)
	}
	return args[0], nil
}

func eventColor(t messaging.EventType) *color.Color {
	switch t {
	case messaging.EventOrderRejected:
		return color.New(color.FgRed, color.Bold)
	case messaging.EventOrderExecuted, messaging.EventTrade:
		return color.New(color.FgGreen)
	case messaging.EventOrderActivated, messaging.EventOpeningPrice:
		return color.New(color.FgYellow)
	case messaging.EventSecurityStateChanged:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgWhite)
	}
}

func (c *client) printEvents(events []*messaging.Event) {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tREQUEST\tORDER\tDETAILS")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n",
			eventColor(e.Type).Sprint(e.Type), e.RequestID, e.OrderID, eventDetails(e))
	}
	_ = w.Flush()
}

func eventDetails(e *messaging.Event) string {
	switch e.Type {
	case messaging.EventOrderRejected:
		return strings.Join(e.Errors, "; ")
	case messaging.EventOrderExecuted, messaging.EventTrade:
		parts := make([]string, 0, len(e.Trades))
		for _, t := range e.Trades {
			parts = append(parts, fmt.Sprintf("%d@%d (buy %d, sell %d)", t.Quantity, t.Price, t.BuyOrderID, t.SellOrderID))
		}
		return strings.Join(parts, ", ")
	case messaging.EventOpeningPrice:
		return fmt.Sprintf("%s price=%d tradable=%d", e.SecurityISIN, e.OpeningPrice, e.TradableQuantity)
	case messaging.EventSecurityStateChanged:
		return fmt.Sprintf("%s -> %s", e.SecurityISIN, e.State)
	default:
		return e.SecurityISIN
	}
}

func (c *client) printOrders(title string, col *color.Color, orders []orderView) {
	col.Fprintf(c.out, "%s (%d)\n", title, len(orders))
	if len(orders) == 0 {
		return
	}
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "ID\tSIDE\tPRICE\tQTY\tSHOWN\tPEAK\tSTOP\tBROKER\tHOLDER\t")
	for _, o := range orders {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n",
			o.ID, o.Side, o.Price, o.Quantity, o.DisplayedQuantity, o.PeakSize, o.StopPrice, o.BrokerID, o.ShareholderID)
	}
	_ = w.Flush()
}
