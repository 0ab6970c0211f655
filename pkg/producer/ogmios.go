package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cuemby/kupo/pkg/chain"
	"github.com/cuemby/kupo/pkg/health"
	"github.com/cuemby/kupo/pkg/log"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// readTimeout bounds a single read from the bridge. A few consecutive
// timeouts count as a disconnection.
const readTimeout = 30 * time.Second

// maxConsecutiveTimeouts before the connection is declared dead.
const maxConsecutiveTimeouts = 3

// pipelineDepth is the number of nextBlock requests kept in flight.
const pipelineDepth = 50

// OgmiosConfig configures the JSON-RPC bridge client.
type OgmiosConfig struct {
	Host string
	Port int
}

// Ogmios is a Producer backed by an Ogmios JSON-RPC WebSocket.
type Ogmios struct {
	cfg      OgmiosConfig
	conn     *websocket.Conn
	health   *health.State
	logger   zerolog.Logger
	inFlight int
	nextID   atomic.Uint64
	timeouts int
}

// NewOgmios builds the bridge client. Dialing is deferred to first use so
// the HTTP surface comes up (and reports disconnected health) even while
// the bridge is unreachable; the dial itself retries with capped
// exponential backoff.
func NewOgmios(cfg OgmiosConfig, healthState *health.State) *Ogmios {
	return &Ogmios{
		cfg:    cfg,
		health: healthState,
		logger: log.WithComponent("producer"),
	}
}

// ensureConnected dials on first use.
func (o *Ogmios) ensureConnected(ctx context.Context) error {
	if o.conn != nil {
		return nil
	}
	return o.connect(ctx)
}

func (o *Ogmios) connect(ctx context.Context) error {
	url := fmt.Sprintf("ws://%s/", net.JoinHostPort(o.cfg.Host, fmt.Sprintf("%d", o.cfg.Port)))

	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(500*time.Millisecond),
		backoff.WithMaxInterval(30*time.Second),
		backoff.WithMaxElapsedTime(0),
	), ctx)

	return backoff.Retry(func() error {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			o.logger.Warn().Err(err).Str("url", url).Msg("Producer unreachable, backing off")
			o.health.SetConnection(health.StatusDisconnected)
			return err
		}
		o.conn = conn
		o.inFlight = 0
		o.timeouts = 0
		o.health.SetConnection(health.StatusConnected)
		o.logger.Info().Str("url", url).Msg("Connected to producer")
		return nil
	}, policy)
}

// request is the JSON-RPC 2.0 envelope spoken by the bridge.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      uint64      `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      uint64          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (o *Ogmios) send(method string, params interface{}) error {
	return o.conn.WriteJSON(request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      o.nextID.Add(1),
	})
}

// read pulls the next response for the given method, discarding stale
// responses of other methods (a fresh findIntersection can race pipelined
// nextBlock replies from the previous window). Repeated timeouts convert
// into a disconnection error so the consumer re-intersects.
func (o *Ogmios) read(ctx context.Context, method string) (*response, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o.conn.SetReadDeadline(time.Now().Add(readTimeout))
		var resp response
		if err := o.conn.ReadJSON(&resp); err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				o.timeouts++
				if o.timeouts < maxConsecutiveTimeouts {
					continue
				}
			}
			o.health.SetConnection(health.StatusDisconnected)
			return nil, fmt.Errorf("producer unreachable: %w", err)
		}
		o.timeouts = 0
		if resp.Method != "" && resp.Method != method {
			if resp.Method == "nextBlock" && o.inFlight > 0 {
				o.inFlight--
			}
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return &resp, nil
	}
}

type pointJSON struct {
	Slot uint64 `json:"slot"`
	ID   string `json:"id"`
}

func marshalPoint(p chain.Point) interface{} {
	if p.IsOrigin() {
		return "origin"
	}
	return pointJSON{Slot: p.Slot, ID: fmt.Sprintf("%x", p.HeaderHash)}
}

func unmarshalPoint(raw json.RawMessage) (chain.Point, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "origin" {
			return chain.Origin, nil
		}
		return chain.Point{}, fmt.Errorf("unexpected point %q", s)
	}
	var obj pointJSON
	if err := json.Unmarshal(raw, &obj); err != nil {
		return chain.Point{}, err
	}
	hash, err := chain.ParseHeaderHash(obj.ID)
	if err != nil {
		return chain.Point{}, err
	}
	return chain.NewPoint(obj.Slot, hash), nil
}

type tipJSON struct {
	Slot   uint64 `json:"slot"`
	ID     string `json:"id"`
	Height uint64 `json:"height"`
}

func unmarshalTip(raw json.RawMessage) (chain.Tip, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s == "origin" {
		return chain.Tip{Point: chain.Origin}, nil
	}
	var obj tipJSON
	if err := json.Unmarshal(raw, &obj); err != nil {
		return chain.Tip{}, err
	}
	hash, err := chain.ParseHeaderHash(obj.ID)
	if err != nil {
		return chain.Tip{}, err
	}
	return chain.Tip{Point: chain.NewPoint(obj.Slot, hash), BlockHeight: obj.Height}, nil
}

// FindIntersect negotiates the chain-sync starting point.
func (o *Ogmios) FindIntersect(ctx context.Context, points []chain.Point) (chain.Point, chain.Tip, error) {
	if err := o.ensureConnected(ctx); err != nil {
		return chain.Point{}, chain.Tip{}, err
	}

	candidates := make([]interface{}, len(points))
	for i, p := range points {
		candidates[i] = marshalPoint(p)
	}

	if err := o.send("findIntersection", map[string]interface{}{"points": candidates}); err != nil {
		return chain.Point{}, chain.Tip{}, fmt.Errorf("producer unreachable: %w", err)
	}

	resp, err := o.read(ctx, "findIntersection")
	if err != nil {
		var rpcErr *rpcError
		if errors.As(err, &rpcErr) && rpcErr.Code == 1000 {
			return chain.Point{}, chain.Tip{}, ErrIntersectionNotFound
		}
		return chain.Point{}, chain.Tip{}, err
	}

	var result struct {
		Intersection json.RawMessage `json:"intersection"`
		Tip          json.RawMessage `json:"tip"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return chain.Point{}, chain.Tip{}, err
	}
	if result.Intersection == nil {
		return chain.Point{}, chain.Tip{}, ErrIntersectionNotFound
	}

	point, err := unmarshalPoint(result.Intersection)
	if err != nil {
		return chain.Point{}, chain.Tip{}, err
	}
	tip, err := unmarshalTip(result.Tip)
	if err != nil {
		return chain.Point{}, chain.Tip{}, err
	}

	// The pipeline restarts from the agreed point.
	o.inFlight = 0
	return point, tip, nil
}

// NextEvent pulls the next chain-sync event, keeping a window of nextBlock
// requests in flight so the bridge streams without round-trip stalls.
func (o *Ogmios) NextEvent(ctx context.Context) (Event, error) {
	if err := o.ensureConnected(ctx); err != nil {
		return Event{}, err
	}

	for o.inFlight < pipelineDepth {
		if err := o.send("nextBlock", nil); err != nil {
			return Event{}, fmt.Errorf("producer unreachable: %w", err)
		}
		o.inFlight++
	}

	resp, err := o.read(ctx, "nextBlock")
	if err != nil {
		return Event{}, err
	}
	o.inFlight--

	var result struct {
		Direction string          `json:"direction"`
		Block     json.RawMessage `json:"block"`
		Point     json.RawMessage `json:"point"`
		Tip       json.RawMessage `json:"tip"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return Event{}, err
	}

	tip, err := unmarshalTip(result.Tip)
	if err != nil {
		return Event{}, err
	}
	o.health.SetNodeTip(tip.Point)

	switch result.Direction {
	case "forward":
		block, err := unmarshalBlock(result.Block)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: RollForward, Block: block, Tip: tip}, nil
	case "backward":
		point, err := unmarshalPoint(result.Point)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: RollBackward, Point: point, Tip: tip}, nil
	default:
		return Event{}, fmt.Errorf("unexpected chain-sync direction %q", result.Direction)
	}
}

// FetchBlock retrieves a single block by point for metadata queries. It
// dials its own short-lived connection: the chain-sync socket has a window
// of nextBlock requests in flight, and interleaving a query there would
// desynchronize the pipeline.
func (o *Ogmios) FetchBlock(ctx context.Context, point chain.Point) (*chain.Block, error) {
	url := fmt.Sprintf("ws://%s/", net.JoinHostPort(o.cfg.Host, fmt.Sprintf("%d", o.cfg.Port)))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("producer unreachable: %w", err)
	}
	defer conn.Close()

	err = conn.WriteJSON(request{
		JSONRPC: "2.0",
		Method:  "queryBlock",
		Params:  map[string]interface{}{"point": marshalPoint(point)},
		ID:      o.nextID.Add(1),
	})
	if err != nil {
		return nil, fmt.Errorf("producer unreachable: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	var resp response
	if err := conn.ReadJSON(&resp); err != nil {
		return nil, fmt.Errorf("producer unreachable: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}

	var result struct {
		Block json.RawMessage `json:"block"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, err
	}
	if result.Block == nil {
		return nil, nil
	}
	return unmarshalBlock(result.Block)
}

// Reconnect drops the current WebSocket and dials again with backoff.
func (o *Ogmios) Reconnect(ctx context.Context) error {
	if o.conn != nil {
		o.conn.Close()
	}
	return o.connect(ctx)
}

// Close tears down the WebSocket.
func (o *Ogmios) Close() error {
	o.health.SetConnection(health.StatusDisconnected)
	if o.conn == nil {
		return nil
	}
	return o.conn.Close()
}
