// Package realtime is a minimal client for the peer-synchronized store that
// backs live BikeTag games. It speaks the Gun wire protocol over a websocket:
// every message carries an id under "#", and replies reference the request
// id under "@".
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/biketag-game/biketag-go/internal/backend"
	"github.com/biketag-game/biketag-go/internal/logging"
	"github.com/biketag-game/biketag-go/internal/metrics"
)

const (
	defaultDialAttempts = 3
	defaultReplyTimeout = 10 * time.Second
	maxDialInterval     = 5 * time.Second
	writeTimeout        = 5 * time.Second
	readLimit           = 4 * 1024 * 1024
)

// Errors returned by the client.
var (
	ErrClosed = errors.New("realtime client closed")
	ErrNoPeer = errors.New("realtime peer not configured")
)

// Node is the data stored under one soul, without Gun metadata.
type Node map[string]any

type getRequest struct {
	Soul string `json:"#"`
}

// wireMessage covers the subset of the protocol the client uses.
type wireMessage struct {
	ID  string          `json:"#,omitempty"`
	Ack string          `json:"@,omitempty"`
	Get *getRequest     `json:"get,omitempty"`
	Put map[string]Node `json:"put,omitempty"`
	OK  any             `json:"ok,omitempty"`
	Err string          `json:"err,omitempty"`
}

// Options configures Dial.
type Options struct {
	DialAttempts int
	ReplyTimeout time.Duration
	Logger       *slog.Logger
}

// Client is a connection to one peer.
type Client struct {
	peer         string
	conn         *websocket.Conn
	replyTimeout time.Duration
	log          *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan wireMessage
	closed  bool

	closeOnce sync.Once
	done      chan struct{}
	cancel    context.CancelFunc
}

// Dial connects to the peer at url, retrying with exponential backoff.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	if url == "" {
		return nil, ErrNoPeer
	}
	if opts.DialAttempts <= 0 {
		opts.DialAttempts = defaultDialAttempts
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = defaultReplyTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Get()
	}

	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = 100 * time.Millisecond
	backoffCfg.MaxInterval = maxDialInterval

	var (
		conn *websocket.Conn
		err  error
	)
	for attempt := 1; ; attempt++ {
		conn, _, err = websocket.Dial(ctx, url, nil)
		if err == nil {
			break
		}
		opts.Logger.DebugContext(ctx, "realtime dial failed", "peer", url, "attempt", attempt, "error", err)
		if attempt >= opts.DialAttempts {
			return nil, fmt.Errorf("%w: dial %s: %w", backend.ErrBackendOffline, url, err)
		}

		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = maxDialInterval
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
	conn.SetReadLimit(readLimit)

	loopCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		peer:         url,
		conn:         conn,
		replyTimeout: opts.ReplyTimeout,
		log:          opts.Logger,
		pending:      make(map[string]chan wireMessage),
		done:         make(chan struct{}),
		cancel:       cancel,
	}
	go c.readLoop(loopCtx)
	return c, nil
}

// Peer returns the peer URL.
func (c *Client) Peer() string {
	return c.peer
}

// Get fetches the node stored under soul. Returns backend.ErrNotFound when the
// peer has no data for it.
func (c *Client) Get(ctx context.Context, soul string) (Node, error) {
	reply, err := c.request(ctx, wireMessage{Get: &getRequest{Soul: soul}})
	if err != nil {
		return nil, err
	}
	if reply.Err != "" {
		return nil, fmt.Errorf("get %s: %s", soul, reply.Err)
	}
	node, ok := reply.Put[soul]
	if !ok || node == nil {
		return nil, fmt.Errorf("%w: %s", backend.ErrNotFound, soul)
	}
	out := maps.Clone(node)
	delete(out, "_")
	return out, nil
}

// Put writes fields to the node under soul and waits for the peer's ack.
func (c *Client) Put(ctx context.Context, soul string, fields Node) error {
	state := time.Now().UnixMilli()
	states := make(map[string]int64, len(fields))
	node := make(Node, len(fields)+1)
	for k, v := range fields {
		node[k] = v
		states[k] = state
	}
	node["_"] = map[string]any{"#": soul, ">": states}

	reply, err := c.request(ctx, wireMessage{Put: map[string]Node{soul: node}})
	if err != nil {
		return err
	}
	if reply.Err != "" {
		return fmt.Errorf("put %s: %s", soul, reply.Err)
	}
	return nil
}

// Close shuts down the connection. Pending requests fail with ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		err = c.conn.Close(websocket.StatusNormalClosure, "shutdown")
		c.cancel()
		<-c.done
	})
	return err
}

// request sends msg with a fresh id and waits for the reply that acks it.
func (c *Client) request(ctx context.Context, msg wireMessage) (wireMessage, error) {
	msg.ID = uuid.NewString()
	ch := make(chan wireMessage, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return wireMessage{}, ErrClosed
	}
	c.pending[msg.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(msg)
	if err != nil {
		return wireMessage{}, fmt.Errorf("marshal message: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	c.writeMu.Lock()
	err = c.conn.Write(writeCtx, websocket.MessageText, data)
	c.writeMu.Unlock()
	cancel()
	if err != nil {
		return wireMessage{}, fmt.Errorf("%w: write: %w", backend.ErrBackendOffline, err)
	}
	metrics.RealtimeMessages.WithLabelValues("sent").Inc()

	timer := time.NewTimer(c.replyTimeout)
	defer timer.Stop()
	select {
	case reply, ok := <-ch:
		if !ok {
			return wireMessage{}, ErrClosed
		}
		return reply, nil
	case <-timer.C:
		return wireMessage{}, fmt.Errorf("%w: no reply from %s", backend.ErrBackendOffline, c.peer)
	case <-ctx.Done():
		return wireMessage{}, ctx.Err()
	}
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.done)
	defer c.failPending()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Debug("realtime read failed", "peer", c.peer, "error", err)
			}
			return
		}
		metrics.RealtimeMessages.WithLabelValues("received").Inc()

		for _, msg := range decodeFrame(data) {
			c.deliver(msg)
		}
	}
}

// decodeFrame accepts a single message or a batch.
func decodeFrame(data []byte) []wireMessage {
	if len(data) > 0 && data[0] == '[' {
		var batch []wireMessage
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil
		}
		return batch
	}
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil
	}
	return []wireMessage{msg}
}

func (c *Client) deliver(msg wireMessage) {
	if msg.Ack == "" {
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[msg.Ack]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}
