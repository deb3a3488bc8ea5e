package signal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	sendQueue      = 64
	subscriberSize = 64
	writeWait      = 5 * time.Second
)

var errConnLost = errors.New("signaling connection lost")

type Options struct {
	URL      string
	ClientID string
	UserID   string
	Nick     string

	ReadLimit  int64
	PingPeriod time.Duration

	// InviteLimit caps call:incoming per sender within InviteInterval.
	InviteLimit    int
	InviteInterval time.Duration

	Clock      clock.Clock
	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.InviteLimit <= 0 {
		o.InviteLimit = 5
	}
	if o.InviteInterval <= 0 {
		o.InviteInterval = 10 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 15 * time.Second
	}
	return o
}

type subscriber struct {
	ch   chan protocol.Message
	done chan struct{}
}

// Client is the websocket link to the signaling server. It keeps one
// connection alive, redialing with exponential backoff, and fans decoded
// messages out to subscribers.
type Client struct {
	opts    Options
	limiter *RateLimiter

	mu   sync.RWMutex
	conn *wsConn

	subsMu  sync.Mutex
	subs    map[int]*subscriber
	nextSub int
}

var _ core.SignalingTransport = (*Client)(nil)

func NewClient(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("signaling url is required")
	}
	if opts.ClientID == "" {
		return nil, errors.New("client id is required")
	}
	opts = opts.withDefaults()
	return &Client{
		opts:    opts,
		limiter: NewRateLimiter(opts.Clock, opts.InviteLimit, opts.InviteInterval),
		subs:    make(map[int]*subscriber),
	}, nil
}

func (c *Client) LocalID() string { return c.opts.ClientID }

// Connected reports whether a socket is currently up.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

func (c *Client) Send(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.TrySend(data); err != nil {
		return fmt.Errorf("send %s: %w", m.Event(), err)
	}
	return nil
}

func (c *Client) Subscribe() (<-chan protocol.Message, func()) {
	sub := &subscriber{
		ch:   make(chan protocol.Message, subscriberSize),
		done: make(chan struct{}),
	}
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = sub
	c.subsMu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			close(sub.done)
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
		})
	}
}

// Run keeps the connection up until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.opts.MinBackoff
	exp.MaxInterval = c.opts.MaxBackoff
	exp.MaxElapsedTime = 0

	op := func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return c.connect(ctx, exp.Reset)
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("module", "signal").Dur("retry_in", wait).Msg("signaling down")
	}

	err := backoff.RetryNotify(op, backoff.WithContext(exp, ctx), notify)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return "", fmt.Errorf("signaling url: %w", err)
	}
	q := u.Query()
	q.Set("id", c.opts.ClientID)
	if c.opts.UserID != "" {
		q.Set("userId", c.opts.UserID)
	}
	if c.opts.Nick != "" {
		q.Set("nick", c.opts.Nick)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connect runs one connection to completion. It always returns an error
// so the retry loop dials again.
func (c *Client) connect(ctx context.Context, established func()) error {
	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}
	ws, _, err := c.opts.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial signaling: %w", err)
	}
	conn := newWSConn(ws, sendQueue)
	c.setConn(conn)
	established()
	log.Info().Str("module", "signal").Str("id", c.opts.ClientID).Msg("signaling connected")

	connCtx, cancel := context.WithCancel(ctx)
	written := make(chan struct{})
	go func() {
		defer close(written)
		c.writePump(connCtx, conn)
	}()

	c.readPump(connCtx, conn)
	cancel()
	conn.Close()
	<-written
	c.setConn(nil)

	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.dispatch(ctx, protocol.Disconnected{})
	return errConnLost
}

func (c *Client) setConn(conn *wsConn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) dispatch(ctx context.Context, m protocol.Message) {
	if in, ok := m.(protocol.CallIncoming); ok {
		if !c.limiter.Allow(in.From) {
			log.Warn().Str("module", "signal").Str("from", in.From).Msg("invite rate limited")
			return
		}
	}

	c.subsMu.Lock()
	subs := make([]*subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.subsMu.Unlock()

	for _, s := range subs {
		select {
		case s.ch <- m:
		case <-s.done:
		case <-ctx.Done():
			return
		}
	}
}
