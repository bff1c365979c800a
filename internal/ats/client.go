package ats

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"aritech2mqtt/internal/log"
)

const dialTimeout = 15 * time.Second

// Client is a session with the panel's IP module. One goroutine owns the
// socket read side and continuously cuts the stream into frames: responses
// are routed to the request that is waiting on their sequence number,
// events go out on the Events channel in receipt order. The read path
// never blocks on command completion.
type Client struct {
	logger *log.Logger
	addr   string
	cipher *Cipher
	auth   Auth

	conn net.Conn
	dec  *Decoder
	info PanelInfo

	mu      sync.Mutex // guards seq and pending
	seq     byte
	pending map[byte]chan response

	writeMu sync.Mutex

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	downOnce  sync.Once
	wg        sync.WaitGroup
}

type response struct {
	payload []byte
	err     error
}

// New validates the encryption key and builds a client. No connection is
// made until Connect.
func New(host string, port int, key string, auth Auth, logger *log.Logger) (*Client, error) {
	cipher, err := NewCipher(key)
	if err != nil {
		return nil, err
	}
	return &Client{
		logger:  logger,
		addr:    net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		cipher:  cipher,
		auth:    auth,
		dec:     NewDecoder(),
		pending: make(map[byte]chan response),
		events:  make(chan Event, 100),
		done:    make(chan struct{}),
	}, nil
}

// Connect dials the panel, starts the read loop and performs the hello
// exchange. If no panel family was configured, the family reported by the
// panel decides the login variant.
func (c *Client) Connect(ctx context.Context) error {
	var d net.Dialer
	d.Timeout = dialTimeout

	c.logger.Debug("Connecting to panel at %s", c.addr)
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn

	c.wg.Add(1)
	go c.readLoop()

	payload, err := c.request(ctx, encodeHello())
	if err != nil {
		return fmt.Errorf("hello exchange failed: %w", err)
	}
	info, err := parseHello(payload)
	if err != nil {
		return fmt.Errorf("hello exchange failed: %w", err)
	}
	c.info = info

	if c.auth.Family == FamilyUnknown {
		c.auth.Family = info.Family
	}
	c.logger.Debug("Panel hello: model=%s firmware=%s family=%s", info.Model, info.Firmware, c.auth.Family)
	return nil
}

// Info returns the identity from the hello exchange.
func (c *Client) Info() PanelInfo {
	return c.info
}

// Login authenticates with the variant the resolved panel family requires.
// Failures come back as *AuthError and are terminal for this session.
func (c *Client) Login(ctx context.Context) error {
	var body []byte
	var err error
	switch c.auth.Family {
	case FamilyX500:
		if c.auth.Pin == "" {
			return fmt.Errorf("panel is %s but no pin is configured", c.auth.Family)
		}
		body, err = encodeLoginPin(c.auth.Pin)
	case FamilyX700:
		if c.auth.Username == "" {
			return fmt.Errorf("panel is %s but no credentials are configured", c.auth.Family)
		}
		body, err = encodeLoginUser(c.auth.Username, c.auth.Password)
	default:
		return fmt.Errorf("panel family could not be determined")
	}
	if err != nil {
		return err
	}

	if _, err := c.request(ctx, body); err != nil {
		return err
	}
	c.logger.Debug("Login successful (%s)", c.auth.Family)
	return nil
}

// Poll requests a full state snapshot of every entity.
func (c *Client) Poll(ctx context.Context) (PollStatus, error) {
	payload, err := c.request(ctx, encodePoll())
	if err != nil {
		return PollStatus{}, fmt.Errorf("status poll failed: %w", err)
	}
	return parsePoll(payload)
}

// Names downloads the configured names for one entity class.
func (c *Client) Names(ctx context.Context, kind EntityKind) ([]NamedItem, error) {
	payload, err := c.request(ctx, encodeNames(kind))
	if err != nil {
		return nil, fmt.Errorf("%s name download failed: %w", kind, err)
	}
	return parseNames(payload)
}

// Arm sets an area. With force the panel skips its zone-readiness check;
// without it an area with active zones is rejected with RejectNotReady.
func (c *Client) Arm(ctx context.Context, area int, mode ArmMode, force bool) error {
	_, err := c.request(ctx, encodeArm(area, mode, force))
	return err
}

func (c *Client) Disarm(ctx context.Context, area int) error {
	_, err := c.request(ctx, encodeDisarm(area))
	return err
}

func (c *Client) Inhibit(ctx context.Context, zone int, set bool) error {
	_, err := c.request(ctx, encodeInhibit(zone, set))
	return err
}

func (c *Client) SetOutput(ctx context.Context, output int, active bool) error {
	_, err := c.request(ctx, encodeOutput(output, active))
	return err
}

func (c *Client) LockDoor(ctx context.Context, door int) error {
	_, err := c.request(ctx, encodeDoor(door, doorLock, 0))
	return err
}

func (c *Client) UnlockDoor(ctx context.Context, door int) error {
	_, err := c.request(ctx, encodeDoor(door, doorUnlock, 0))
	return err
}

// MomentaryUnlock releases the door for the given duration; the panel
// relocks it on its own afterwards.
func (c *Client) MomentaryUnlock(ctx context.Context, door int, duration time.Duration) error {
	secs := uint16(duration / time.Second)
	if secs == 0 {
		secs = 1
	}
	_, err := c.request(ctx, encodeDoor(door, doorMomentary, secs))
	return err
}

// Events returns the inbound event stream. The channel is closed when the
// connection is lost or the client is closed; a closed channel is the
// disconnect signal for the session supervisor.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Close tears the session down: best-effort logout, socket close, read
// loop stopped, every pending request resolved with ErrClosed. When Close
// returns there is no background work left.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})

	var err error
	if c.conn != nil {
		if body, e := c.cipher.Encrypt([]byte{opLogout}); e == nil {
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_, _ = c.conn.Write(encodeFrame(frameCommand, 0, body))
			c.writeMu.Unlock()
		}
		err = c.conn.Close()
	}
	c.wg.Wait()
	c.teardown(ErrClosed)
	return err
}

// request encrypts a plaintext command body, sends it with a fresh
// sequence number and waits for the matching response.
func (c *Client) request(ctx context.Context, plain []byte) ([]byte, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}

	c.mu.Lock()
	c.seq++
	if c.seq == 0 {
		// seq 0 is reserved for unsolicited frames
		c.seq = 1
	}
	seq := c.seq
	ch := make(chan response, 1)
	c.pending[seq] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
	}()

	body, err := c.cipher.Encrypt(plain)
	if err != nil {
		return nil, err
	}
	raw := encodeFrame(frameCommand, seq, body)

	c.writeMu.Lock()
	_, err = c.conn.Write(raw)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}
	c.logger.Proto("TX op=0x%02x seq=%d len=%d", plain[0], seq, len(raw))

	select {
	case resp := <-ch:
		return resp.payload, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClosed
	}
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	buf := make([]byte, 4096)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Error("Read error: %v", err)
			}
			c.teardown(fmt.Errorf("connection lost: %w", err))
			return
		}

		c.dec.Feed(buf[:n])
		for {
			f, err := c.dec.Next()
			if err != nil {
				frameErrors.Inc()
				c.logger.Warn("Frame error, resyncing: %v", err)
				continue
			}
			if f == nil {
				break
			}
			framesDecoded.Inc()
			c.handleFrame(f)
		}
	}
}

func (c *Client) handleFrame(f *frame) {
	switch f.Type {
	case frameHeartbeat:
		c.deliver(HeartbeatEvent{})

	case frameResponse:
		plain, err := c.cipher.Decrypt(f.Body)
		var resp response
		if err != nil {
			decryptErrors.Inc()
			resp = response{err: err}
		} else {
			resp.payload, resp.err = parseResponse(plain)
		}
		c.mu.Lock()
		ch, ok := c.pending[f.Seq]
		if ok {
			delete(c.pending, f.Seq)
		}
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("Dropping response with no pending command (seq %d)", f.Seq)
			return
		}
		ch <- resp

	case frameEvent:
		plain, err := c.cipher.Decrypt(f.Body)
		if err != nil {
			decryptErrors.Inc()
			c.logger.Warn("Could not decrypt event frame: %v", err)
			return
		}
		ev := decodeEvent(plain)
		if u, ok := ev.(UnknownEvent); ok {
			c.logger.Debug("Unknown event opcode 0x%02x (%d bytes)", u.Opcode, len(u.Payload))
		}
		c.deliver(ev)

	default:
		c.logger.Debug("Dropping unexpected frame type 0x%02x", f.Type)
	}
}

// deliver hands an event to the subscriber without ever blocking the read
// loop. The channel is sized so a drop only happens if the consumer is
// gone entirely.
func (c *Client) deliver(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("Event channel full, dropping %T", ev)
	}
}

func (c *Client) teardown(err error) {
	c.downOnce.Do(func() {
		c.mu.Lock()
		for seq, ch := range c.pending {
			ch <- response{err: err}
			delete(c.pending, seq)
		}
		c.mu.Unlock()
		close(c.events)
	})
}
