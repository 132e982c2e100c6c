package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"blinky/internal/event"
)

const DefaultTimeout = 5 * time.Second

// Client talks to the daemon over its unix socket. One connection per call.
type Client struct {
	SocketPath string
	Timeout    time.Duration
}

func NewClient(socketPath string) *Client {
	return &Client{SocketPath: socketPath, Timeout: DefaultTimeout}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: 2 * time.Second}
	conn, err := d.DialContext(ctx, "unix", c.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon socket %s: %w", c.SocketPath, err)
	}
	return conn, nil
}

// Send issues one command and waits for its reply. A reply with
// Success=false is not an error here; callers inspect it.
func (c *Client) Send(ctx context.Context, name string, args any) (*Reply, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if err := json.NewEncoder(conn).Encode(Command{Name: name, Args: args}); err != nil {
		return nil, fmt.Errorf("failed to send command %s: %w", name, err)
	}
	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return nil, fmt.Errorf("failed to read reply to %s: %w", name, err)
	}
	return &reply, nil
}

// Subscribe streams events to fn until ctx is done, the daemon closes the
// stream, or fn returns an error. An empty types list means every event.
func (c *Client) Subscribe(ctx context.Context, types []string, fn func(event.Event) error) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(c.timeout()))
	if err := json.NewEncoder(conn).Encode(Command{Name: CmdSubscribe, Args: SubscribeArgs{Types: types}}); err != nil {
		return fmt.Errorf("failed to send subscribe: %w", err)
	}
	dec := json.NewDecoder(conn)
	var reply Reply
	if err := dec.Decode(&reply); err != nil {
		return fmt.Errorf("failed to read subscribe reply: %w", err)
	}
	if !reply.Success {
		return errors.New(reply.Message)
	}
	_ = conn.SetDeadline(time.Time{})

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var e event.Event
		if err := dec.Decode(&e); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("event stream broken: %w", err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}
