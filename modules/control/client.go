package control

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/oblq/qnapec/modules/call"
)

// Client is the helper side of a control socket session.
type Client struct {
	conn net.Conn
}

// Dial connects to the control socket and waits for the session handshake.
// ErrBusy and ErrDenied are returned as is.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := readStatus(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Fetch() (call.Call, error) {
	if _, err := c.conn.Write([]byte{opFetch}); err != nil {
		return call.Call{}, err
	}
	if err := readStatus(c.conn); err != nil {
		return call.Call{}, err
	}

	data := make([]byte, call.RecordSize)
	if _, err := io.ReadFull(c.conn, data); err != nil {
		return call.Call{}, fmt.Errorf("reading call record: %w", err)
	}

	var pending call.Call
	err := pending.UnmarshalBinary(data)
	return pending, err
}

func (c *Client) Submit(result call.Call) error {
	data, err := result.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(append([]byte{opSubmit}, data...)); err != nil {
		return err
	}
	return readStatus(c.conn)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
