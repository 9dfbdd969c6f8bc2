package qemu

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/CloudNebulaProject/vm-manager/lib/hypervisor/hverrors"
)

// qmpConnectRetry is the interval between connection attempts while
// waiting for QEMU to create its QMP socket after -daemonize.
const qmpConnectRetry = 100 * time.Millisecond

// Client is a synchronous QMP control connection. Unlike a queued,
// goroutine-driven client, it assumes one command is in flight at a
// time — the core's concurrency model serializes calls against a single
// Handle externally, so there is nothing for an internal command queue
// to buy here.
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}

// DialQMP connects to socketPath, retrying every 100ms until timeout,
// then performs the qmp_capabilities handshake.
func DialQMP(ctx context.Context, socketPath string, timeout time.Duration) (*Client, error) {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.Dial("unix", socketPath)
		if err == nil {
			c := &Client{conn: conn, reader: bufio.NewReader(conn)}
			if err := c.handshake(); err != nil {
				conn.Close()
				return nil, err
			}
			return c, nil
		}
		if !time.Now().Before(deadline) {
			return nil, &hverrors.QmpConnectTimeout{Path: socketPath}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(qmpConnectRetry):
		}
	}
}

// handshake reads the greeting and negotiates capabilities.
func (c *Client) handshake() error {
	greeting, err := c.readLine()
	if err != nil {
		return &hverrors.QmpProtocol{Detail: fmt.Sprintf("reading greeting: %v", err)}
	}
	if _, ok := greeting["QMP"]; !ok {
		return &hverrors.QmpProtocol{Detail: "greeting missing QMP key"}
	}
	if err := c.write("qmp_capabilities"); err != nil {
		return err
	}
	if _, err := c.readReply(); err != nil {
		return err
	}
	return nil
}

// readLine reads one newline-delimited JSON object.
func (c *Client) readLine() (map[string]any, error) {
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	var msg map[string]any
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, fmt.Errorf("malformed json: %w", err)
	}
	return msg, nil
}

// write sends a command with no arguments.
func (c *Client) write(name string) error {
	data, err := json.Marshal(map[string]string{"execute": name})
	if err != nil {
		return &hverrors.QmpProtocol{Detail: err.Error()}
	}
	data = append(data, '\n')
	if _, err := c.conn.Write(data); err != nil {
		return &hverrors.QmpProtocol{Detail: err.Error()}
	}
	return nil
}

// readReply reads lines until a return or error reply arrives, discarding
// any interleaved event lines.
func (c *Client) readReply() (any, error) {
	for {
		msg, err := c.readLine()
		if err != nil {
			return nil, &hverrors.QmpProtocol{Detail: err.Error()}
		}
		if _, ok := msg["event"]; ok {
			continue
		}
		if errObj, ok := msg["error"]; ok {
			return nil, &hverrors.QmpProtocol{Detail: fmt.Sprintf("%v", errObj)}
		}
		if ret, ok := msg["return"]; ok {
			return ret, nil
		}
		return nil, &hverrors.QmpProtocol{Detail: "unexpected reply with neither return nor error"}
	}
}

// Execute issues a no-argument command and returns its return value.
func (c *Client) Execute(name string) (any, error) {
	if err := c.write(name); err != nil {
		return nil, err
	}
	return c.readReply()
}

// QueryStatus issues query-status and returns the "status" field.
func (c *Client) QueryStatus() (string, error) {
	ret, err := c.Execute("query-status")
	if err != nil {
		return "", err
	}
	m, ok := ret.(map[string]any)
	if !ok {
		return "", &hverrors.QmpProtocol{Detail: "query-status: unexpected return shape"}
	}
	status, _ := m["status"].(string)
	return status, nil
}

// SystemPowerdown issues the ACPI powerdown request. Best-effort: the
// caller does not wait here for the guest to actually shut down.
func (c *Client) SystemPowerdown() error {
	_, err := c.Execute("system_powerdown")
	return err
}

// Stop pauses VM execution.
func (c *Client) Stop() error {
	_, err := c.Execute("stop")
	return err
}

// Cont resumes VM execution.
func (c *Client) Cont() error {
	_, err := c.Execute("cont")
	return err
}

// Quit terminates the QEMU process immediately.
func (c *Client) Quit() error {
	_, err := c.Execute("quit")
	return err
}

// Close closes the underlying socket.
func (c *Client) Close() error {
	return c.conn.Close()
}
