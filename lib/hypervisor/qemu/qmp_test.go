package qemu

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/CloudNebulaProject/vm-manager/lib/hypervisor/hverrors"
	"github.com/stretchr/testify/require"
)

// newClientOverPipe wires a Client to an in-memory net.Pipe so tests can drive
// the QMP wire protocol without a real QEMU process.
func newClientOverPipe(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	reader := bufio.NewReader(clientConn)
	return &Client{conn: clientConn, reader: reader}, serverConn
}

func writeLine(t *testing.T, conn net.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	data = append(data, '\n')
	_, err = conn.Write(data)
	require.NoError(t, err)
}

func readLine(t *testing.T, conn net.Conn) map[string]any {
	t.Helper()
	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(line, &msg))
	return msg
}

// TestHandshake_DiscardsEventsAndReturnsMockedStatus drives the exact
// scenario from the testable-properties scenario: greeting, capabilities
// handshake, then query-status with interleaved events discarded.
func TestHandshake_DiscardsEventsAndReturnsMockedStatus(t *testing.T) {
	client, server := newClientOverPipe(t)
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		done <- client.handshake()
	}()

	writeLine(t, server, map[string]any{"QMP": map[string]any{"version": map[string]any{"qemu": map[string]any{"major": 8, "minor": 2, "micro": 0}}}})

	cmd := readLine(t, server)
	require.Equal(t, "qmp_capabilities", cmd["execute"])

	writeLine(t, server, map[string]any{"return": map[string]any{}})

	require.NoError(t, <-done)

	statusDone := make(chan struct {
		status string
		err    error
	}, 1)
	go func() {
		s, err := client.QueryStatus()
		statusDone <- struct {
			status string
			err    error
		}{s, err}
	}()

	_ = readLine(t, server) // query-status command

	writeLine(t, server, map[string]any{"event": "DEVICE_TRAY_MOVED", "data": map[string]any{}, "timestamp": map[string]any{"seconds": 0, "microseconds": 0}})
	writeLine(t, server, map[string]any{"return": map[string]any{"status": "running", "running": true}})

	res := <-statusDone
	require.NoError(t, res.err)
	require.Equal(t, "running", res.status)
}

// TestDialQMP_ConnectTimeout verifies the connect-with-wait contract:
// a socket that never accepts a connection fails with QmpConnectTimeout.
func TestDialQMP_ConnectTimeout(t *testing.T) {
	_, err := DialQMP(context.Background(), "/nonexistent/qmp.sock", 150*time.Millisecond)
	require.Error(t, err)
	var timeoutErr *hverrors.QmpConnectTimeout
	require.True(t, errors.As(err, &timeoutErr))
}
