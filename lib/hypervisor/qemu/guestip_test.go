package qemu

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseNeighOutput_PicksFirstReachableNonLoopback(t *testing.T) {
	output := "192.168.122.10 dev virbr0 lladdr 52:54:00:ab:cd:ef REACHABLE\n127.0.0.1 dev lo REACHABLE\n"
	ip, ok := parseNeighOutput(output)
	require.True(t, ok)
	require.Equal(t, "192.168.122.10", ip)
}

func TestParseNeighOutput_NoReachableLines(t *testing.T) {
	output := "192.168.122.10 dev virbr0 lladdr 52:54:00:ab:cd:ef FAILED\n"
	_, ok := parseNeighOutput(output)
	require.False(t, ok)
}

func TestLeaseIP_MatchesByMAC(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dnsmasq.leases")
	content := "1700000000 52:54:00:aa:bb:cc 10.0.0.5 host-a 01:52:54:00:aa:bb:cc\n" +
		"1700000100 52:54:00:dd:ee:ff 10.0.0.6 host-b 01:52:54:00:dd:ee:ff\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	ip, ok := leaseIP(path, "52:54:00:aa:bb:cc")
	require.True(t, ok)
	require.Equal(t, "10.0.0.5", ip)
}

func TestLeaseIP_NoMACFallsBackToLastLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dnsmasq.leases")
	content := "1700000000 52:54:00:aa:bb:cc 10.0.0.5 host-a 01:52:54:00:aa:bb:cc\n" +
		"1700000100 52:54:00:dd:ee:ff 10.0.0.6 host-b 01:52:54:00:dd:ee:ff\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	ip, ok := leaseIP(path, "")
	require.True(t, ok)
	require.Equal(t, "10.0.0.6", ip)
}

func TestLeaseIP_MACNotFoundNoFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dnsmasq.leases")
	content := "1700000000 52:54:00:aa:bb:cc 10.0.0.5 host-a 01:52:54:00:aa:bb:cc\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, ok := leaseIP(path, "52:54:00:00:00:00")
	require.False(t, ok)
}

func TestLeaseIP_MissingFile(t *testing.T) {
	_, ok := leaseIP("/nonexistent/dnsmasq.leases", "")
	require.False(t, ok)
}
