package qemu

import (
	"context"
	"net"
	"os"
	"os/exec"
	"strings"

	"github.com/CloudNebulaProject/vm-manager/lib/hypervisor/hverrors"
)

// dnsmasqLeaseFile is the default dnsmasq lease file consulted when a
// bridge network is configured and `ip neigh show` finds nothing.
const dnsmasqLeaseFile = "/var/lib/misc/dnsmasq.leases"

// GuestIP discovers a running VM's address, best-effort and in order:
// `ip neigh show`, then (for bridge networking) the dnsmasq lease file
// matching the VM's MAC, falling back to the newest lease when no MAC is
// known.
func GuestIP(ctx context.Context, name string, bridgeConfigured bool, mac string) (string, error) {
	out, err := exec.CommandContext(ctx, "ip", "neigh", "show").Output()
	if err == nil {
		if ip, ok := parseNeighOutput(string(out)); ok {
			return ip, nil
		}
	}

	if bridgeConfigured {
		if ip, ok := leaseIP(dnsmasqLeaseFile, mac); ok {
			return ip, nil
		}
	}

	return "", &hverrors.IpDiscoveryTimeout{Name: name}
}

// parseNeighOutput scans `ip neigh show` output for the first IPv4
// address on a REACHABLE or STALE line that isn't loopback.
func parseNeighOutput(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "REACHABLE") && !strings.Contains(line, "STALE") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		candidate := fields[0]
		ip := net.ParseIP(candidate)
		if ip == nil || ip.To4() == nil {
			continue
		}
		if strings.HasPrefix(candidate, "127.") {
			continue
		}
		return candidate, true
	}
	return "", false
}

// leaseIP reads dnsmasq's lease file (format: epoch mac ip hostname
// clientid) and returns the lease matching mac. If mac is empty, returns
// the newest lease (last line) instead — the fallback the baseline
// design used unconditionally.
func leaseIP(path, mac string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return "", false
	}
	lines := strings.Split(trimmed, "\n")

	if mac != "" {
		for _, line := range lines {
			fields := strings.Fields(line)
			if len(fields) < 3 {
				continue
			}
			if strings.EqualFold(fields[1], mac) {
				return fields[2], true
			}
		}
		return "", false
	}

	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 3 {
		return "", false
	}
	return fields[2], true
}
