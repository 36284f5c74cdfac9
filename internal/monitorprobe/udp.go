package monitorprobe

import (
	"context"
	"fmt"
	"net"
	"time"

	"pulsewatch/internal/monitorcfg"
	"pulsewatch/pkg/monitor"
)

// UDPProbe runs a best-effort UDP reachability check. Because UDP gives no
// positive confirmation of delivery, a read timeout is success and only an
// explicit connection error (e.g. ICMP port-unreachable surfaced by the
// kernel) counts as down.
type UDPProbe struct {
	cfg monitorcfg.Config
}

func NewUDPProbe(cfg monitorcfg.Config) *UDPProbe {
	return &UDPProbe{cfg: cfg}
}

func (p *UDPProbe) Run(ctx context.Context, addr string, opts monitor.ProbeOptions) monitor.ProbeResult {
	timeout := p.cfg.AdaptiveTimeout(0, opts.RecheckInProgress)
	if timeout > p.cfg.TCPLightCheckTimeout {
		timeout = p.cfg.TCPLightCheckTimeout
	}

	start := time.Now()
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return monitor.ProbeResult{
			Status: monitor.StatusOffline, Detailed: monitor.DetailedDown,
			StatusCode: monitor.StatusCodeConnectionError, ResponseTime: time.Since(start),
			Error: fmt.Sprintf("dial: %v", err),
		}
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(timeout))
	// A zero-byte datagram is the probe itself (spec.md §4.1): UDP has no
	// handshake, so a send that does not immediately error and a read that
	// times out without an ICMP port-unreachable rejection are both
	// treated as reachable ("timeout with no error = online").
	if _, err := conn.Write(nil); err != nil {
		return monitor.ProbeResult{
			Status: monitor.StatusOffline, Detailed: monitor.DetailedDown,
			StatusCode: monitor.StatusCodeConnectionError, ResponseTime: time.Since(start),
			Error: fmt.Sprintf("write: %v", err),
		}
	}

	buf := make([]byte, 512)
	_, err = conn.Read(buf)
	elapsed := time.Since(start)
	if err == nil {
		return monitor.ProbeResult{Status: monitor.StatusOnline, Detailed: monitor.DetailedUP, StatusCode: 200, ResponseTime: elapsed, UsedMethod: "UDP_ECHO"}
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return monitor.ProbeResult{Status: monitor.StatusOnline, Detailed: monitor.DetailedUP, StatusCode: 200, ResponseTime: elapsed, UsedMethod: "UDP_SEND"}
	}
	return monitor.ProbeResult{
		Status: monitor.StatusOffline, Detailed: monitor.DetailedDown,
		StatusCode: monitor.StatusCodeConnectionError, ResponseTime: elapsed,
		Error: fmt.Sprintf("read: %v", err),
	}
}
