package monitorprobe

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"pulsewatch/internal/monitorcfg"
	"pulsewatch/pkg/monitor"
)

// TCPProbe runs a bare connect check against host:port targets. A
// successful three-way handshake is the entire signal; nothing is written
// to or read from the socket.
type TCPProbe struct {
	cfg monitorcfg.Config
}

func NewTCPProbe(cfg monitorcfg.Config) *TCPProbe {
	return &TCPProbe{cfg: cfg}
}

func (p *TCPProbe) Run(ctx context.Context, addr string, opts monitor.ProbeOptions) monitor.ProbeResult {
	if _, portStr, err := net.SplitHostPort(addr); err != nil {
		return monitor.ProbeResult{
			Status: monitor.StatusOffline, Detailed: monitor.DetailedDown,
			StatusCode: monitor.StatusCodeConnectionError,
			Error:      fmt.Sprintf("invalid tcp target %q: %v", addr, err),
		}
	} else if port, err := strconv.Atoi(portStr); err != nil || port < 1 || port > 65535 {
		return monitor.ProbeResult{
			Status: monitor.StatusOffline, Detailed: monitor.DetailedDown,
			StatusCode: monitor.StatusCodeConnectionError,
			Error:      fmt.Sprintf("invalid tcp port in target %q", addr),
		}
	}

	timeout := p.cfg.AdaptiveTimeout(0, opts.RecheckInProgress)
	if timeout > p.cfg.TCPLightCheckTimeout {
		timeout = p.cfg.TCPLightCheckTimeout
	}

	start := time.Now()
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	elapsed := time.Since(start)
	if err != nil {
		code := monitor.StatusCodeConnectionError
		if ctx.Err() == context.DeadlineExceeded || strings.Contains(err.Error(), "timeout") {
			code = monitor.StatusCodeTimeout
		}
		return monitor.ProbeResult{
			Status: monitor.StatusOffline, Detailed: monitor.DetailedDown,
			StatusCode: code, ResponseTime: elapsed,
			Error: fmt.Sprintf("connect: %v", err),
		}
	}
	_ = conn.Close()

	return monitor.ProbeResult{
		Status: monitor.StatusOnline, Detailed: monitor.DetailedUP,
		StatusCode: 200, ResponseTime: elapsed,
		UsedMethod: "TCP_CONNECT",
	}
}
