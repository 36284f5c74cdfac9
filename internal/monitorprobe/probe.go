package monitorprobe

import (
	"context"
	"strings"

	"pulsewatch/internal/monitorcfg"
	"pulsewatch/pkg/monitor"
)

// Engine dispatches one target's probe attempt to the HTTP, TCP, or UDP
// implementation by Kind. It holds no per-target state: every field the
// probe needs comes in through ProbeOptions (spec.md §9, "Dynamic
// options").
type Engine struct {
	http *HTTPProbe
	tcp  *TCPProbe
	udp  *UDPProbe
}

func NewEngine(cfg monitorcfg.Config) *Engine {
	return &Engine{
		http: NewHTTPProbe(cfg),
		tcp:  NewTCPProbe(cfg),
		udp:  NewUDPProbe(cfg),
	}
}

// Run executes a single probe attempt. target is either a URL (website,
// rest_endpoint) or a host:port pair (tcp, udp); the caller is responsible
// for having derived opts.Kind from the target record.
func (e *Engine) Run(ctx context.Context, target string, opts monitor.ProbeOptions) monitor.ProbeResult {
	switch opts.Kind {
	case monitor.KindTCP:
		return e.tcp.Run(ctx, target, opts)
	case monitor.KindUDP:
		return e.udp.Run(ctx, target, opts)
	default:
		return e.http.Run(ctx, target, opts)
	}
}

// DeriveKind implements the Kind-derivation rule from SPEC_FULL.md's
// Domain Model supplement: an explicit Kind on the target always wins;
// otherwise it is inferred from the URL scheme.
func DeriveKind(explicit monitor.Kind, url string) monitor.Kind {
	if explicit != "" {
		return explicit
	}
	switch {
	case strings.HasPrefix(url, "tcp://"):
		return monitor.KindTCP
	case strings.HasPrefix(url, "udp://"):
		return monitor.KindUDP
	default:
		return monitor.KindWebsite
	}
}
