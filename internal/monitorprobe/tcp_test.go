package monitorprobe

import (
	"context"
	"net"
	"testing"

	"pulsewatch/internal/monitorcfg"
	"pulsewatch/pkg/monitor"
)

func TestTCPProbe_OpenPortIsUP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	p := NewTCPProbe(monitorcfg.Defaults())
	res := p.Run(context.Background(), ln.Addr().String(), monitor.ProbeOptions{Kind: monitor.KindTCP})
	if res.Status != monitor.StatusOnline || res.Detailed != monitor.DetailedUP {
		t.Fatalf("expected online/UP against an open port, got %s/%s (%s)", res.Status, res.Detailed, res.Error)
	}
}

func TestTCPProbe_InvalidAddressIsDown(t *testing.T) {
	p := NewTCPProbe(monitorcfg.Defaults())
	res := p.Run(context.Background(), "not-a-valid-addr", monitor.ProbeOptions{Kind: monitor.KindTCP})
	if res.Status != monitor.StatusOffline {
		t.Fatalf("expected offline for malformed target, got %s", res.Status)
	}
}

func TestTCPProbe_ClosedPortIsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	p := NewTCPProbe(monitorcfg.Defaults())
	res := p.Run(context.Background(), addr, monitor.ProbeOptions{Kind: monitor.KindTCP})
	if res.Status != monitor.StatusOffline {
		t.Fatalf("expected offline against a closed port, got %s", res.Status)
	}
}
