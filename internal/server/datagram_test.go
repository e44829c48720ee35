package server

import (
	"net"
	"testing"

	"marsarena/internal/config"
)

func newTestEndpoint(t *testing.T, cfg config.NetworkConfig) *DatagramEndpoint {
	t.Helper()
	d, err := ListenDatagram("127.0.0.1:0", cfg)
	if err != nil {
		t.Fatalf("ListenDatagram: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDatagramUnboundSourcesShareLimiter(t *testing.T) {
	cfg := config.Defaults().Network
	d := newTestEndpoint(t, cfg)

	allowed := 0
	for port := 1; port <= 5000; port++ {
		if d.allow(&net.UDPAddr{IP: net.IPv4(10, 0, byte(port>>8), byte(port)), Port: port}) {
			allowed++
		}
	}
	if len(d.limiters) != 0 {
		t.Fatalf("limiters for unbound sources = %d", len(d.limiters))
	}
	if allowed > cfg.InboundBurst+cfg.InboundRatePerSec {
		t.Fatalf("unbound sources allowed %d datagrams", allowed)
	}
}

func TestDatagramBindKeepsOwnLimiter(t *testing.T) {
	cfg := config.Defaults().Network
	d := newTestEndpoint(t, cfg)
	a := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40001}
	b := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40002}

	// 耗尽共享限流器后，已绑定地址不受影响
	for i := 0; i < 10*cfg.InboundBurst; i++ {
		d.allow(&net.UDPAddr{IP: net.IPv4(10, 1, 0, 1), Port: 1000 + i})
	}
	d.Bind(1, a)
	if !d.allow(a) {
		t.Fatal("bound address throttled by unbound traffic")
	}
	if len(d.limiters) != 1 {
		t.Fatalf("limiters = %d", len(d.limiters))
	}

	d.Bind(1, b)
	if _, ok := d.limiters[a.String()]; ok {
		t.Fatal("stale limiter after rebinding")
	}
	if id, ok := d.lookup(b); !ok || id != 1 {
		t.Fatalf("lookup(b) = %d, %v", id, ok)
	}
	if _, ok := d.lookup(a); ok {
		t.Fatal("old address still bound")
	}

	d.Unbind(1)
	if len(d.limiters) != 0 || len(d.byAddr) != 0 {
		t.Fatalf("after unbind limiters=%d byAddr=%d", len(d.limiters), len(d.byAddr))
	}
}
