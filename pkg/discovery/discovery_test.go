package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func TestTXT_RoundTrip(t *testing.T) {
	txt := EncodeTXT(10000)
	id, ok := DecodeTXT(txt)
	if !ok || id != 10000 {
		t.Errorf("DecodeTXT(%v) = (%d, %v)", txt, id, ok)
	}
}

func TestDecodeTXT_Malformed(t *testing.T) {
	tests := [][]string{
		nil,
		{},
		{"vendor=7"},
		{"id=notanumber"},
		{"id=99999999999"}, // out of uint32 range
	}
	for _, txt := range tests {
		if _, ok := DecodeTXT(txt); ok {
			t.Errorf("DecodeTXT(%v) succeeded", txt)
		}
	}
}

// fakeServer records Shutdown calls.
type fakeServer struct {
	shutdown bool
}

func (f *fakeServer) Shutdown() { f.shutdown = true }

// fakeFactory captures the registration parameters.
type fakeFactory struct {
	server   *fakeServer
	instance string
	service  string
	port     int
	txt      []string
}

func (f *fakeFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	f.instance = instance
	f.service = service
	f.port = port
	f.txt = txt
	f.server = &fakeServer{}
	return f.server, nil
}

func TestAdvertiser_Lifecycle(t *testing.T) {
	factory := &fakeFactory{}
	a := NewAdvertiser(AdvertiserConfig{
		PeerID:        20000,
		Port:          8000,
		ServerFactory: factory,
	})

	if err := a.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if factory.service != ServiceName {
		t.Errorf("registered service %q, want %q", factory.service, ServiceName)
	}
	if factory.port != 8000 {
		t.Errorf("registered port %d, want 8000", factory.port)
	}
	if id, ok := DecodeTXT(factory.txt); !ok || id != 20000 {
		t.Errorf("registered TXT %v does not carry peer 20000", factory.txt)
	}
	if factory.instance == "" {
		t.Error("empty instance name")
	}

	if err := a.Start(); err != ErrAlreadyStarted {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}

	a.Close()
	if !factory.server.shutdown {
		t.Error("Close did not shut the mDNS server down")
	}
	if err := a.Start(); err != ErrClosed {
		t.Errorf("Start after Close = %v, want ErrClosed", err)
	}
}

// fakeBrowser feeds canned entries into the channel.
type fakeBrowser struct {
	entries []*zeroconf.ServiceEntry
}

func (f *fakeBrowser) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	go func() {
		defer close(entries)
		for _, e := range f.entries {
			entries <- e
		}
	}()
	return nil
}

func TestResolver_Lookup(t *testing.T) {
	browser := &fakeBrowser{entries: []*zeroconf.ServiceEntry{
		{Text: []string{"other=1"}, Port: 1},
		{Text: EncodeTXT(10000), Port: 8000, AddrIPv4: []net.IP{net.IPv4(192, 0, 2, 1)}},
	}}
	r := NewResolver(ResolverConfig{Browser: browser})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	peer, err := r.Lookup(ctx, 10000)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if peer.PeerID != 10000 || peer.Port != 8000 {
		t.Errorf("peer = %+v", peer)
	}
	if peer.Addr() != "192.0.2.1:8000" {
		t.Errorf("Addr() = %q", peer.Addr())
	}
}

func TestResolver_LookupMiss(t *testing.T) {
	r := NewResolver(ResolverConfig{Browser: &fakeBrowser{}})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := r.Lookup(ctx, 12345); err == nil {
		t.Error("Lookup of an absent peer succeeded")
	}
}
