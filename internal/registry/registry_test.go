package registry

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/EnzoRigon/udp-client-server/internal/domain"
	"github.com/stretchr/testify/assert"
)

func peer(s string) domain.PeerAddress {
	ap := netip.MustParseAddrPort(s)
	return domain.PeerAddress{IP: ap.Addr(), Port: ap.Port()}
}

func TestAddIsIdempotent(t *testing.T) {
	r := New()
	a := peer("127.0.0.1:4000")

	assert.True(t, r.Add(a))
	for i := 0; i < 10; i++ {
		assert.False(t, r.Add(a))
	}

	assert.Equal(t, 1, r.Len())
	assert.True(t, r.Contains(a))
	assert.False(t, r.Contains(peer("127.0.0.1:4001")))
}

func TestPortAndIPBothDistinguishPeers(t *testing.T) {
	r := New()
	r.Add(peer("127.0.0.1:4000"))
	r.Add(peer("127.0.0.1:4001"))
	r.Add(peer("10.0.0.1:4000"))

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []domain.PeerAddress{
		peer("10.0.0.1:4000"),
		peer("127.0.0.1:4000"),
		peer("127.0.0.1:4001"),
	}, r.Snapshot())
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New()
	r.Add(peer("127.0.0.1:4000"))

	snap := r.Snapshot()
	r.Add(peer("127.0.0.1:4001"))

	assert.Len(t, snap, 1)
	assert.Len(t, r.Snapshot(), 2)
}

func TestConcurrentAdd(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for port := 0; port < 100; port++ {
				r.Add(domain.PeerAddress{IP: netip.MustParseAddr("127.0.0.1"), Port: uint16(5000 + port)})
				_ = r.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, r.Len())
}
