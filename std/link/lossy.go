package link

import (
	"fmt"
	"net"
	"sync"
)

// Impairment describes deterministic damage applied to outgoing datagrams.
// Zero values disable the respective impairment.
type Impairment struct {
	// Drop every Nth datagram written.
	DropEvery int
	// Send every Mth datagram twice.
	DupEvery int
}

func (i Impairment) Enabled() bool {
	return i.DropEvery > 0 || i.DupEvery > 0
}

// LossyConn wraps a datagram socket and impairs what is written to it.
type LossyConn struct {
	net.PacketConn
	imp Impairment

	lock     sync.Mutex
	nWritten uint64
	nDropped uint64
	nDup     uint64
}

// NewLossyConn wraps conn. Reads are passed through unchanged.
func NewLossyConn(conn net.PacketConn, imp Impairment) *LossyConn {
	return &LossyConn{PacketConn: conn, imp: imp}
}

func (c *LossyConn) String() string {
	return fmt.Sprintf("lossy-conn (drop=%d dup=%d)", c.imp.DropEvery, c.imp.DupEvery)
}

func (c *LossyConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.lock.Lock()
	c.nWritten++
	n := c.nWritten
	drop := c.imp.DropEvery > 0 && n%uint64(c.imp.DropEvery) == 0
	dup := !drop && c.imp.DupEvery > 0 && n%uint64(c.imp.DupEvery) == 0
	if drop {
		c.nDropped++
	}
	if dup {
		c.nDup++
	}
	c.lock.Unlock()

	if drop {
		return len(p), nil
	}
	if dup {
		if _, err := c.PacketConn.WriteTo(p, addr); err != nil {
			return 0, err
		}
	}
	return c.PacketConn.WriteTo(p, addr)
}

// Dropped returns the number of datagrams discarded so far.
func (c *LossyConn) Dropped() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.nDropped
}

// Duplicated returns the number of datagrams sent twice so far.
func (c *LossyConn) Duplicated() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.nDup
}
