// Package pool manages a set of short-lived HTTP server instances, each bound
// to its own port on the loopback interface.
package pool

import (
	"sync"
)

// MaxPort is the highest TCP port the allocator hands out.
const MaxPort = 65535

// PortAllocator hands out a strictly increasing sequence of ports.
// Ports are never released or reused for the lifetime of the allocator, so a
// stale (id, port) pair can never point at a newer instance.
type PortAllocator struct {
	next int
	mu   sync.Mutex
}

// NewPortAllocator creates a PortAllocator whose first allocation is basePort.
func NewPortAllocator(basePort int) *PortAllocator {
	return &PortAllocator{next: basePort}
}

// Allocate returns the next port and advances the counter.
// It returns ErrPortsExhausted once the counter has passed MaxPort.
func (p *PortAllocator) Allocate() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.next > MaxPort {
		return 0, ErrPortsExhausted
	}
	port := p.next
	p.next++
	return port, nil
}

// Peek returns the port the next Allocate call will hand out, without consuming it.
func (p *PortAllocator) Peek() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}
