package udp

import (
	"net/netip"
	"sync"
)

// defaultMaxConnectionIDErrors is the number of cookie failures a single
// source IP may accumulate within one window before being dropped silently.
const defaultMaxConnectionIDErrors = 10

// BanService counts connection-id failures per source IP. Once a source
// reaches the ceiling its datagrams are dropped without a response until
// the window rolls over.
type BanService struct {
	maxErrors uint32
	counters  map[netip.Addr]uint32
	sync.RWMutex
}

// NewBanService allocates a BanService with the given failure ceiling.
// Non-positive ceilings fall back to the default.
func NewBanService(maxErrors uint32) *BanService {
	if maxErrors == 0 {
		maxErrors = defaultMaxConnectionIDErrors
	}

	return &BanService{
		maxErrors: maxErrors,
		counters:  make(map[netip.Addr]uint32),
	}
}

// IncreaseCounter records one cookie failure for a source IP.
func (b *BanService) IncreaseCounter(addr netip.Addr) {
	b.Lock()
	defer b.Unlock()

	b.counters[addr]++
}

// IsBanned reports whether a source IP has reached the failure ceiling in
// the current window.
func (b *BanService) IsBanned(addr netip.Addr) bool {
	b.RLock()
	defer b.RUnlock()

	return b.counters[addr] >= b.maxErrors
}

// ResetBannedIPs rolls the window over, forgetting every counter.
func (b *BanService) ResetBannedIPs() {
	b.Lock()
	defer b.Unlock()

	b.counters = make(map[netip.Addr]uint32)
}
