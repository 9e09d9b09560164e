package ioport

import "fmt"

// pool maps logical indices to port numbers. Logical indices below available
// are the unclaimed ports; claimed ports sit above it, most recent first.
type pool struct {
	m         []int
	available int
}

func newPool(n int) pool {
	p := pool{m: make([]int, n), available: n}
	for i := range p.m {
		p.m[i] = i
	}
	return p
}

func (p *pool) len() int {
	return len(p.m)
}

func (p *pool) valid(logical int) bool {
	return logical >= 0 && logical < len(p.m)
}

func (p *pool) reverse(port int) int {
	for i, n := range p.m {
		if n == port {
			return i
		}
	}
	return -1
}

// claim moves the port at logical to the tail of the free region, shifting
// later free ports down by one, and returns its new index. relabel is called
// for every shifted port with its new index.
func (p *pool) claim(logical int, relabel func(port, logical int)) int {
	port := p.m[logical]
	p.available--
	for i := logical; i < p.available; i++ {
		p.m[i] = p.m[i+1]
		relabel(p.m[i], i)
	}
	p.m[p.available] = port
	return p.available
}

// verify panics if the map is not a permutation or the claimed/unclaimed
// split disagrees with claimed. A broken pool cannot be recovered.
func (p *pool) verify(dir Direction, claimed func(port int) bool) {
	var seen uint64
	for i, n := range p.m {
		if n < 0 || n >= len(p.m) || seen&(1<<uint(n)) != 0 {
			panic(fmt.Sprintf("ioport: %s pool corrupted at %d: %v", dir, i, p.m))
		}
		seen |= 1 << uint(n)
		if claimed(n) != (i >= p.available) {
			panic(fmt.Sprintf("ioport: %s pool claim boundary corrupted at %d (available %d)", dir, i, p.available))
		}
	}
}
