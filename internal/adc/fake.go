package adc

import "sync"

// Fake is an in-memory converter for tests.
type Fake struct {
	mu    sync.Mutex
	value int
	err   error
	reads int
}

// NewFake creates a Fake reading value.
func NewFake(value int) *Fake {
	return &Fake{value: value}
}

// Set changes the value returned by Read.
func (f *Fake) Set(value int) {
	f.mu.Lock()
	f.value = value
	f.mu.Unlock()
}

// Fail makes every Read return err. A nil err restores normal reads.
func (f *Fake) Fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// Read returns the current value.
func (f *Fake) Read() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return 0, f.err
	}
	return f.value, nil
}

// Reads returns how many times Read was called.
func (f *Fake) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}
