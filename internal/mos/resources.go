package mos

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Releaser frees a set of handles on every exit path. Typical use:
//
//	rel := mos.NewReleaser(rs)
//	defer rel.Release()
//	h, err := rel.Allocate(...)
//	...
//	rel.Disarm() // success: caller keeps the handles
type Releaser struct {
	rs      ResourceService
	handles []Handle
	armed   bool
}

// NewReleaser returns an armed releaser over rs.
func NewReleaser(rs ResourceService) *Releaser {
	return &Releaser{rs: rs, armed: true}
}

// Allocate allocates through the underlying service and tracks the handle.
func (r *Releaser) Allocate(p AllocParams) (Handle, error) {
	h, err := r.rs.Allocate(p)
	if err != nil {
		return 0, err
	}
	r.handles = append(r.handles, h)
	return h, nil
}

// Track adds an externally allocated handle.
func (r *Releaser) Track(h Handle) {
	if h.Valid() {
		r.handles = append(r.handles, h)
	}
}

// Handles returns the tracked handles in allocation order.
func (r *Releaser) Handles() []Handle { return r.handles }

// Disarm keeps the handles alive past Release.
func (r *Releaser) Disarm() { r.armed = false }

// Release frees every tracked handle in reverse order if still armed.
func (r *Releaser) Release() error {
	if !r.armed {
		return nil
	}
	r.armed = false
	var errList []error
	for i := len(r.handles) - 1; i >= 0; i-- {
		if err := r.rs.Free(r.handles[i]); err != nil {
			errList = append(errList, fmt.Errorf("free %d: %w", r.handles[i], err))
		}
	}
	r.handles = nil
	return errors.Join(errList...)
}

// Counting decorates a ResourceService with allocation accounting. It
// replaces process-global allocation counters: the owner creates one per
// driver instance and passes it down.
type Counting struct {
	inner ResourceService

	mu    sync.Mutex
	live  map[Handle]string
	total atomic.Uint64

	onChange func(outstanding int)
}

// NewCounting wraps inner. onChange, if set, observes the outstanding count
// after every successful Allocate/Free.
func NewCounting(inner ResourceService, onChange func(outstanding int)) *Counting {
	return &Counting{inner: inner, live: make(map[Handle]string), onChange: onChange}
}

func (c *Counting) Allocate(p AllocParams) (Handle, error) {
	h, err := c.inner.Allocate(p)
	if err != nil {
		return 0, err
	}
	c.total.Add(1)
	c.mu.Lock()
	c.live[h] = p.Name
	n := len(c.live)
	c.mu.Unlock()
	if c.onChange != nil {
		c.onChange(n)
	}
	return h, nil
}

func (c *Counting) Lock(h Handle) ([]byte, error) { return c.inner.Lock(h) }
func (c *Counting) Unlock(h Handle) error         { return c.inner.Unlock(h) }

func (c *Counting) Free(h Handle) error {
	if err := c.inner.Free(h); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.live, h)
	n := len(c.live)
	c.mu.Unlock()
	if c.onChange != nil {
		c.onChange(n)
	}
	return nil
}

// Outstanding returns the names of resources allocated and not yet freed.
func (c *Counting) Outstanding() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.live))
	for _, name := range c.live {
		out = append(out, name)
	}
	return out
}

// Total returns the number of successful allocations since creation.
func (c *Counting) Total() uint64 { return c.total.Load() }

type routedDevice struct {
	ResourceService
	ContextService
	Submitter
	info func() DeviceInfo
}

func (r routedDevice) Info() DeviceInfo { return r.info() }

// WithResources returns dev with its allocations routed through rs,
// usually a Counting wrapping dev itself.
func WithResources(dev Device, rs ResourceService) Device {
	return routedDevice{ResourceService: rs, ContextService: dev, Submitter: dev, info: dev.Info}
}
