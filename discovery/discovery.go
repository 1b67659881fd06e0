// Package discovery is the top-level entry point applications use to find
// and open sensors: it fans a Discover call out across every registered
// transport and resolves a chosen descriptor back to its transport for
// opening.
package discovery

import (
	"context"
	"sync"

	"github.com/bramburn/motionlink/errs"
	"github.com/bramburn/motionlink/model"
	"github.com/bramburn/motionlink/sensor"
	"github.com/bramburn/motionlink/transport"
)

// Discover enumerates every descriptor visible across all transports
// currently registered in reg. A single transport's discovery failure does
// not abort the others; it is simply omitted from the result.
func Discover(ctx context.Context, reg *transport.Registry) []model.Descriptor {
	transports := reg.List()

	var (
		mu  sync.Mutex
		out []model.Descriptor
		wg  sync.WaitGroup
	)
	for _, t := range transports {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			descs, err := t.Discover(ctx)
			if err != nil {
				return
			}
			mu.Lock()
			out = append(out, descs...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

// Open resolves desc.IOType against reg and opens a session against it.
func Open(ctx context.Context, reg *transport.Registry, desc model.Descriptor, opts sensor.Options) (*sensor.Sensor, error) {
	t, err := reg.Get(desc.IOType)
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, "resolving transport for "+desc.IOType, err)
	}
	return sensor.Open(ctx, t, desc, opts)
}
