//go:build linux

package adapters

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"

	"stressfleet/logging"
)

// profileCollector loads operator-supplied BPF object files and counts the
// sched/exec events they emit while the fleet runs. The objects are
// external: a host without them, or without the privilege to load them,
// just runs unprofiled.
type profileCollector struct {
	mu      sync.Mutex
	objs    []*ebpf.Collection
	links   []link.Link
	readers []*ringbuf.Reader
	wg      sync.WaitGroup
	events  uint64
	closed  chan struct{}
}

// tracepoints tried for each program name found in an object.
var profileHooks = map[string][2]string{
	"handle_exec":   {"sched", "sched_process_exec"},
	"handle_fork":   {"sched", "sched_process_fork"},
	"handle_exit":   {"sched", "sched_process_exit"},
	"handle_switch": {"sched", "sched_switch"},
}

func startProfile(dir string) *profileCollector {
	paths, err := filepath.Glob(filepath.Join(dir, "*.o"))
	if err != nil || len(paths) == 0 {
		logging.Debugf("profile: no BPF objects under %s", dir)
		return nil
	}

	c := &profileCollector{closed: make(chan struct{})}
	for _, path := range paths {
		spec, err := ebpf.LoadCollectionSpec(path)
		if err != nil {
			logging.Debugf("profile: load %s: %v", path, err)
			continue
		}
		coll, err := ebpf.NewCollection(spec)
		if err != nil {
			logging.Debugf("profile: create %s: %v", filepath.Base(path), err)
			continue
		}
		attached := false
		for name, prog := range coll.Programs {
			hook, ok := profileHooks[name]
			if !ok {
				continue
			}
			l, err := link.Tracepoint(hook[0], hook[1], prog, nil)
			if err != nil {
				logging.Debugf("profile: attach %s: %v", name, err)
				continue
			}
			c.links = append(c.links, l)
			attached = true
		}
		if !attached {
			coll.Close()
			continue
		}
		c.objs = append(c.objs, coll)

		if events, ok := coll.Maps["events"]; ok {
			rd, err := ringbuf.NewReader(events)
			if err != nil {
				logging.Debugf("profile: ringbuf: %v", err)
				continue
			}
			c.readers = append(c.readers, rd)
			c.wg.Add(1)
			go c.drain(rd)
		}
	}
	if len(c.objs) == 0 {
		return nil
	}
	logging.Debugf("profile: %d BPF collections attached", len(c.objs))
	return c
}

func (c *profileCollector) drain(rd *ringbuf.Reader) {
	defer c.wg.Done()
	for {
		_, err := rd.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) {
				return
			}
			select {
			case <-c.closed:
				return
			default:
				continue
			}
		}
		c.mu.Lock()
		c.events++
		c.mu.Unlock()
	}
}

func (c *profileCollector) stop() {
	if c == nil {
		return
	}
	close(c.closed)
	for _, rd := range c.readers {
		_ = rd.Close()
	}
	c.wg.Wait()
	for _, l := range c.links {
		_ = l.Close()
	}
	for _, coll := range c.objs {
		coll.Close()
	}
	c.mu.Lock()
	events := c.events
	c.mu.Unlock()
	logging.Infof("profile: %d scheduler events observed", events)
}
