package sim

import (
	"context"
	"sort"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/gwillem/armgoto/pkg/geom"
)

type object struct {
	known, attached bool
	pose            geom.Pose
	size            r3.Vector
	link            string
	touchLinks      []string
}

type pending struct {
	obj       object
	remaining int
}

// World is an in-memory collision world. Attaching an object removes it from
// the known objects, detaching puts it back. Changes become visible after a
// configurable number of polls.
type World struct {
	mu      sync.Mutex
	objects map[string]object
	pending map[string]pending
	lag     int
	stalled bool
	polls   int
}

// WorldOption configures a World.
type WorldOption func(*World)

// WithLag delays every change by n calls of AttachedObjects: the change is
// visible from the (n+1)th call on.
func WithLag(n int) WorldOption {
	return func(w *World) { w.lag = n }
}

// NewWorld creates an empty world.
func NewWorld(opts ...WorldOption) *World {
	w := &World{
		objects: make(map[string]object),
		pending: make(map[string]pending),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Stall stops pending changes from ever becoming visible.
func (w *World) Stall() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stalled = true
}

// Polls returns how many times AttachedObjects has been called.
func (w *World) Polls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.polls
}

// TouchLinks returns the links an attached object may touch.
func (w *World) TouchLinks(name string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.current(name).touchLinks...)
}

// current returns the latest requested state of name, visible or not.
func (w *World) current(name string) object {
	if p, ok := w.pending[name]; ok {
		return p.obj
	}
	return w.objects[name]
}

func (w *World) update(name string, obj object) {
	if w.lag == 0 && !w.stalled {
		w.objects[name] = obj
		return
	}
	w.pending[name] = pending{obj: obj, remaining: w.lag}
}

func (w *World) tick() {
	w.polls++
	if w.stalled {
		return
	}
	for name, p := range w.pending {
		if p.remaining > 0 {
			p.remaining--
			w.pending[name] = p
			continue
		}
		w.objects[name] = p.obj
		delete(w.pending, name)
	}
}

// AddBox adds a box to the world.
func (w *World) AddBox(_ context.Context, name string, pose geom.Pose, size r3.Vector) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.update(name, object{known: true, pose: pose, size: size})
	return nil
}

// AttachBox attaches a known box to link.
func (w *World) AttachBox(_ context.Context, link, name string, touchLinks []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	obj := w.current(name)
	if !obj.known && !obj.attached {
		return errors.Errorf("object %q is not in the world", name)
	}
	obj.known, obj.attached = false, true
	obj.link = link
	obj.touchLinks = append([]string(nil), touchLinks...)
	w.update(name, obj)
	return nil
}

// RemoveAttachedObject detaches name from link and returns it to the world.
func (w *World) RemoveAttachedObject(_ context.Context, link, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	obj := w.current(name)
	if !obj.attached || obj.link != link {
		return errors.Errorf("object %q is not attached to %q", name, link)
	}
	obj.known, obj.attached = true, false
	obj.link, obj.touchLinks = "", nil
	w.update(name, obj)
	return nil
}

// RemoveWorldObject removes a known object from the world.
func (w *World) RemoveWorldObject(_ context.Context, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	obj := w.current(name)
	obj.known = false
	w.update(name, obj)
	return nil
}

// AttachedObjects returns which of names are attached. Empty names means all.
func (w *World) AttachedObjects(_ context.Context, names []string) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tick()

	var out []string
	if len(names) == 0 {
		for name, obj := range w.objects {
			if obj.attached {
				out = append(out, name)
			}
		}
		sort.Strings(out)
		return out, nil
	}
	for _, name := range names {
		if w.objects[name].attached {
			out = append(out, name)
		}
	}
	return out, nil
}

// KnownObjectNames returns the objects currently in the world.
func (w *World) KnownObjectNames(_ context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for name, obj := range w.objects {
		if obj.known {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}
