package pomelo

import (
	"context"
	"sort"
	"sync"

	"github.com/denismitr/pomelo/internal/pkey"
	"github.com/denismitr/pomelo/options"
	"github.com/pkg/errors"
)

// Record is one in-memory instance of a backend record. For as long as
// it carries a primary key value it is owned by its type's identity
// map and is the only live instance for that key; callers hold
// non-owning references and must bind to the record delivered through
// operation callbacks, never to transient instances.
type Record struct {
	t *Type

	mu        sync.RWMutex
	id        interface{}
	attrs     M
	dirty     map[string]struct{}
	errs      *ErrorsSet
	state     State
	persisted bool
	inFlight  bool
}

func newRecord(t *Type) *Record {
	return &Record{
		t:     t,
		attrs: make(M),
		dirty: make(map[string]struct{}),
		errs:  newErrorsSet(),
		state: StateNew,
	}
}

func (r *Record) Type() *Type {
	return r.t
}

func (r *Record) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Record) ID() interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.id
}

// SetID rebinds the primary key of a record that was never persisted.
func (r *Record) SetID(v interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.persisted {
		return errors.Wrapf(ErrIDImmutable, "record %q", pkey.Canonical(r.id))
	}

	r.id = v
	r.attrs[r.t.pkName] = v
	r.dirty[r.t.pkName] = struct{}{}
	return nil
}

func (r *Record) Get(key string) interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.attrs[key]
}

// Set installs an attribute value and marks the key dirty. State does
// not change; dirtiness is tracked by the key set alone.
func (r *Record) Set(key string, v interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attrs[key] = v
	r.dirty[key] = struct{}{}

	if key == r.t.pkName && !r.persisted {
		r.id = v
	}
}

// Attributes returns a snapshot of the current attribute map. Nested
// values are shared; top-level installs on the snapshot do not touch
// the record.
func (r *Record) Attributes() M {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.attrs.clone()
}

func (r *Record) DirtyKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.dirty))
	for k := range r.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Record) IsDirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dirty) > 0
}

// Errors holds the outcome of the most recent validation run.
func (r *Record) Errors() *ErrorsSet {
	return r.errs
}

// FromJSON decodes a raw payload through the type's encoding rules
// directly onto this record, treating it as freshly loaded data. The
// identity map is not consulted; find and load are the canonical
// decode paths.
func (r *Record) FromJSON(raw M) error {
	return r.absorb(raw, false)
}

// ToJSON encodes the current attributes into their backend-land shape.
func (r *Record) ToJSON() (M, error) {
	return r.t.codec.encode(r.snapshot(), r)
}

// Validate runs every registered rule to completion and reports
// through cb; the record is valid iff Errors is empty at that point.
func (r *Record) Validate(cb RecordCallback) error {
	if cb == nil {
		return errors.Wrap(ErrCallbackRequired, "Record.Validate")
	}

	runValidation(r, r.t.validators, cb)
	return nil
}

// Load refetches this record's raw data from storage. On failure the
// attributes remain untouched and the state turns StateError.
func (r *Record) Load(ctx context.Context, opt *options.Read, cb RecordCallback) error {
	t := r.t
	if t.adapter == nil {
		return errors.Wrapf(ErrNoAdapter, "cannot load %q record", t.name)
	}

	r.mu.Lock()
	if r.state == StateDestroyed {
		r.mu.Unlock()
		return errors.Wrapf(ErrRecordDestroyed, "cannot load %q record", t.name)
	}
	id := pkey.Canonical(r.id)
	if id == "" {
		r.mu.Unlock()
		return errors.Wrapf(ErrEmptyID, "cannot load %q record", t.name)
	}
	r.state = StateLoading
	r.mu.Unlock()

	t.adapter.Read(ctx, t, id, opt, func(err error, raw M) {
		if err != nil {
			r.setState(StateError)
			invoke(cb, err, r)
			return
		}

		canonical, merr := t.materialize(raw)
		if merr != nil {
			r.setState(StateError)
			invoke(cb, merr, r)
			return
		}

		if canonical != r {
			// this instance was never registered; let it observe the
			// loaded data too, though the canonical one wins for callers
			if aerr := r.absorb(raw, false); aerr != nil {
				r.setState(StateError)
				invoke(cb, aerr, r)
				return
			}
		}

		invoke(cb, nil, canonical)
	})

	return nil
}

// Save validates, encodes and dispatches a create or update. The
// callback receives the ErrorsSet as its error when validation fails
// (before anything reaches storage), a pass-through storage error on
// dispatch failure, or the canonical record on success. A second
// mutating operation while one is in flight is rejected synchronously.
func (r *Record) Save(ctx context.Context, opt *options.Write, cb RecordCallback) error {
	t := r.t
	if t.adapter == nil {
		return errors.Wrapf(ErrNoAdapter, "cannot save %q record", t.name)
	}

	r.mu.Lock()
	if r.state == StateDestroyed {
		r.mu.Unlock()
		return errors.Wrapf(ErrRecordDestroyed, "cannot save %q record", t.name)
	}
	if r.inFlight {
		r.mu.Unlock()
		return errors.Wrapf(ErrOperationInFlight, "cannot save %q record", t.name)
	}
	r.inFlight = true
	r.state = StateValidating
	r.mu.Unlock()

	runValidation(r, t.validators, func(ruleErr error, _ *Record) {
		if ruleErr != nil {
			r.settle(StateError)
			invoke(cb, ruleErr, r)
			return
		}

		if !r.errs.IsEmpty() {
			r.settle(StateError)
			invoke(cb, r.errs, r)
			return
		}

		payload, err := t.codec.encode(r.snapshot(), r)
		if err != nil {
			r.settle(StateError)
			invoke(cb, err, r)
			return
		}

		r.mu.Lock()
		id := pkey.Canonical(r.id)
		creating := !r.persisted || id == ""
		r.state = StateSaving
		r.mu.Unlock()

		after := func(err error, raw M) {
			if err != nil {
				// record stays dirty so the save can be retried
				r.settle(StateError)
				invoke(cb, err, r)
				return
			}

			if raw != nil {
				if aerr := r.absorb(raw, true); aerr != nil {
					r.settle(StateError)
					invoke(cb, aerr, r)
					return
				}
			} else {
				r.install(nil, true)
			}

			canonical := t.identity.adopt(r)
			r.settle(StateLoaded)
			invoke(cb, nil, canonical)
		}

		if creating {
			t.adapter.Create(ctx, t, payload, opt, after)
		} else {
			t.adapter.Update(ctx, t, id, payload, opt, after)
		}
	})

	return nil
}

// Destroy removes the record from storage and, on success, from the
// identity map. On failure the record keeps its place in the map.
func (r *Record) Destroy(ctx context.Context, opt *options.Write, cb ErrorCallback) error {
	t := r.t
	if t.adapter == nil {
		return errors.Wrapf(ErrNoAdapter, "cannot destroy %q record", t.name)
	}

	r.mu.Lock()
	if r.state == StateDestroyed {
		r.mu.Unlock()
		return errors.Wrapf(ErrRecordDestroyed, "cannot destroy %q record", t.name)
	}
	id := pkey.Canonical(r.id)
	if !r.persisted || id == "" {
		r.mu.Unlock()
		return errors.Wrapf(ErrNotPersisted, "cannot destroy %q record", t.name)
	}
	if r.inFlight {
		r.mu.Unlock()
		return errors.Wrapf(ErrOperationInFlight, "cannot destroy %q record", t.name)
	}
	r.inFlight = true
	r.state = StateDestroying
	r.mu.Unlock()

	t.adapter.Destroy(ctx, t, id, opt, func(err error) {
		if err != nil {
			r.settle(StateError)
			if cb != nil {
				cb(err)
			}
			return
		}

		t.identity.remove(r.ID())
		r.settle(StateDestroyed)
		if cb != nil {
			cb(nil)
		}
	})

	return nil
}

// absorb decodes a raw payload and merges the result onto the record
// under the type's merge policy. afterSave marks the merge as the
// outcome of this record's own save, which always clears dirt.
func (r *Record) absorb(raw M, afterSave bool) error {
	attrs, err := r.t.codec.decode(raw, r)
	if err != nil {
		return err
	}

	r.install(attrs, afterSave)
	return nil
}

func (r *Record) install(attrs M, afterSave bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range attrs {
		if !afterSave && r.t.policy == MergePreserveDirty {
			if _, isDirty := r.dirty[k]; isDirty {
				continue
			}
		}
		r.attrs[k] = v
	}

	if v, ok := r.attrs[r.t.pkName]; ok && v != nil {
		r.id = v
	}

	if afterSave || r.t.policy == MergeOverwrite {
		r.dirty = make(map[string]struct{})
	}

	r.state = StateLoaded
	if pkey.Canonical(r.id) != "" {
		r.persisted = true
	}
}

func (r *Record) snapshot() M {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.attrs.clone()
}

func (r *Record) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// settle ends an in-flight mutating operation.
func (r *Record) settle(s State) {
	r.mu.Lock()
	r.state = s
	r.inFlight = false
	r.mu.Unlock()
}

func invoke(cb RecordCallback, err error, r *Record) {
	if cb != nil {
		cb(err, r)
	}
}
