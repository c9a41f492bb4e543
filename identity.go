package pomelo

import (
	"sync"

	"github.com/denismitr/pomelo/internal/pkey"
	"github.com/denismitr/pomelo/internal/shardmap"
)

// MergePolicy controls what happens when freshly decoded data arrives
// for a record that still carries unsaved local edits.
type MergePolicy uint8

const (
	// MergeOverwrite installs every incoming value and clears the
	// dirty set: the backend wins. This is the default.
	MergeOverwrite MergePolicy = iota

	// MergePreserveDirty skips keys with unsaved edits and keeps them
	// marked dirty; only clean keys take the incoming values.
	MergePreserveDirty
)

const identityShards = 16

// identityMap owns the single canonical live record per primary key
// value for one model type. Lookups go through an xxhash-sharded map,
// so two concurrent ensures for the same key serialize on one shard
// lock and always produce one record. Insertion order is kept in a
// separate journal for All().
type identityMap struct {
	records *shardmap.Map

	omu   sync.Mutex
	order []*Record
}

func newIdentityMap() *identityMap {
	m, err := shardmap.New(identityShards)
	if err != nil {
		panic("identity map sharding misconfigured: " + err.Error())
	}

	return &identityMap{records: m}
}

// ensure returns the canonical record for pk, constructing and
// registering one when the key is vacant. A nil or empty pk always
// yields a fresh unregistered record.
func (im *identityMap) ensure(t *Type, pk interface{}) (*Record, bool) {
	key := pkey.Canonical(pk)
	if key == "" {
		return newRecord(t), true
	}

	v, created := im.records.GetOrSet(key, func() interface{} {
		r := newRecord(t)
		r.id = pk
		r.state = StateUnloaded
		return r
	})

	rec := v.(*Record)
	if created {
		im.journal(rec)
	}

	return rec, created
}

// adopt registers a record under its current id after a successful
// save. When another instance already holds the key, that instance
// stays canonical and receives the newcomer's attributes.
func (im *identityMap) adopt(r *Record) *Record {
	key := pkey.Canonical(r.ID())
	if key == "" {
		return r
	}

	v, created := im.records.GetOrSet(key, func() interface{} { return r })
	canonical := v.(*Record)

	if created {
		im.journal(r)
	} else if canonical != r {
		canonical.install(r.Attributes(), true)
	}

	return canonical
}

func (im *identityMap) get(pk interface{}) (*Record, bool) {
	v, ok := im.records.Get(pkey.Canonical(pk))
	if !ok {
		return nil, false
	}
	return v.(*Record), true
}

// remove detaches the record from the map; absent keys are a no-op.
// The record itself is untouched, only its addressability changes.
func (im *identityMap) remove(pk interface{}) {
	key := pkey.Canonical(pk)
	if !im.records.Remove(key) {
		return
	}

	im.omu.Lock()
	defer im.omu.Unlock()
	for i, r := range im.order {
		if pkey.Canonical(r.ID()) == key {
			im.order = append(im.order[:i], im.order[i+1:]...)
			break
		}
	}
}

func (im *identityMap) clear() {
	im.records.Purge()

	im.omu.Lock()
	im.order = nil
	im.omu.Unlock()
}

// all returns the current membership in insertion order.
func (im *identityMap) all() []*Record {
	im.omu.Lock()
	defer im.omu.Unlock()

	cp := make([]*Record, len(im.order))
	copy(cp, im.order)
	return cp
}

func (im *identityMap) count() int {
	return im.records.Count()
}

func (im *identityMap) journal(r *Record) {
	im.omu.Lock()
	im.order = append(im.order, r)
	im.omu.Unlock()
}
