// Package memstore is an in-memory storage adapter. Rows live as JSON
// blobs in btree tables ordered by segment-aware primary key, queries
// resolve gjson paths against the stored blobs, and every callback
// fires on its own goroutine, as the adapter contract demands.
package memstore

import (
	"context"
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/denismitr/pomelo"
	"github.com/denismitr/pomelo/internal/pkey"
	"github.com/denismitr/pomelo/options"
	"github.com/pkg/errors"
	"github.com/tidwall/btree"
	"github.com/tidwall/gjson"
)

var ErrAlreadyExists = errors.New("key already exists in store")

const castPanic = "how could a rows item not be of type *row"

type row struct {
	key  pkey.PK
	blob []byte
}

func byPrimaryKeys(a, b interface{}) bool {
	r1, r2 := a.(*row), b.(*row)
	return r1.key.Less(r2.key)
}

type table struct {
	rows *btree.BTree
	seq  uint64
}

// Store implements pomelo.Adapter. One Store may back any number of
// model types; each storage name gets its own table.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
}

func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

func (s *Store) Create(ctx context.Context, t *pomelo.Type, payload pomelo.M, opt *options.Write, cb pomelo.RawCallback) {
	go func() {
		s.mu.Lock()
		tb := s.tableUnderLock(t.StorageName())
		raw, err := insertUnderLock(tb, t.PrimaryKey(), payload)
		s.mu.Unlock()

		cb(err, raw)
	}()
}

func (s *Store) Read(ctx context.Context, t *pomelo.Type, id string, opt *options.Read, cb pomelo.RawCallback) {
	go func() {
		s.mu.RLock()
		var blob []byte
		if tb := s.tables[t.StorageName()]; tb != nil {
			if item := tb.rows.Get(&row{key: pkey.New(id)}); item != nil {
				blob = item.(*row).blob
			}
		}
		s.mu.RUnlock()

		if blob == nil {
			cb(errors.Wrapf(pomelo.ErrNotFound, "key %s in %s", id, t.StorageName()), nil)
			return
		}

		raw, err := echo(blob)
		cb(err, raw)
	}()
}

func (s *Store) ReadAll(ctx context.Context, t *pomelo.Type, q *options.Query, cb pomelo.RawListCallback) {
	go func() {
		if q == nil {
			q = options.Q()
		}

		s.mu.RLock()
		var blobs [][]byte
		if tb := s.tables[t.StorageName()]; tb != nil {
			blobs = scanUnderLock(tb, q)
		}
		s.mu.RUnlock()

		raws := make([]pomelo.M, 0, len(blobs))
		for _, b := range blobs {
			m, err := echo(b)
			if err != nil {
				cb(err, nil)
				return
			}
			raws = append(raws, m)
		}

		cb(nil, raws)
	}()
}

func (s *Store) Update(ctx context.Context, t *pomelo.Type, id string, payload pomelo.M, opt *options.Write, cb pomelo.RawCallback) {
	go func() {
		s.mu.Lock()
		tb := s.tableUnderLock(t.StorageName())

		var raw pomelo.M
		var err error
		if tb.rows.Get(&row{key: pkey.New(id)}) == nil {
			err = errors.Wrapf(pomelo.ErrNotFound, "key %s in %s", id, t.StorageName())
		} else {
			raw, err = replaceUnderLock(tb, t.PrimaryKey(), id, payload)
		}
		s.mu.Unlock()

		cb(err, raw)
	}()
}

func (s *Store) Destroy(ctx context.Context, t *pomelo.Type, id string, opt *options.Write, cb pomelo.ErrorCallback) {
	go func() {
		s.mu.Lock()
		var err error
		tb := s.tables[t.StorageName()]
		if tb == nil || tb.rows.Get(&row{key: pkey.New(id)}) == nil {
			err = errors.Wrapf(pomelo.ErrNotFound, "key %s in %s", id, t.StorageName())
		} else {
			tb.rows.Delete(&row{key: pkey.New(id)})
		}
		s.mu.Unlock()

		cb(err)
	}()
}

// Seed inserts raw rows synchronously, bypassing the asynchronous
// contract. Test setup only.
func (s *Store) Seed(t *pomelo.Type, raws ...pomelo.M) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tb := s.tableUnderLock(t.StorageName())
	for _, raw := range raws {
		if _, err := insertUnderLock(tb, t.PrimaryKey(), raw); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of rows stored under one storage name.
func (s *Store) Len(storage string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tb := s.tables[storage]
	if tb == nil {
		return 0
	}
	return tb.rows.Len()
}

func (s *Store) tableUnderLock(name string) *table {
	tb, ok := s.tables[name]
	if !ok {
		tb = &table{rows: btree.NewNonConcurrent(byPrimaryKeys)}
		s.tables[name] = tb
	}
	return tb
}

func insertUnderLock(tb *table, pkName string, payload pomelo.M) (pomelo.M, error) {
	cp := make(pomelo.M, len(payload)+1)
	for k, v := range payload {
		cp[k] = v
	}

	key := pkey.Canonical(cp[pkName])
	if key == "" {
		tb.seq++
		key = strconv.FormatUint(tb.seq, 10)
		cp[pkName] = key
	}

	if existing := tb.rows.Get(&row{key: pkey.New(key)}); existing != nil {
		return nil, errors.Wrapf(ErrAlreadyExists, "key %s", key)
	}

	return storeUnderLock(tb, key, cp)
}

func replaceUnderLock(tb *table, pkName, id string, payload pomelo.M) (pomelo.M, error) {
	cp := make(pomelo.M, len(payload)+1)
	for k, v := range payload {
		cp[k] = v
	}
	if _, ok := cp[pkName]; !ok {
		cp[pkName] = id
	}

	return storeUnderLock(tb, id, cp)
}

func storeUnderLock(tb *table, key string, cp pomelo.M) (pomelo.M, error) {
	blob, err := json.Marshal(cp)
	if err != nil {
		return nil, errors.Wrapf(err, "could not marshal payload for key %s", key)
	}

	tb.rows.Set(&row{key: pkey.New(key), blob: blob})

	// echo the stored shape back, JSON-normalized, so callers observe
	// exactly what a later read would return
	return echo(blob)
}

func echo(blob []byte) (pomelo.M, error) {
	var m pomelo.M
	if err := json.Unmarshal(blob, &m); err != nil {
		return nil, errors.Wrap(err, "stored payload is not valid json")
	}
	return m, nil
}

func scanUnderLock(tb *table, q *options.Query) [][]byte {
	var blobs [][]byte

	iter := func(item interface{}) bool {
		r, ok := item.(*row)
		if !ok {
			panic(castPanic)
		}

		if q.Px != "" && !strings.HasPrefix(r.key.String(), q.Px) {
			return true
		}
		if len(q.Patterns) != 0 && !r.key.Match(q.Patterns) {
			return true
		}
		if !matchWhere(r.blob, q.Wh) {
			return true
		}

		blobs = append(blobs, r.blob)
		return q.Max <= 0 || len(blobs) < q.Max
	}

	descending := q.O == options.Descend

	switch {
	case q.KR != nil && descending:
		descendRange(tb.rows, &row{key: pkey.New(q.KR.From)}, &row{key: pkey.New(q.KR.To)}, iter)
	case q.KR != nil:
		ascendRange(tb.rows, &row{key: pkey.New(q.KR.From)}, &row{key: pkey.New(q.KR.To)}, iter)
	case q.Px != "" && !descending:
		tb.rows.Ascend(&row{key: pkey.New(q.Px)}, iter)
	case descending:
		tb.rows.Descend(nil, iter)
	default:
		tb.rows.Ascend(nil, iter)
	}

	return blobs
}

// Both range boundaries are inclusive.
func ascendRange(tr *btree.BTree, from, to interface{}, iter func(item interface{}) bool) {
	tr.Ascend(from, func(item interface{}) bool {
		return !tr.Less(to, item) && iter(item)
	})
}

func descendRange(tr *btree.BTree, from, to interface{}, iter func(item interface{}) bool) {
	tr.Descend(to, func(item interface{}) bool {
		return !tr.Less(item, from) && iter(item)
	})
}

func matchWhere(blob []byte, conditions []options.Where) bool {
	for _, w := range conditions {
		res := gjson.GetBytes(blob, w.Path)
		if !res.Exists() {
			return false
		}

		switch ev := w.Value.(type) {
		case string:
			if res.String() != ev {
				return false
			}
		case bool:
			if res.Bool() != ev {
				return false
			}
		case int:
			if res.Float() != float64(ev) {
				return false
			}
		case int64:
			if res.Float() != float64(ev) {
				return false
			}
		case float64:
			if res.Float() != ev {
				return false
			}
		default:
			if !reflect.DeepEqual(res.Value(), ev) {
				return false
			}
		}
	}

	return true
}
