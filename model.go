package pomelo

import (
	"context"

	"github.com/denismitr/pomelo/internal/pkey"
	"github.com/denismitr/pomelo/options"
	"github.com/pkg/errors"
)

const defaultPrimaryKey = "id"

// Type is the class-level orchestrator for one kind of record. Its
// configuration is assembled once by Define and never mutates
// afterwards; derived types extend it structurally through Extend.
type Type struct {
	name        string
	pkName      string
	storageName string
	policy      MergePolicy
	adapter     Adapter
	codec       *codec
	validators  []validator
	identity    *identityMap
}

type typeConfig struct {
	pkName      string
	storageName string
	policy      MergePolicy
	adapter     Adapter
	rules       []EncodingRule
	validators  []validator
	extended    bool
}

// Option configures a model type at Define or Extend time.
type Option func(cfg *typeConfig) error

func WithPrimaryKey(name string) Option {
	return func(cfg *typeConfig) error {
		if name == "" {
			return errors.Wrap(ErrInvalidConfig, "primary key name cannot be empty")
		}
		if cfg.extended {
			return errors.Wrap(ErrInvalidConfig, "a derived type cannot override the inherited primary key")
		}
		cfg.pkName = name
		return nil
	}
}

func WithStorageName(name string) Option {
	return func(cfg *typeConfig) error {
		if name == "" {
			return errors.Wrap(ErrInvalidConfig, "storage name cannot be empty")
		}
		cfg.storageName = name
		return nil
	}
}

func WithAdapter(a Adapter) Option {
	return func(cfg *typeConfig) error {
		cfg.adapter = a
		return nil
	}
}

func WithMergePolicy(p MergePolicy) Option {
	return func(cfg *typeConfig) error {
		cfg.policy = p
		return nil
	}
}

// Encode declares identity encoding rules: the keys cross the storage
// boundary unchanged in both directions.
func Encode(keys ...string) Option {
	return func(cfg *typeConfig) error {
		for _, k := range keys {
			if err := cfg.addRule(EncodingRule{key: k}); err != nil {
				return err
			}
		}
		return nil
	}
}

// EncodeWith declares a rule with custom transforms; either function
// may be nil for identity.
func EncodeWith(key string, enc EncodeFunc, dec DecodeFunc) Option {
	return func(cfg *typeConfig) error {
		return cfg.addRule(EncodingRule{key: key, encode: enc, decode: dec})
	}
}

// EncodeOnly declares a rule whose decode side is switched off.
func EncodeOnly(key string, enc EncodeFunc) Option {
	return func(cfg *typeConfig) error {
		return cfg.addRule(EncodingRule{key: key, encode: enc, decodeOff: true})
	}
}

// DecodeOnly declares a rule whose encode side is switched off: the
// key is accepted from storage but never transmitted back.
func DecodeOnly(key string, dec DecodeFunc) Option {
	return func(cfg *typeConfig) error {
		return cfg.addRule(EncodingRule{key: key, decode: dec, encodeOff: true})
	}
}

// Validate attaches rules to a key. Declaration order is preserved and
// every rule always runs; failures never short-circuit later rules.
func Validate(key string, rules ...ValidatorFunc) Option {
	return func(cfg *typeConfig) error {
		if key == "" {
			return errors.Wrap(ErrInvalidConfig, "validation requires a key")
		}
		for _, fn := range rules {
			if fn == nil {
				return errors.Wrapf(ErrInvalidConfig, "nil validator for key %q", key)
			}
			cfg.validators = append(cfg.validators, validator{key: key, fn: fn})
		}
		return nil
	}
}

func (cfg *typeConfig) addRule(rule EncodingRule) error {
	if rule.key == "" {
		return errors.Wrap(ErrInvalidConfig, "encoding rule requires a key")
	}
	for i := range cfg.rules {
		if cfg.rules[i].key == rule.key {
			return errors.Wrapf(ErrInvalidConfig, "key %q already has an encoding rule", rule.key)
		}
	}
	cfg.rules = append(cfg.rules, rule)
	return nil
}

// Define builds an immutable model type. A type without an adapter can
// hold and validate records but cannot persist them.
func Define(name string, opts ...Option) (*Type, error) {
	if name == "" {
		return nil, errors.Wrap(ErrInvalidConfig, "model type requires a name")
	}

	cfg := typeConfig{
		pkName:      defaultPrimaryKey,
		storageName: name,
	}

	return build(name, &cfg, opts)
}

// Extend derives a new type: encoders, validators, primary key and
// merge policy are inherited and may only be added to, never replaced.
// The storage name defaults to the derived type's own name.
func (t *Type) Extend(name string, opts ...Option) (*Type, error) {
	if name == "" {
		return nil, errors.Wrap(ErrInvalidConfig, "model type requires a name")
	}

	cfg := typeConfig{
		pkName:      t.pkName,
		storageName: name,
		policy:      t.policy,
		adapter:     t.adapter,
		extended:    true,
	}

	cfg.rules = append([]EncodingRule(nil), t.codec.rules...)
	cfg.validators = append([]validator(nil), t.validators...)

	return build(name, &cfg, opts)
}

func build(name string, cfg *typeConfig, opts []Option) (*Type, error) {
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o(cfg); err != nil {
			return nil, err
		}
	}

	return &Type{
		name:        name,
		pkName:      cfg.pkName,
		storageName: cfg.storageName,
		policy:      cfg.policy,
		adapter:     cfg.adapter,
		codec:       &codec{pkName: cfg.pkName, rules: cfg.rules},
		validators:  cfg.validators,
		identity:    newIdentityMap(),
	}, nil
}

func (t *Type) Name() string        { return t.name }
func (t *Type) PrimaryKey() string  { return t.pkName }
func (t *Type) StorageName() string { return t.storageName }
func (t *Type) Policy() MergePolicy { return t.policy }

// New constructs an unsaved record with the given attributes; every
// provided key starts dirty.
func (t *Type) New(attrs M) *Record {
	r := newRecord(t)
	for k, v := range attrs {
		r.attrs[k] = v
		r.dirty[k] = struct{}{}
	}
	if v, ok := attrs[t.pkName]; ok {
		r.id = v
	}
	return r
}

// Find dispatches a single-record read. It synchronously returns a
// transient record for immediate state inspection; the canonical
// record arrives through the callback and is not guaranteed to be the
// same reference, which is why the callback is mandatory here.
func (t *Type) Find(ctx context.Context, id interface{}, cb RecordCallback) (*Record, error) {
	if cb == nil {
		return nil, errors.Wrapf(ErrCallbackRequired, "find on type %q", t.name)
	}
	if t.adapter == nil {
		return nil, errors.Wrapf(ErrNoAdapter, "find on type %q", t.name)
	}

	key := pkey.Canonical(id)
	if key == "" {
		return nil, errors.Wrapf(ErrEmptyID, "find on type %q", t.name)
	}

	transient := newRecord(t)
	transient.id = id
	transient.attrs[t.pkName] = id
	transient.state = StateLoading

	t.adapter.Read(ctx, t, key, nil, func(err error, raw M) {
		if err != nil {
			transient.setState(StateError)
			cb(err, nil)
			return
		}

		canonical, merr := t.materialize(raw)
		if merr != nil {
			transient.setState(StateError)
			cb(merr, nil)
			return
		}

		cb(nil, canonical)
	})

	return transient, nil
}

// Load dispatches a multi-record read and merges every result into the
// identity map, preserving backend-delivered order. An empty result
// set is an empty slice, not an error. A nil callback is allowed; the
// merge side effect happens regardless.
func (t *Type) Load(ctx context.Context, q *options.Query, cb ListCallback) error {
	if t.adapter == nil {
		return errors.Wrapf(ErrNoAdapter, "load on type %q", t.name)
	}

	t.adapter.ReadAll(ctx, t, q, func(err error, raws []M) {
		if err != nil {
			if cb != nil {
				cb(err, nil)
			}
			return
		}

		records := make([]*Record, 0, len(raws))
		for _, raw := range raws {
			rec, merr := t.materialize(raw)
			if merr != nil {
				if cb != nil {
					cb(merr, nil)
				}
				return
			}
			records = append(records, rec)
		}

		if cb != nil {
			cb(nil, records)
		}
	})

	return nil
}

// All returns the identity map's current membership in insertion order
// and kicks off a background Load whose results will populate that
// same membership. No ordering exists between the synchronous return
// and the background load's completion.
func (t *Type) All(ctx context.Context) []*Record {
	membership := t.identity.all()

	if t.adapter != nil {
		_ = t.Load(ctx, nil, nil)
	}

	return membership
}

// Create constructs a new record with the given attributes and
// immediately saves it.
func (t *Type) Create(ctx context.Context, attrs M, cb RecordCallback) (*Record, error) {
	r := t.New(attrs)
	if err := r.Save(ctx, nil, cb); err != nil {
		return nil, err
	}
	return r, nil
}

// Clear empties the identity map without touching backend state.
func (t *Type) Clear() {
	t.identity.clear()
}

// Peek looks a record up in the identity map without touching storage.
func (t *Type) Peek(id interface{}) (*Record, bool) {
	return t.identity.get(id)
}

// Count is the identity map's current size.
func (t *Type) Count() int {
	return t.identity.count()
}

// materialize runs one raw payload through the decode half of the
// pipeline and reconciles it with the identity map: same primary key,
// same record, refreshed attributes.
func (t *Type) materialize(raw M) (*Record, error) {
	rec, _ := t.identity.ensure(t, raw[t.pkName])
	if err := rec.absorb(raw, false); err != nil {
		return nil, err
	}
	return rec, nil
}
