package pomelo

import (
	"github.com/pkg/errors"
)

// DecodeFunc turns one backend-land value into its application-land
// form. It receives the incoming value at the rule's key (nil when the
// key is absent), the full raw payload, and the attributes built so
// far by earlier rules, which makes compound cross-key decoding
// possible. The returned value is installed at the rule's key unless
// ok is false, in which case the function is assumed to have written
// whatever it wanted into `into` itself.
type DecodeFunc func(value interface{}, key string, raw M, into M, r *Record) (interface{}, bool)

// EncodeFunc is the mirror image: attribute value in, backend-land
// value out. Returning ok=false suppresses installation, letting a
// rule re-key or fan out one attribute into several output keys by
// writing into `out` directly.
type EncodeFunc func(value interface{}, key string, out M, r *Record) (interface{}, bool)

// EncodingRule covers exactly one key. A nil function is the identity
// transform; a switched-off side contributes nothing in that
// direction. Keys with no rule never cross the storage boundary at
// all, with the single exception of the primary key, which is always
// decoded.
type EncodingRule struct {
	key       string
	encode    EncodeFunc
	decode    DecodeFunc
	encodeOff bool
	decodeOff bool
}

type codec struct {
	pkName string
	rules  []EncodingRule
}

func (c *codec) covers(key string) bool {
	for i := range c.rules {
		if c.rules[i].key == key {
			return true
		}
	}
	return false
}

// decode runs every rule in declaration order over the raw payload.
// Panics in user functions surface as ErrRuleFailed; nothing is ever
// half-installed because the caller discards attrs on error.
func (c *codec) decode(raw M, r *Record) (M, error) {
	attrs := make(M, len(c.rules)+1)

	if !c.covers(c.pkName) {
		if v, ok := raw[c.pkName]; ok {
			attrs[c.pkName] = v
		}
	}

	for i := range c.rules {
		rule := &c.rules[i]
		if rule.decodeOff {
			continue
		}

		v, present := raw[rule.key]
		if rule.decode == nil {
			if present {
				attrs[rule.key] = v
			}
			continue
		}

		out, ok, err := runDecode(rule, v, raw, attrs, r)
		if err != nil {
			return nil, err
		}
		if ok {
			attrs[rule.key] = out
		}
	}

	return attrs, nil
}

// encode runs over a snapshot of the record's attributes so user
// functions may freely inspect the record without re-entering its lock.
func (c *codec) encode(attrs M, r *Record) (M, error) {
	out := make(M, len(c.rules))

	for i := range c.rules {
		rule := &c.rules[i]
		if rule.encodeOff {
			continue
		}

		v, present := attrs[rule.key]
		if rule.encode == nil {
			if present {
				out[rule.key] = v
			}
			continue
		}

		res, ok, err := runEncode(rule, v, out, r)
		if err != nil {
			return nil, err
		}
		if ok {
			out[rule.key] = res
		}
	}

	return out, nil
}

func runDecode(rule *EncodingRule, v interface{}, raw, into M, r *Record) (out interface{}, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Wrapf(ErrRuleFailed, "decode rule for key %q: %v", rule.key, p)
		}
	}()

	out, ok = rule.decode(v, rule.key, raw, into, r)
	return
}

func runEncode(rule *EncodingRule, v interface{}, out M, r *Record) (res interface{}, ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Wrapf(ErrRuleFailed, "encode rule for key %q: %v", rule.key, p)
		}
	}()

	res, ok = rule.encode(v, rule.key, out, r)
	return
}
