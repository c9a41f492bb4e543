// Package schema builds model type configurations from declarative
// YAML documents, for applications that prefer describing their
// records over wiring options in code:
//
//	name: post
//	primaryKey: id
//	storageName: posts
//	keys:
//	  - name: title
//	    validate:
//	      - presence: true
//	  - name: secret
//	    encode: false
package schema

import (
	"bytes"

	"github.com/denismitr/pomelo"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var ErrInvalidSchema = errors.New("invalid model schema")

type Model struct {
	Name        string `yaml:"name"`
	PrimaryKey  string `yaml:"primaryKey"`
	StorageName string `yaml:"storageName"`
	Keys        []Key  `yaml:"keys"`
}

type Key struct {
	Name     string `yaml:"name"`
	Encode   *bool  `yaml:"encode"`
	Decode   *bool  `yaml:"decode"`
	Validate []Rule `yaml:"validate"`
}

// Rule declares one built-in validation. Exactly one field may be set.
type Rule struct {
	Presence     bool  `yaml:"presence"`
	Numeric      bool  `yaml:"numeric"`
	MinLength    *int  `yaml:"minLength"`
	MaxLength    *int  `yaml:"maxLength"`
	Length       *int  `yaml:"length"`
	LengthWithin []int `yaml:"lengthWithin"`
}

// Parse decodes one model document. Unknown fields are rejected, so a
// misspelled rule name fails here rather than silently validating
// nothing.
func Parse(doc []byte) (*Model, error) {
	dec := yaml.NewDecoder(bytes.NewReader(doc))
	dec.KnownFields(true)

	var m Model
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrap(ErrInvalidSchema, err.Error())
	}

	if m.Name == "" {
		return nil, errors.Wrap(ErrInvalidSchema, "model requires a name")
	}

	return &m, nil
}

// Options translates the parsed document into model type options.
func (m *Model) Options() ([]pomelo.Option, error) {
	var opts []pomelo.Option

	if m.PrimaryKey != "" {
		opts = append(opts, pomelo.WithPrimaryKey(m.PrimaryKey))
	}
	if m.StorageName != "" {
		opts = append(opts, pomelo.WithStorageName(m.StorageName))
	}

	for _, k := range m.Keys {
		if k.Name == "" {
			return nil, errors.Wrap(ErrInvalidSchema, "every key requires a name")
		}

		enc := k.Encode == nil || *k.Encode
		dec := k.Decode == nil || *k.Decode

		switch {
		case enc && dec:
			opts = append(opts, pomelo.Encode(k.Name))
		case enc:
			opts = append(opts, pomelo.EncodeOnly(k.Name, nil))
		case dec:
			opts = append(opts, pomelo.DecodeOnly(k.Name, nil))
		default:
			return nil, errors.Wrapf(ErrInvalidSchema, "key %q suppresses both directions", k.Name)
		}

		for _, r := range k.Validate {
			fn, err := r.validator(k.Name)
			if err != nil {
				return nil, err
			}
			opts = append(opts, pomelo.Validate(k.Name, fn))
		}
	}

	return opts, nil
}

// Define is a convenience for Parse + Options + pomelo.Define. Extra
// options (an adapter, a merge policy, custom rules) append after the
// declarative ones.
func Define(doc []byte, extra ...pomelo.Option) (*pomelo.Type, error) {
	m, err := Parse(doc)
	if err != nil {
		return nil, err
	}

	opts, err := m.Options()
	if err != nil {
		return nil, err
	}

	return pomelo.Define(m.Name, append(opts, extra...)...)
}

func (r Rule) validator(key string) (pomelo.ValidatorFunc, error) {
	switch {
	case r.Presence:
		return pomelo.Presence(), nil
	case r.Numeric:
		return pomelo.Numeric(), nil
	case r.MinLength != nil:
		return pomelo.MinLength(*r.MinLength), nil
	case r.MaxLength != nil:
		return pomelo.MaxLength(*r.MaxLength), nil
	case r.Length != nil:
		return pomelo.Length(*r.Length), nil
	case len(r.LengthWithin) > 0:
		if len(r.LengthWithin) != 2 {
			return nil, errors.Wrapf(ErrInvalidSchema, "lengthWithin for key %q needs [low, high]", key)
		}
		return pomelo.LengthWithin(r.LengthWithin[0], r.LengthWithin[1]), nil
	default:
		return nil, errors.Wrapf(ErrInvalidSchema, "key %q declares an empty validation rule", key)
	}
}
