package pomelo

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/jinzhu/copier"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// FieldError is a single validation failure on one key.
type FieldError struct {
	Key     string
	Message string
}

// ErrorsSet aggregates the validation failures of one record. It is
// itself an error value, so Save can hand it to the callback directly;
// errors.Is(err, ErrInvalidRecord) recognizes it.
type ErrorsSet struct {
	mu   sync.Mutex
	list []FieldError
}

func newErrorsSet() *ErrorsSet {
	return &ErrorsSet{}
}

func (es *ErrorsSet) Add(key, message string) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.list = append(es.list, FieldError{Key: key, Message: message})
}

func (es *ErrorsSet) Len() int {
	es.mu.Lock()
	defer es.mu.Unlock()
	return len(es.list)
}

func (es *ErrorsSet) IsEmpty() bool {
	return es.Len() == 0
}

// On returns the messages recorded against one key.
func (es *ErrorsSet) On(key string) []string {
	es.mu.Lock()
	defer es.mu.Unlock()

	var msgs []string
	for _, fe := range es.list {
		if fe.Key == key {
			msgs = append(msgs, fe.Message)
		}
	}
	return msgs
}

func (es *ErrorsSet) All() []FieldError {
	es.mu.Lock()
	defer es.mu.Unlock()

	var cp []FieldError
	if err := copier.Copy(&cp, &es.list); err != nil {
		panic("could not copy field errors: " + err.Error())
	}
	return cp
}

func (es *ErrorsSet) reset() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.list = es.list[:0]
}

func (es *ErrorsSet) Error() string {
	var combined error
	for _, fe := range es.All() {
		combined = multierr.Append(combined, fmt.Errorf("%s %s", fe.Key, fe.Message))
	}
	if combined == nil {
		return "no validation errors"
	}
	return combined.Error()
}

func (es *ErrorsSet) Is(target error) bool {
	return target == ErrInvalidRecord
}

// ValidatorFunc is one validation rule bound to one key. The rule must
// call done exactly once, immediately for synchronous predicates or
// later for asynchronous checks; until every rule of a record's type
// has called done the overall validation callback does not fire. done
// is idempotent.
type ValidatorFunc func(errs *ErrorsSet, r *Record, key string, done func())

type validator struct {
	key string
	fn  ValidatorFunc
}

// runValidation executes every rule without short-circuiting and fires
// cb once when the last outstanding done lands, from whichever
// goroutine that happens on. A rule that never calls done hangs the
// callback; guarding against that belongs to the caller.
func runValidation(r *Record, validators []validator, cb RecordCallback) {
	r.errs.reset()

	if len(validators) == 0 {
		cb(nil, r)
		return
	}

	var pending = int64(len(validators))
	var failure struct {
		mu  sync.Mutex
		err error
	}

	settle := func() {
		if atomic.AddInt64(&pending, -1) == 0 {
			failure.mu.Lock()
			err := failure.err
			failure.mu.Unlock()
			cb(err, r)
		}
	}

	for i := range validators {
		v := validators[i]

		var once sync.Once
		done := func() {
			once.Do(settle)
		}

		func() {
			defer func() {
				if p := recover(); p != nil {
					failure.mu.Lock()
					if failure.err == nil {
						failure.err = errors.Wrapf(ErrRuleFailed, "validator for key %q: %v", v.key, p)
					}
					failure.mu.Unlock()
					done()
				}
			}()

			v.fn(r.errs, r, v.key, done)
		}()
	}
}

// Built-in rules. Each wraps a synchronous predicate and calls done
// before returning.

func Presence() ValidatorFunc {
	return func(errs *ErrorsSet, r *Record, key string, done func()) {
		defer done()

		v := r.Get(key)
		if v == nil {
			errs.Add(key, "must be present")
			return
		}
		if n, ok := lengthOf(v); !ok || n == 0 {
			errs.Add(key, "must be present")
		}
	}
}

func Numeric() ValidatorFunc {
	return func(errs *ErrorsSet, r *Record, key string, done func()) {
		defer done()

		if !isNumeric(r.Get(key)) {
			errs.Add(key, "must be numeric")
		}
	}
}

func MinLength(min int) ValidatorFunc {
	return func(errs *ErrorsSet, r *Record, key string, done func()) {
		defer done()

		if n, ok := lengthOf(r.Get(key)); !ok || n < min {
			errs.Add(key, fmt.Sprintf("is too short (minimum is %d)", min))
		}
	}
}

func MaxLength(max int) ValidatorFunc {
	return func(errs *ErrorsSet, r *Record, key string, done func()) {
		defer done()

		if n, ok := lengthOf(r.Get(key)); !ok || n > max {
			errs.Add(key, fmt.Sprintf("is too long (maximum is %d)", max))
		}
	}
}

func Length(exact int) ValidatorFunc {
	return func(errs *ErrorsSet, r *Record, key string, done func()) {
		defer done()

		if n, ok := lengthOf(r.Get(key)); !ok || n != exact {
			errs.Add(key, fmt.Sprintf("length must be exactly %d", exact))
		}
	}
}

// LengthWithin passes when the value's length falls inside the
// inclusive [low, high] range.
func LengthWithin(low, high int) ValidatorFunc {
	return func(errs *ErrorsSet, r *Record, key string, done func()) {
		defer done()

		if n, ok := lengthOf(r.Get(key)); !ok || n < low || n > high {
			errs.Add(key, fmt.Sprintf("length must be between %d and %d", low, high))
		}
	}
}

// LengthIn is an alias of LengthWithin.
func LengthIn(low, high int) ValidatorFunc {
	return LengthWithin(low, high)
}

func lengthOf(v interface{}) (int, bool) {
	if v == nil {
		return 0, false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), true
	default:
		return 0, false
	}
}

func isNumeric(v interface{}) bool {
	switch tv := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return !math.IsNaN(float64(tv)) && !math.IsInf(float64(tv), 0)
	case float64:
		return !math.IsNaN(tv) && !math.IsInf(tv, 0)
	case string:
		f, err := strconv.ParseFloat(tv, 64)
		return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return false
	}
}
