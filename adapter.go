package pomelo

import (
	"context"

	"github.com/denismitr/pomelo/options"
)

// Callbacks are error-first: a non-nil error always means the other
// arguments are not usable.
type (
	RecordCallback  func(err error, r *Record)
	ListCallback    func(err error, records []*Record)
	RawCallback     func(err error, raw M)
	RawListCallback func(err error, raws []M)
	ErrorCallback   func(err error)
)

// Adapter is the storage contract. Implementations own transport,
// retries and wire formats; the core only encodes payloads on the way
// in and decodes raw responses on the way out.
//
// Every method is asynchronous: it must return promptly and deliver
// its outcome through the callback, possibly on another goroutine.
// A Read that finds nothing reports an error matching ErrNotFound.
type Adapter interface {
	Create(ctx context.Context, t *Type, payload M, opt *options.Write, cb RawCallback)
	Read(ctx context.Context, t *Type, id string, opt *options.Read, cb RawCallback)
	ReadAll(ctx context.Context, t *Type, q *options.Query, cb RawListCallback)
	Update(ctx context.Context, t *Type, id string, payload M, opt *options.Write, cb RawCallback)
	Destroy(ctx context.Context, t *Type, id string, opt *options.Write, cb ErrorCallback)
}
