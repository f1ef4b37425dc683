// Package bulk indexes batches of documents against a coordinator: each
// document is parsed against the current mapping, any fields it introduces
// are committed as a dynamic update, and the parsed document is handed to a
// Sink.
package bulk

import (
	"context"
	"errors"
	"fmt"

	log "github.com/couchbase/clog"
	"github.com/jrhy/mapping"
	"github.com/jrhy/mapping/docparse"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ConflictPolicy decides what happens to a document whose dynamic update
// conflicts with the mapping.
type ConflictPolicy int

const (
	// RejectOnConflict fails the document with the merge error.
	RejectOnConflict ConflictPolicy = iota
	// ReparseOnConflict parses the document again against the latest
	// mapping, which may already hold the fields a racing writer added,
	// and fails it only if the conflict persists.
	ReparseOnConflict
)

// FailurePolicy decides whether one failed document stops the batch.
type FailurePolicy int

const (
	FailurePolicyPartialOutput FailurePolicy = iota
	FailurePolicyFailFast
)

type Options struct {
	Workers int

	// RateLimitRPS is a global limit of documents per second across all
	// workers. Set to <=0 to disable.
	RateLimitRPS float64

	Conflicts ConflictPolicy
	// MaxReparses bounds the reparses of one document under
	// ReparseOnConflict.
	MaxReparses int

	FailurePolicy FailurePolicy

	Parser docparse.Parser
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxReparses <= 0 {
		o.MaxReparses = 3
	}
	return o
}

// Doc is a document to index.
type Doc struct {
	ID     string
	Source []byte
}

// Result holds the outcome for one document.
type Result struct {
	ID string
	// Parsed is the document as handed to the Sink.
	Parsed *mapping.ParsedDocument
	// Generation of the mapping the document was parsed against.
	Generation uint64
	Reparses   int
	Err        error
}

// Sink receives parsed documents, such as an index writer.
type Sink interface {
	Index(context.Context, *mapping.ParsedDocument) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(context.Context, *mapping.ParsedDocument) error

func (f SinkFunc) Index(ctx context.Context, d *mapping.ParsedDocument) error { return f(ctx, d) }

// Indexer indexes documents against one coordinator.
type Indexer struct {
	coordinator *mapping.Coordinator
	sink        Sink
	opts        Options
	limiter     *rate.Limiter

	// beforeApply runs between parsing a document and committing its
	// update.
	beforeApply func(id string)
}

// New returns an Indexer. A nil sink discards parsed documents.
func New(c *mapping.Coordinator, sink Sink, opts Options) *Indexer {
	opts = opts.withDefaults()
	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}
	if sink == nil {
		sink = SinkFunc(func(context.Context, *mapping.ParsedDocument) error { return nil })
	}
	return &Indexer{coordinator: c, sink: sink, opts: opts, limiter: limiter}
}

// IndexAll indexes docs with Options.Workers goroutines and returns their
// results in input order. The error is non-nil only when the context ends
// or, under FailurePolicyFailFast, for the first failed document. Documents
// not yet started when either happens get that cause as their Err.
func (ix *Indexer) IndexAll(ctx context.Context, docs []Doc) ([]Result, error) {
	out := make([]Result, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Workers)
	scheduled := 0
	for i, d := range docs {
		i, d := i, d
		if gctx.Err() != nil {
			break
		}
		scheduled++
		g.Go(func() error {
			out[i] = ix.Index(gctx, d)
			if out[i].Err != nil && ix.opts.FailurePolicy == FailurePolicyFailFast {
				return fmt.Errorf("document [%s]: %w", d.ID, out[i].Err)
			}
			return nil
		})
	}
	err := g.Wait()
	// Documents never handed to a worker fail with the reason the loop
	// stopped.
	for i := scheduled; i < len(docs); i++ {
		out[i] = Result{ID: docs[i].ID, Err: context.Cause(gctx)}
	}
	if err != nil {
		return out, err
	}
	return out, ctx.Err()
}

// Index indexes one document.
func (ix *Indexer) Index(ctx context.Context, d Doc) Result {
	res := Result{ID: d.ID}
	if ix.limiter != nil {
		if err := ix.limiter.Wait(ctx); err != nil {
			res.Err = err
			return res
		}
	}
	for {
		m := ix.coordinator.Read()
		res.Generation = m.Generation()
		parsed, err := ix.opts.Parser.Parse(m, d.ID, d.Source)
		if err != nil {
			res.Err = err
			return res
		}
		if parsed.Update != nil {
			if ix.beforeApply != nil {
				ix.beforeApply(d.ID)
			}
			_, err = ix.coordinator.ApplyUpdate(parsed.Update, mapping.RuntimeUpdate)
			if err != nil {
				if errors.Is(err, mapping.ErrMergeConflict) &&
					ix.opts.Conflicts == ReparseOnConflict &&
					res.Reparses < ix.opts.MaxReparses {
					res.Reparses++
					log.Printf("mapping: bulk: reparsing [%s] after conflict: %v", d.ID, err)
					continue
				}
				res.Err = err
				return res
			}
		}
		if err := ix.sink.Index(ctx, parsed); err != nil {
			res.Err = fmt.Errorf("sink: %w", err)
			return res
		}
		res.Parsed = parsed
		return res
	}
}
