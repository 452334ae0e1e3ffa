package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-order-ingest/internal/orders"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultRollbackTimeout = 5 * time.Second

// CommitHook runs after a batch committed, with the distinct order ids it touched.
type CommitHook func(ctx context.Context, orderIDs []string)

// Coordinator owns the session of one batch: every payload is applied in
// arrival order inside a single transaction that is committed only when
// all of them succeed.
type Coordinator struct {
	store           Store
	decoder         *orders.Decoder
	resolver        *orders.Resolver
	writer          Writer
	rollbackTimeout time.Duration
	hooks           []CommitHook
	tracer          trace.Tracer
}

// option is a function that configures the Coordinator.
type option func(*Coordinator)

// WithDecoder sets the payload decoder.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithDecoder(d *orders.Decoder) option {
	return func(c *Coordinator) { c.decoder = d }
}

// WithResolver sets the identity resolver.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithResolver(r *orders.Resolver) option {
	return func(c *Coordinator) { c.resolver = r }
}

// WithRollbackTimeout bounds the rollback issued after a failure.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithRollbackTimeout(d time.Duration) option {
	return func(c *Coordinator) { c.rollbackTimeout = d }
}

// WithCommitHook registers hooks run, in order, after every successful commit.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithCommitHook(hs ...CommitHook) option {
	return func(c *Coordinator) { c.hooks = append(c.hooks, hs...) }
}

// NewCoordinator creates a Coordinator writing through store.
func NewCoordinator(store Store, opts ...option) *Coordinator {
	c := &Coordinator{
		store:           store,
		decoder:         orders.NewDecoder(),
		resolver:        orders.NewResolver(false),
		rollbackTimeout: defaultRollbackTimeout,
		tracer:          otel.Tracer("ingest"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process applies one batch atomically. An empty batch is a no-op and opens
// no session. Any decode, identity or write failure rolls the whole batch
// back and is returned, so the caller must not acknowledge it.
func (c *Coordinator) Process(ctx context.Context, payloads [][]byte) (err error) {
	if len(payloads) == 0 {
		return nil
	}

	ctx, span := c.tracer.Start(ctx, "Coordinator.Process",
		trace.WithAttributes(attribute.Int("batch.size", len(payloads))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "batch rolled back")
		}
		span.End()
	}()

	sess, err := c.store.Begin(ctx)
	if err != nil {
		err = &TransactionError{Op: OpBegin, Err: err}
		slog.Error("Failed to open batch session", "batch_size", len(payloads), "error", err)
		return err
	}

	// released guards the panic path; every normal return commits or rolls back.
	released := false
	defer func() {
		if !released {
			_ = c.rollback(ctx, sess)
		}
	}()

	ids, err := c.applyAll(ctx, sess, payloads)
	if err != nil {
		released = true
		if rbErr := c.rollback(ctx, sess); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		slog.Error("Batch rolled back",
			append(failureAttrs(err), "batch_size", len(payloads), "error", err)...)
		return err
	}

	if err := sess.Commit(ctx); err != nil {
		released = true
		// the session may already be closed by the failed commit; release it anyway.
		_ = c.rollback(ctx, sess)
		err = &TransactionError{Op: OpCommit, Err: err}
		slog.Error("Failed to commit batch", "batch_size", len(payloads), "error", err)
		return err
	}
	released = true

	slog.Info("Batch committed", "batch_size", len(payloads), "orders", len(ids))
	for _, h := range c.hooks {
		h(ctx, ids)
	}
	return nil
}

// applyAll returns the distinct order ids applied, in first-seen order.
func (c *Coordinator) applyAll(ctx context.Context, sess Session, payloads [][]byte) ([]string, error) {
	ids := make([]string, 0, len(payloads))
	seen := make(map[string]struct{}, len(payloads))

	for i, p := range payloads {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch interrupted at index %d: %w", i, err)
		}

		o, err := c.decoder.Decode(p)
		if err != nil {
			return nil, withIndex(err, i)
		}
		o, err = c.resolver.Resolve(o)
		if err != nil {
			return nil, withIndex(err, i)
		}
		if err := c.writer.Apply(ctx, sess, o); err != nil {
			return nil, withIndex(err, i)
		}

		if _, ok := seen[o.ID]; !ok {
			seen[o.ID] = struct{}{}
			ids = append(ids, o.ID)
		}
	}
	return ids, nil
}

// rollback runs detached from ctx cancellation so a timed-out or shut-down
// batch still releases its transaction.
func (c *Coordinator) rollback(ctx context.Context, sess Session) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.rollbackTimeout)
	defer cancel()
	if err := sess.Rollback(rctx); err != nil {
		return &TransactionError{Op: OpRollback, Err: err}
	}
	return nil
}

func withIndex(err error, i int) error {
	var de *orders.DecodeError
	if errors.As(err, &de) {
		de.Index = i
	}
	var we *WriteError
	if errors.As(err, &we) {
		we.Index = i
	}
	return err
}

func failureAttrs(err error) []any {
	var de *orders.DecodeError
	if errors.As(err, &de) {
		return []any{"index", de.Index, "kind", "decode"}
	}
	var we *WriteError
	if errors.As(err, &we) {
		return []any{"index", we.Index, "order_id", we.OrderID, "step", string(we.Step), "kind", "write"}
	}
	return nil
}
