package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cuemby/kupo/pkg/chain"
	"github.com/cuemby/kupo/pkg/database"
	"github.com/cuemby/kupo/pkg/health"
	"github.com/cuemby/kupo/pkg/log"
	"github.com/cuemby/kupo/pkg/pattern"
	"github.com/cuemby/kupo/pkg/producer"
	"github.com/rs/zerolog"
)

// State is the consumer's lifecycle state.
type State string

const (
	StateInitializing   State = "initializing"
	StateIntersecting   State = "intersecting"
	StateFollowing      State = "following"
	StateForcedRollback State = "forced_rollback"
	StateStopped        State = "stopped"
)

// ErrBeyondSafeZone is returned to a forced-rollback requester whose target
// is further back than the rollback horizon while the request is limited to
// the safe zone.
var ErrBeyondSafeZone = errors.New("rollback target beyond safe zone")

// ErrNoIntersection is the fatal form of a failed intersection when a
// --since point was configured.
type ErrNoIntersection struct {
	Since chain.Point
}

func (e *ErrNoIntersection) Error() string {
	return fmt.Sprintf("intersection not found: no ancestor of %s on the producer's chain; "+
		"check that --since points at a block of this network", e.Since)
}

// ForcedRollback asks the consumer to retract to Point at its next safe
// boundary. Done is the one-shot reply channel: nil on success, an error
// (ErrBeyondSafeZone, or a rollback failure) otherwise.
type ForcedRollback struct {
	Point       chain.Point
	AllowUnsafe bool
	Done        chan error
}

// Consumer is the long-lived writer task following the chain.
type Consumer struct {
	db       *database.DB
	producer producer.Producer
	registry *pattern.Registry
	health   *health.State
	since    *chain.Point
	forced   chan *ForcedRollback
	state    atomic.Value
	logger   zerolog.Logger
}

// New creates a consumer. since may be nil when resuming from checkpoints
// only.
func New(db *database.DB, prod producer.Producer, registry *pattern.Registry,
	healthState *health.State, since *chain.Point) *Consumer {

	c := &Consumer{
		db:       db,
		producer: prod,
		registry: registry,
		health:   healthState,
		since:    since,
		forced:   make(chan *ForcedRollback),
		logger:   log.WithComponent("consumer"),
	}
	c.state.Store(StateInitializing)
	return c
}

// State returns the consumer's current lifecycle state.
func (c *Consumer) State() State {
	return c.state.Load().(State)
}

// RequestRollback hands a forced rollback to the consumer and waits for the
// one-shot reply. It returns ctx.Err() if the consumer stops first.
func (c *Consumer) RequestRollback(ctx context.Context, point chain.Point, allowUnsafe bool) error {
	req := &ForcedRollback{Point: point, AllowUnsafe: allowUnsafe, Done: make(chan error, 1)}
	select {
	case c.forced <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.Done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the state machine until ctx is cancelled. Fatal conditions
// (no intersection with --since) are returned; transient producer failures
// reconnect and re-intersect.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.state.Store(StateStopped)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		point, err := c.intersect(ctx)
		if err != nil {
			var fatal *ErrNoIntersection
			if errors.As(err, &fatal) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn().Err(err).Msg("Intersection failed, reconnecting")
			if err := c.producer.Reconnect(ctx); err != nil {
				return nil
			}
			continue
		}

		c.logger.Info().Str("point", point.String()).Msg("Following chain")
		if err := c.follow(ctx); err != nil {
			if errors.Is(err, errRestartFollow) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn().Err(err).Msg("Chain following interrupted, reconnecting")
			if err := c.producer.Reconnect(ctx); err != nil {
				return nil
			}
		}
	}
}

// intersect presents stored checkpoints (newest first) to the producer,
// falling back to the configured --since point, then to the origin.
func (c *Consumer) intersect(ctx context.Context) (chain.Point, error) {
	c.state.Store(StateIntersecting)

	var candidates []chain.Point
	err := c.db.ReadOnly(ctx, func(tx *database.Tx) error {
		return tx.ForEachCheckpoint(func(cp database.Checkpoint) error {
			point, err := cp.Point()
			if err != nil {
				return err
			}
			candidates = append(candidates, point)
			return nil
		})
	})
	if err != nil {
		return chain.Point{}, err
	}

	if len(candidates) == 0 && c.since != nil {
		candidates = []chain.Point{*c.since}
	}
	if len(candidates) == 0 {
		candidates = []chain.Point{chain.Origin}
	}

	point, tip, err := c.producer.FindIntersect(ctx, candidates)
	if errors.Is(err, producer.ErrIntersectionNotFound) {
		if c.since != nil {
			return chain.Point{}, &ErrNoIntersection{Since: *c.since}
		}
		// No configured start: resynchronize from genesis.
		c.logger.Warn().Msg("No intersection with stored checkpoints, resynchronizing from origin")
		point, tip, err = c.producer.FindIntersect(ctx, []chain.Point{chain.Origin})
	}
	if err != nil {
		return chain.Point{}, err
	}

	c.health.SetNodeTip(tip.Point)
	c.state.Store(StateFollowing)
	return point, nil
}

// errRestartFollow asks Run to re-intersect: after a forced rollback the
// producer stream must restart from the target, which the retracted
// checkpoint set now names as its newest entry.
var errRestartFollow = errors.New("restart follow")

type eventOrError struct {
	event producer.Event
	err   error
}

// follow consumes chain-sync events until an error or cancellation,
// servicing forced rollbacks between blocks. Events are pumped on a
// dedicated goroutine so a forced rollback is serviced even while the
// producer sits quietly at the tip.
func (c *Consumer) follow(ctx context.Context) error {
	pumpCtx, stopPump := context.WithCancel(ctx)
	events := make(chan eventOrError)
	pumpDone := make(chan struct{})

	go func() {
		defer close(pumpDone)
		for {
			event, err := c.producer.NextEvent(pumpCtx)
			select {
			case events <- eventOrError{event: event, err: err}:
				if err != nil {
					return
				}
			case <-pumpCtx.Done():
				return
			}
		}
	}()
	defer func() {
		stopPump()
		<-pumpDone
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case req := <-c.forced:
			// The pump must release the connection before the
			// stream restarts from the rollback target.
			stopPump()
			<-pumpDone
			c.serveForcedRollback(ctx, req)
			return errRestartFollow

		case next := <-events:
			if next.err != nil {
				return next.err
			}
			switch next.event.Kind {
			case producer.RollForward:
				if err := c.rollForward(ctx, next.event.Block); err != nil {
					return err
				}
			case producer.RollBackward:
				if err := c.rollBackward(ctx, next.event.Point); err != nil {
					return err
				}
			}
		}
	}
}

// rollForward folds one block: spends, matches, artifacts, checkpoint, all
// in a single write transaction.
func (c *Consumer) rollForward(ctx context.Context, block *chain.Block) error {
	patterns := c.registry.Snapshot()

	err := c.db.ExclusiveWrite(ctx, func(tx *database.Tx) error {
		for i := range block.Transactions {
			if err := foldTransaction(tx, &block.Transactions[i], block.Point, patterns); err != nil {
				return err
			}
		}
		if err := tx.InsertCheckpoint(block.Point); err != nil {
			return err
		}
		return tx.ThinCheckpoints(block.Point.Slot, c.db.LongestRollback())
	})
	if err != nil {
		return fmt.Errorf("failed to fold block at %s: %w", block.Point, err)
	}

	c.health.SetCheckpoint(block.Point)
	health.BlocksIngested.Inc()
	c.logger.Debug().
		Uint64("slot", block.Point.Slot).
		Int("transactions", len(block.Transactions)).
		Msg("Block ingested")
	return nil
}

// foldTransaction records the transaction's spends against stored inputs,
// then materializes its matching outputs together with the datums and
// scripts they reference.
func foldTransaction(tx *database.Tx, txn *chain.Transaction, at chain.Point, patterns []pattern.Pattern) error {
	for _, spent := range txn.Inputs {
		if err := tx.SpendInput(spent, at, txn.ID); err != nil {
			return err
		}
	}

	for ix := range txn.Outputs {
		out := &txn.Outputs[ix]
		ref := chain.OutputReference{TransactionID: txn.ID, OutputIndex: uint32(ix)}

		matched := false
		for _, p := range patterns {
			if p.Match(ref, out.Address, out.Assets) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		if err := tx.InsertInput(database.NewInputRow(ref, *out, at)); err != nil {
			return err
		}

		if out.DatumHash != nil {
			if data := resolveDatum(txn, out); data != nil {
				if err := tx.InsertBinaryData(*out.DatumHash, data); err != nil {
					return err
				}
			}
		}
		if out.ScriptRef != nil {
			if script, ok := txn.Scripts[*out.ScriptRef]; ok {
				if err := tx.InsertScript(*out.ScriptRef, script); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// resolveDatum finds the bytes behind an output's datum hash: inline on the
// output, or carried in the transaction's witness set.
func resolveDatum(txn *chain.Transaction, out *chain.TransactionOutput) []byte {
	if out.Datum != nil {
		return out.Datum
	}
	if data, ok := txn.Datums[*out.DatumHash]; ok {
		return data
	}
	return nil
}

// rollBackward retracts to a producer-announced point.
func (c *Consumer) rollBackward(ctx context.Context, point chain.Point) error {
	var newTip chain.Point
	err := c.db.ExclusiveWrite(ctx, func(tx *database.Tx) error {
		var err error
		newTip, err = tx.RollBackTo(point)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to roll back to %s: %w", point, err)
	}

	health.RollbacksTotal.WithLabelValues("chain").Inc()
	if !newTip.IsOrigin() {
		c.health.SetCheckpoint(newTip)
	}
	c.logger.Info().Str("point", point.String()).Msg("Rolled back")
	return nil
}

// serveForcedRollback performs an operator-requested rollback at a safe
// boundary. Targets outside known checkpoints are accepted optimistically
// when they sit within the rollback horizon; beyond it the request must
// have opted out of the safe zone. The retraction leaves the target as the
// newest checkpoint, so the re-intersection that follows resumes from it.
func (c *Consumer) serveForcedRollback(ctx context.Context, req *ForcedRollback) {
	c.state.Store(StateForcedRollback)
	defer c.state.Store(StateFollowing)

	tipSlot := uint64(0)
	if snapshot := c.health.Snapshot(); snapshot.MostRecentCheckpoint != nil {
		tipSlot = snapshot.MostRecentCheckpoint.Slot
	}
	if !req.Point.IsOrigin() && tipSlot > req.Point.Slot &&
		tipSlot-req.Point.Slot > c.db.LongestRollback() && !req.AllowUnsafe {
		req.Done <- ErrBeyondSafeZone
		return
	}

	err := c.db.ExclusiveWrite(ctx, func(tx *database.Tx) error {
		_, err := tx.RollBackTo(req.Point)
		return err
	})
	if err != nil {
		req.Done <- fmt.Errorf("failed to rollback: %w", err)
		return
	}

	health.RollbacksTotal.WithLabelValues("forced").Inc()
	if !req.Point.IsOrigin() {
		c.health.SetCheckpoint(req.Point)
	}
	c.logger.Info().Str("point", req.Point.String()).Msg("Forced rollback complete")
	req.Done <- nil
}
