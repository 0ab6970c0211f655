package consumer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/kupo/pkg/chain"
	"github.com/cuemby/kupo/pkg/database"
	"github.com/cuemby/kupo/pkg/health"
	"github.com/cuemby/kupo/pkg/pattern"
	"github.com/cuemby/kupo/pkg/producer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProducer replays a scripted sequence of chain-sync events.
type fakeProducer struct {
	events chan producer.Event
	tip    chain.Tip
}

func newFakeProducer(tip chain.Point) *fakeProducer {
	return &fakeProducer{
		events: make(chan producer.Event, 64),
		tip:    chain.Tip{Point: tip},
	}
}

func (f *fakeProducer) FindIntersect(ctx context.Context, points []chain.Point) (chain.Point, chain.Tip, error) {
	if len(points) == 0 {
		return chain.Point{}, chain.Tip{}, producer.ErrIntersectionNotFound
	}
	return points[0], f.tip, nil
}

func (f *fakeProducer) NextEvent(ctx context.Context) (producer.Event, error) {
	select {
	case event := <-f.events:
		return event, nil
	case <-ctx.Done():
		return producer.Event{}, ctx.Err()
	}
}

func (f *fakeProducer) FetchBlock(ctx context.Context, point chain.Point) (*chain.Block, error) {
	return nil, nil
}

func (f *fakeProducer) Reconnect(ctx context.Context) error { return nil }
func (f *fakeProducer) Close() error                        { return nil }

func (f *fakeProducer) rollForward(block *chain.Block) {
	f.events <- producer.Event{Kind: producer.RollForward, Block: block, Tip: f.tip}
}

func (f *fakeProducer) rollBackward(point chain.Point) {
	f.events <- producer.Event{Kind: producer.RollBackward, Point: point, Tip: f.tip}
}

func testPoint(t *testing.T, slot uint64) chain.Point {
	t.Helper()
	hash, err := chain.ParseHeaderHash(fmt.Sprintf("%064d", slot))
	require.NoError(t, err)
	return chain.NewPoint(slot, hash)
}

// blockWithOutput builds a single-transaction block paying one output to
// the given hex address.
func blockWithOutput(t *testing.T, slot uint64, addrText string) *chain.Block {
	t.Helper()
	addr, err := chain.ParseAddress(addrText)
	require.NoError(t, err)
	txID, err := chain.ParseTransactionID(fmt.Sprintf("%064d", slot))
	require.NoError(t, err)

	return &chain.Block{
		Point: testPoint(t, slot),
		Transactions: []chain.Transaction{{
			ID:      txID,
			Outputs: []chain.TransactionOutput{{Address: addr, Value: []byte{0x00}}},
		}},
	}
}

func newHarness(t *testing.T, patterns ...string) (*Consumer, *fakeProducer, *database.DB) {
	t.Helper()
	db, err := database.Open(context.Background(), database.Options{InMemory: true, LongestRollback: 100})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	parsed := make([]pattern.Pattern, len(patterns))
	for i, text := range patterns {
		parsed[i], err = pattern.Parse(text)
		require.NoError(t, err)
	}

	prod := newFakeProducer(testPoint(t, 1000))
	state := health.NewState(health.Configuration{})
	cons := New(db, prod, pattern.NewRegistry(parsed), state, nil)
	return cons, prod, db
}

func countMatches(t *testing.T, db *database.DB) []uint64 {
	t.Helper()
	p, err := pattern.Parse("*")
	require.NoError(t, err)

	var slots []uint64
	err = db.ReadOnly(context.Background(), func(tx *database.Tx) error {
		return tx.ForEachMatch(p, database.StatusAll, database.SortDesc, func(row database.InputRow) error {
			slots = append(slots, row.CreatedAtSlot)
			return nil
		})
	})
	require.NoError(t, err)
	return slots
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestFollowIngestsMatchingBlocks(t *testing.T) {
	addrX := "61" + strings.Repeat("aa", 28)
	cons, prod, db := newHarness(t, "*")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cons.Run(ctx)

	for _, slot := range []uint64{10, 20, 30} {
		prod.rollForward(blockWithOutput(t, slot, addrX))
	}

	waitFor(t, func() bool { return len(countMatches(t, db)) == 3 })
	assert.Equal(t, []uint64{30, 20, 10}, countMatches(t, db))

	// Checkpoints mirror the ingested blocks, newest first.
	var checkpoints []uint64
	err := db.ReadOnly(ctx, func(tx *database.Tx) error {
		return tx.ForEachCheckpoint(func(c database.Checkpoint) error {
			checkpoints = append(checkpoints, c.SlotNo)
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{30, 20, 10}, checkpoints)
}

func TestFollowSkipsNonMatchingOutputs(t *testing.T) {
	addrX := "61" + strings.Repeat("aa", 28)
	addrY := "61" + strings.Repeat("bb", 28)
	cons, prod, db := newHarness(t, addrX)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cons.Run(ctx)

	prod.rollForward(blockWithOutput(t, 10, addrX))
	prod.rollForward(blockWithOutput(t, 20, addrY))
	prod.rollForward(blockWithOutput(t, 30, addrX))

	waitFor(t, func() bool { return len(countMatches(t, db)) == 2 })
	assert.Equal(t, []uint64{30, 10}, countMatches(t, db))
}

func TestRollBackwardRetracts(t *testing.T) {
	addrX := "61" + strings.Repeat("aa", 28)
	cons, prod, db := newHarness(t, "*")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cons.Run(ctx)

	for _, slot := range []uint64{10, 20, 30} {
		prod.rollForward(blockWithOutput(t, slot, addrX))
	}
	waitFor(t, func() bool { return len(countMatches(t, db)) == 3 })

	prod.rollBackward(testPoint(t, 20))
	waitFor(t, func() bool { return len(countMatches(t, db)) == 2 })
	assert.Equal(t, []uint64{20, 10}, countMatches(t, db))
}

// TestForcedRollback covers the PUT /patterns handoff: the consumer
// retracts to the requested point and replies on the one-shot channel.
func TestForcedRollback(t *testing.T) {
	addrX := "61" + strings.Repeat("aa", 28)
	cons, prod, db := newHarness(t, "*")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cons.Run(ctx)

	for _, slot := range []uint64{10, 20, 30} {
		prod.rollForward(blockWithOutput(t, slot, addrX))
	}
	waitFor(t, func() bool { return len(countMatches(t, db)) == 3 })

	// Slot 15 is no known checkpoint: accepted optimistically, being
	// within the horizon.
	require.NoError(t, cons.RequestRollback(ctx, testPoint(t, 15), false))
	assert.Equal(t, []uint64{10}, countMatches(t, db))

	// Replay after the rollback continues from the target.
	prod.rollForward(blockWithOutput(t, 20, addrX))
	waitFor(t, func() bool { return len(countMatches(t, db)) == 2 })
}

func TestForcedRollbackBeyondSafeZone(t *testing.T) {
	addrX := "61" + strings.Repeat("aa", 28)
	cons, prod, db := newHarness(t, "*")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cons.Run(ctx)

	prod.rollForward(blockWithOutput(t, 2000, addrX))
	waitFor(t, func() bool { return len(countMatches(t, db)) == 1 })

	// The newest checkpoint sits at slot 2000; slot 10 is 1990 slots
	// back, far beyond the 100-slot horizon.
	err := cons.RequestRollback(ctx, testPoint(t, 10), false)
	assert.Equal(t, ErrBeyondSafeZone, err)

	// The same target passes once the caller opts out of the safe zone.
	require.NoError(t, cons.RequestRollback(ctx, testPoint(t, 10), true))
	assert.Empty(t, countMatches(t, db))
}
