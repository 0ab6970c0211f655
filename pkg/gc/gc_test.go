package gc

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, db *database.DB, state *health.State) {
	t.Helper()
	addr, err := chain.ParseAddress("61" + strings.Repeat("aa", 28))
	require.NoError(t, err)

	hash, err := chain.ParseHeaderHash(fmt.Sprintf("%064d", 10))
	require.NoError(t, err)
	created := chain.NewPoint(10, hash)

	txID, err := chain.ParseTransactionID(fmt.Sprintf("%064d", 10))
	require.NoError(t, err)
	ref := chain.OutputReference{TransactionID: txID, OutputIndex: 0}

	spender, err := chain.ParseTransactionID(strings.Repeat("ee", 32))
	require.NoError(t, err)
	spentHash, err := chain.ParseHeaderHash(fmt.Sprintf("%064d", 20))
	require.NoError(t, err)

	orphan, err := chain.ParseDatumHash(strings.Repeat("0f", 32))
	require.NoError(t, err)

	err = db.ExclusiveWrite(context.Background(), func(tx *database.Tx) error {
		out := chain.TransactionOutput{Address: addr, Value: []byte{0x00}}
		if err := tx.InsertInput(database.NewInputRow(ref, out, created)); err != nil {
			return err
		}
		if err := tx.SpendInput(ref, chain.NewPoint(20, spentHash), spender); err != nil {
			return err
		}
		return tx.InsertBinaryData(orphan, []byte{0xd8, 0x79})
	})
	require.NoError(t, err)

	// A tip far enough out that the spend at slot 20 is collectable.
	tipHash, err := chain.ParseHeaderHash(fmt.Sprintf("%064d", 500))
	require.NoError(t, err)
	state.SetCheckpoint(chain.NewPoint(500, tipHash))
}

func remaining(t *testing.T, db *database.DB) int {
	t.Helper()
	p, err := pattern.Parse("*")
	require.NoError(t, err)

	count := 0
	err = db.ReadOnly(context.Background(), func(tx *database.Tx) error {
		return tx.ForEachMatch(p, database.StatusAll, database.SortDesc, func(database.InputRow) error {
			count++
			return nil
		})
	})
	require.NoError(t, err)
	return count
}

func TestCollectRemoveSpentInputs(t *testing.T) {
	db, err := database.Open(context.Background(), database.Options{InMemory: true, LongestRollback: 100})
	require.NoError(t, err)
	defer db.Close()

	state := health.NewState(health.Configuration{})
	seed(t, db, state)

	collector := NewCollector(db, database.RemoveSpentInputs, time.Hour, state)
	require.NoError(t, collector.collect(context.Background()))

	assert.Equal(t, 0, remaining(t, db))
}

func TestCollectMarkSpentInputsKeepsRows(t *testing.T) {
	db, err := database.Open(context.Background(), database.Options{InMemory: true, LongestRollback: 100})
	require.NoError(t, err)
	defer db.Close()

	state := health.NewState(health.Configuration{})
	seed(t, db, state)

	collector := NewCollector(db, database.MarkSpentInputs, time.Hour, state)
	require.NoError(t, collector.collect(context.Background()))

	// Spent inputs survive under mark mode; only orphans are collected.
	assert.Equal(t, 1, remaining(t, db))
}
