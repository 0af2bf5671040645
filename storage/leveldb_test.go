package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/storage"
)

func TestLevelDB_BatchAndIterator(t *testing.T) {
	db, err := storage.NewLevelDB(filepath.Join(t.TempDir(), "chain"))
	require.NoError(t, err)
	defer db.Close()

	batch := db.NewBatch()
	batch.Set([]byte("deal:b"), []byte("2"))
	batch.Set([]byte("deal:a"), []byte("1"))
	batch.Set([]byte("coupon:x"), []byte("3"))
	batch.Delete([]byte("deal:a"))
	require.NoError(t, batch.Write())

	_, err = db.Get([]byte("deal:a"))
	assert.ErrorIs(t, err, core.ErrNotFound)

	it := db.NewIterator([]byte("deal:"))
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	it.Release()
	require.NoError(t, it.Error())
	assert.Equal(t, []string{"deal:b"}, keys)
}

func TestLevelDB_StateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)

	state := storage.NewStateDB(db)
	a := addr(t)
	require.NoError(t, state.SetAccount(&core.Account{Address: a, Balance: 42, Nonce: 3}))
	root := state.ComputeRoot()
	require.NoError(t, state.Commit())
	require.NoError(t, db.Close())

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	reopened := storage.NewStateDB(db)
	acc, err := reopened.GetAccount(a)
	require.NoError(t, err)
	assert.EqualValues(t, 42, acc.Balance)
	assert.EqualValues(t, 3, acc.Nonce)
	assert.Equal(t, root, reopened.ComputeRoot())
}
