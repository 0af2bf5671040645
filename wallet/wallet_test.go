package wallet_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/dealchain/core"
	"github.com/tolelom/dealchain/wallet"
)

func TestKeystoreRoundTrip(t *testing.T) {
	w, err := wallet.Generate("dealchain-test")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, wallet.SaveKey(path, "hunter2", w.PrivKey()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	priv, err := wallet.LoadKey(path, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, w.Address(), priv.Public().String())

	_, err = wallet.LoadKey(path, "hunter3")
	assert.ErrorIs(t, err, wallet.ErrWrongPassword)
}

func TestKeystoreDetectsSwappedAddress(t *testing.T) {
	a, err := wallet.Generate("dealchain-test")
	require.NoError(t, err)
	b, err := wallet.Generate("dealchain-test")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, wallet.SaveKey(path, "pw", a.PrivKey()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	raw["address"] = b.Address()
	data, err = json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, err = wallet.LoadKey(path, "pw")
	assert.ErrorIs(t, err, wallet.ErrWrongPassword)
}

func TestWalletBuildsSignedInstructions(t *testing.T) {
	w, err := wallet.Generate("dealchain-test")
	require.NoError(t, err)
	w.SetFee(5)

	price := uint64(9)
	tx, err := w.UpdateDeal("deal-address", nil, &price, 3)
	require.NoError(t, err)
	require.NoError(t, tx.Verify())
	assert.Equal(t, core.TxUpdateDeal, tx.Type)
	assert.Equal(t, w.Address(), tx.From)
	assert.EqualValues(t, 3, tx.Nonce)
	assert.EqualValues(t, 5, tx.Fee)
	assert.Equal(t, tx.Hash(), tx.ID)

	var p core.UpdateDealPayload
	require.NoError(t, json.Unmarshal(tx.Payload, &p))
	assert.Nil(t, p.IsActive)
	require.NotNil(t, p.PriceLamports)
	assert.EqualValues(t, 9, *p.PriceLamports)

	tx.Nonce = 4
	assert.Error(t, tx.Verify())
}
