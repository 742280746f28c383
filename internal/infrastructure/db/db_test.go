package db_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/lfc-network/lfc/common"
	"github.com/lfc-network/lfc/internal/core/domain"
	"github.com/lfc-network/lfc/internal/infrastructure/db"
	"github.com/stretchr/testify/require"
)

const (
	covMnemonic   = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	spendMnemonic = "legal winner thank year wave sausage worth useful legal winner thank yellow"
)

func newState(t *testing.T, name string) *domain.CovenantState {
	state, err := domain.NewCovenantState(
		name, covMnemonic, spendMnemonic, 10_000_000, 144, 0, common.RegTest,
	)
	require.NoError(t, err)
	return state
}

func addRounds(t *testing.T, state *domain.CovenantState) {
	c, err := state.Covenant()
	require.NoError(t, err)
	addr, err := c.CovenantAddress(0)
	require.NoError(t, err)
	pkScript, err := txscript.PayToAddrScript(addr)
	require.NoError(t, err)

	funding := wire.NewMsgTx(2)
	funding.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{0x06}, 0), nil, nil))
	funding.AddTxOut(wire.NewTxOut(25_000_000, pkScript))

	templates, err := c.CraftChain(funding, state.Amount, common.DefaultFee)
	require.NoError(t, err)
	require.NoError(t, state.AddRounds(templates))
}

func TestStateRepository(t *testing.T) {
	for dbType := range db.SupportedTypes {
		t.Run(dbType, func(t *testing.T) {
			ctx := context.Background()
			repo, err := db.NewStateRepository(dbType, t.TempDir())
			require.NoError(t, err)
			defer repo.Close()

			_, err = repo.Get(ctx, "alice")
			require.ErrorIs(t, err, domain.ErrStateNotFound)

			alice := newState(t, "alice")
			require.NoError(t, repo.Add(ctx, alice))
			require.ErrorIs(t, repo.Add(ctx, alice), domain.ErrStateAlreadyExists)
			require.NoError(t, repo.Add(ctx, newState(t, "bob")))

			names, err := repo.List(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"alice", "bob"}, names)

			got, err := repo.Get(ctx, "alice")
			require.NoError(t, err)
			require.Equal(t, "alice", got.Name)
			require.Equal(t, alice.CovMnemonic, got.CovMnemonic)
			require.Equal(t, common.RegTest.Name, got.Network.Name)
			require.True(t, got.Rounds.IsEmpty())

			addRounds(t, got)
			require.NoError(t, repo.Update(ctx, got))

			got, err = repo.Get(ctx, "alice")
			require.NoError(t, err)
			require.Len(t, got.Rounds, 3)
			for i, r := range got.Rounds {
				require.Equal(t, uint32(i+1), r.Index)
				require.Equal(t, domain.RoundLocked, r.State())
			}

			require.ErrorIs(t, repo.Update(ctx, newState(t, "carol")), domain.ErrStateNotFound)

			require.NoError(t, repo.Delete(ctx, "bob"))
			require.ErrorIs(t, repo.Delete(ctx, "bob"), domain.ErrStateNotFound)

			names, err = repo.List(ctx)
			require.NoError(t, err)
			require.Equal(t, []string{"alice"}, names)
		})
	}

	t.Run("close twice", func(t *testing.T) {
		for dbType := range db.SupportedTypes {
			repo, err := db.NewStateRepository(dbType, t.TempDir())
			require.NoError(t, err)
			require.NotPanics(t, func() {
				repo.Close()
				repo.Close()
			})
		}
	})
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	datadir := t.TempDir()
	repo, err := db.NewStateRepository(db.FileDB, datadir)
	require.NoError(t, err)

	require.NoError(t, repo.Add(ctx, newState(t, "alice")))

	path := filepath.Join(datadir, "alice.conf")
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	t.Run("corrupted", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("{"), 0600))
		_, err := repo.Get(ctx, "alice")
		require.ErrorIs(t, err, common.ErrPersistence)
	})

	t.Run("invalid state", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(`{"cov_mnemonic":"abandon","amount":1,"delay":1,"network":"regtest"}`), 0600))
		_, err := repo.Get(ctx, "alice")
		require.ErrorIs(t, err, common.ErrPersistence)
	})

	t.Run("invalid name", func(t *testing.T) {
		_, err := repo.Get(ctx, "../alice")
		require.Error(t, err)
	})

	_, err = db.NewStateRepository("sqlite", datadir)
	require.Error(t, err)
}
