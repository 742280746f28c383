package config_test

import (
	"testing"

	"github.com/lfc-network/lfc/common"
	"github.com/lfc-network/lfc/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		viper.Reset()
		datadir := t.TempDir()
		t.Setenv("LFC_DATADIR", datadir)

		cfg, err := config.LoadConfig()
		require.NoError(t, err)
		require.Equal(t, datadir, cfg.Datadir)
		require.Equal(t, 4, cfg.LogLevel)
		require.Equal(t, common.DefaultFee, cfg.Fee)
		require.Equal(t, common.RegTest.Name, cfg.Network.Name)
		require.Equal(t, "file", cfg.DbType)
	})

	t.Run("env", func(t *testing.T) {
		viper.Reset()
		t.Setenv("LFC_DATADIR", t.TempDir())
		t.Setenv("LFC_FEE", "1000")
		t.Setenv("LFC_NETWORK", "testnet")
		t.Setenv("LFC_DB_TYPE", "badger")

		cfg, err := config.LoadConfig()
		require.NoError(t, err)
		require.Equal(t, uint64(1000), cfg.Fee)
		require.Equal(t, common.TestNet.Name, cfg.Network.Name)
		require.Equal(t, "badger", cfg.DbType)
	})

	t.Run("invalid", func(t *testing.T) {
		fixtures := map[string]string{
			"LFC_NETWORK": "liquid",
			"LFC_DB_TYPE": "sqlite",
			"LFC_FEE":     "0",
		}
		for key, value := range fixtures {
			t.Run(key, func(t *testing.T) {
				viper.Reset()
				t.Setenv("LFC_DATADIR", t.TempDir())
				t.Setenv(key, value)

				_, err := config.LoadConfig()
				require.Error(t, err)
			})
		}
	})
}
