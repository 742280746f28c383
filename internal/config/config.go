package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lfc-network/lfc/common"
	"github.com/lfc-network/lfc/internal/infrastructure/db"
	"github.com/spf13/viper"
)

type Config struct {
	Datadir  string
	LogLevel int
	Fee      uint64
	Network  common.Network
	DbType   string
}

var (
	Datadir  = "DATADIR"
	LogLevel = "LOG_LEVEL"
	Fee      = "FEE"
	Network  = "NETWORK"
	DbType   = "DB_TYPE"

	defaultDatadir  = btcutil.AppDataDir("lfc", false)
	defaultLogLevel = 4
	defaultFee      = common.DefaultFee
	defaultNetwork  = common.RegTest.Name
	defaultDbType   = db.FileDB
)

// LoadConfig reads the LFC_* environment. Flags bound with BindFlag
// override the environment.
func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("LFC")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(Fee, defaultFee)
	viper.SetDefault(Network, defaultNetwork)
	viper.SetDefault(DbType, defaultDbType)

	net, err := common.NetworkFromString(viper.GetString(Network))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Datadir:  viper.GetString(Datadir),
		LogLevel: viper.GetInt(LogLevel),
		Fee:      viper.GetUint64(Fee),
		Network:  net,
		DbType:   strings.ToLower(viper.GetString(DbType)),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := makeDirectoryIfNotExists(cfg.Datadir); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}
	return cfg, nil
}

// BindFlag makes value take precedence over the environment for key.
func BindFlag(key string, value interface{}) {
	viper.Set(key, value)
}

func (c *Config) validate() error {
	if len(c.Datadir) <= 0 {
		return fmt.Errorf("missing datadir")
	}
	if c.Fee == 0 {
		return fmt.Errorf("fee must be positive")
	}
	if _, ok := db.SupportedTypes[c.DbType]; !ok {
		return fmt.Errorf("db type not supported, please select one of: file, badger")
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0700)
	}
	return nil
}
