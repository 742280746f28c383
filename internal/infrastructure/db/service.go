package db

import (
	"fmt"

	"github.com/lfc-network/lfc/internal/core/domain"
	badgerdb "github.com/lfc-network/lfc/internal/infrastructure/db/badger"
	filestore "github.com/lfc-network/lfc/internal/infrastructure/db/file"
	log "github.com/sirupsen/logrus"
)

const (
	FileDB   = "file"
	BadgerDB = "badger"
)

var SupportedTypes = map[string]struct{}{
	FileDB:   {},
	BadgerDB: {},
}

// NewStateRepository opens the wallets store of the given type in datadir.
func NewStateRepository(dbType, datadir string) (domain.StateRepository, error) {
	switch dbType {
	case FileDB:
		return filestore.NewStateRepository(datadir)
	case BadgerDB:
		return badgerdb.NewStateRepository(datadir, log.StandardLogger())
	default:
		return nil, fmt.Errorf("unknown db type %q", dbType)
	}
}
