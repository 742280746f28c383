package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/lfc-network/lfc/common"
	"github.com/lfc-network/lfc/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const stateStoreDir = "wallets"

// stateDTO keeps the state in its JSON form, the same document written by
// the file store.
type stateDTO struct {
	Name      string
	State     []byte
	UpdatedAt int64
}

type stateRepository struct {
	store     *badgerhold.Store
	done      chan struct{}
	closeOnce sync.Once
}

// NewStateRepository opens the wallets db under baseDir. An empty baseDir
// opens an in-memory db.
func NewStateRepository(baseDir string, logger badger.Logger) (domain.StateRepository, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, stateStoreDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open wallets store: %s", common.ErrPersistence, err)
	}

	repo := &stateRepository{store: store, done: make(chan struct{})}
	if len(dir) > 0 {
		go repo.runValueLogGC(logger)
	}
	return repo, nil
}

func (r *stateRepository) Add(_ context.Context, state *domain.CovenantState) error {
	dto, err := toDTO(state)
	if err != nil {
		return err
	}
	if err := r.store.Insert(state.Name, *dto); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return fmt.Errorf("%w: %s", domain.ErrStateAlreadyExists, state.Name)
		}
		return fmt.Errorf("%w: %s", common.ErrPersistence, err)
	}
	return nil
}

func (r *stateRepository) Get(_ context.Context, name string) (*domain.CovenantState, error) {
	var dto stateDTO
	if err := r.store.Get(name, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrStateNotFound, name)
		}
		return nil, fmt.Errorf("%w: %s", common.ErrPersistence, err)
	}
	return dto.toState()
}

func (r *stateRepository) Update(_ context.Context, state *domain.CovenantState) error {
	dto, err := toDTO(state)
	if err != nil {
		return err
	}
	if err := r.store.Update(state.Name, *dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrStateNotFound, state.Name)
		}
		return fmt.Errorf("%w: %s", common.ErrPersistence, err)
	}
	return nil
}

func (r *stateRepository) Delete(_ context.Context, name string) error {
	if err := r.store.Delete(name, stateDTO{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrStateNotFound, name)
		}
		return fmt.Errorf("%w: %s", common.ErrPersistence, err)
	}
	return nil
}

func (r *stateRepository) List(_ context.Context) ([]string, error) {
	var dtos []stateDTO
	if err := r.store.Find(&dtos, nil); err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrPersistence, err)
	}
	names := make([]string, 0, len(dtos))
	for _, dto := range dtos {
		names = append(names, dto.Name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *stateRepository) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		// nolint
		r.store.Close()
	})
}

func (r *stateRepository) runValueLogGC(logger badger.Logger) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if err := r.store.Badger().RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
				if logger != nil {
					logger.Errorf("%s", err)
				}
			}
		}
	}
}

func toDTO(state *domain.CovenantState) (*stateDTO, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}
	buf, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrPersistence, err)
	}
	return &stateDTO{state.Name, buf, time.Now().Unix()}, nil
}

func (d stateDTO) toState() (*domain.CovenantState, error) {
	state := &domain.CovenantState{}
	if err := json.Unmarshal(d.State, state); err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s: %s", common.ErrPersistence, d.Name, err)
	}
	state.Name = d.Name
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrPersistence, d.Name, err)
	}
	return state, nil
}

func createDB(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	return badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}
