package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/lfc-network/lfc/common"
	"github.com/lfc-network/lfc/internal/core/domain"
)

const fileExt = ".conf"

type stateRepository struct {
	datadir string
	lock    *sync.Mutex
}

// NewStateRepository stores every wallet as <datadir>/<name>.conf.
func NewStateRepository(datadir string) (domain.StateRepository, error) {
	if len(datadir) <= 0 {
		return nil, fmt.Errorf("missing datadir")
	}
	dir := cleanAndExpandPath(datadir)
	if err := makeDirectoryIfNotExists(dir); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize datadir: %s", common.ErrPersistence, err)
	}
	return &stateRepository{dir, &sync.Mutex{}}, nil
}

func (r *stateRepository) Add(_ context.Context, state *domain.CovenantState) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	path, err := r.path(state.Name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", domain.ErrStateAlreadyExists, state.Name)
	}
	return r.write(path, state)
}

func (r *stateRepository) Get(_ context.Context, name string) (*domain.CovenantState, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	path, err := r.path(name)
	if err != nil {
		return nil, err
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrStateNotFound, name)
		}
		return nil, fmt.Errorf("%w: %s", common.ErrPersistence, err)
	}

	state := &domain.CovenantState{}
	if err := json.Unmarshal(buf, state); err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s: %s", common.ErrPersistence, path, err)
	}
	state.Name = name
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrPersistence, name, err)
	}
	return state, nil
}

func (r *stateRepository) Update(_ context.Context, state *domain.CovenantState) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	path, err := r.path(state.Name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStateNotFound, state.Name)
	}
	return r.write(path, state)
}

func (r *stateRepository) Delete(_ context.Context, name string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	path, err := r.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrStateNotFound, name)
		}
		return fmt.Errorf("%w: %s", common.ErrPersistence, err)
	}
	return nil
}

func (r *stateRepository) List(_ context.Context) ([]string, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	entries, err := os.ReadDir(r.datadir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrPersistence, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), fileExt))
	}
	sort.Strings(names)
	return names, nil
}

func (r *stateRepository) Close() {}

func (r *stateRepository) path(name string) (string, error) {
	if len(name) <= 0 || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid wallet name %q", name)
	}
	return filepath.Join(r.datadir, name+fileExt), nil
}

// write replaces the file atomically through a temp file in the same dir.
func (r *stateRepository) write(path string, state *domain.CovenantState) error {
	if err := state.Validate(); err != nil {
		return err
	}
	buf, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(r.datadir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %s", common.ErrPersistence, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %s", common.ErrPersistence, err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %s", common.ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %s", common.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %s", common.ErrPersistence, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %s", common.ErrPersistence, err)
	}
	return nil
}

func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0700)
	}
	return nil
}
