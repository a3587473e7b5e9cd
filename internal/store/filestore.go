package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/andreddluiz/shiftflow/internal/lock"
	"github.com/andreddluiz/shiftflow/internal/model"
	"github.com/andreddluiz/shiftflow/internal/yamlio"
)

const (
	draftsSubdir = "drafts"
	statusSubdir = "status"
)

// FileStore keeps each draft and base snapshot as one YAML file under the
// shared store directory:
//
//	<dir>/drafts/<base>_<date>_<slot>.yaml
//	<dir>/status/<base>.yaml
//
// Writes go through the atomic temp-validate-rename path. A file that fails
// to parse is quarantined and treated as absent, so a torn write from
// another machine cannot wedge the session.
type FileStore struct {
	dir           string
	quarantineDir string
	locks         *lock.MutexMap
	readGroup     singleflight.Group
}

func NewFileStore(dir, quarantineDir string) (*FileStore, error) {
	for _, sub := range []string{draftsSubdir, statusSubdir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	if err := os.MkdirAll(quarantineDir, 0755); err != nil {
		return nil, fmt.Errorf("create quarantine directory: %w", err)
	}
	return &FileStore{
		dir:           dir,
		quarantineDir: quarantineDir,
		locks:         lock.NewMutexMap(),
	}, nil
}

// Dir returns the store root, used by the change watcher.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) draftPath(key model.DraftKey) string {
	name := fmt.Sprintf("%s_%s_%s.yaml", key.BaseID, key.Date, key.ShiftSlotID)
	return filepath.Join(s.dir, draftsSubdir, name)
}

func (s *FileStore) statusPath(baseID string) string {
	return filepath.Join(s.dir, statusSubdir, baseID+".yaml")
}

func (s *FileStore) GetDraft(ctx context.Context, key model.DraftKey) (*model.ShiftDraft, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !key.Complete() {
		return nil, fmt.Errorf("incomplete draft key: %s", key)
	}

	path := s.draftPath(key)
	v, err, _ := s.readGroup.Do(path, func() (any, error) {
		var draft model.ShiftDraft
		ok, err := s.readYAML(path, &draft)
		if err != nil || !ok {
			return (*model.ShiftDraft)(nil), err
		}
		return &draft, nil
	})
	if err != nil {
		return nil, err
	}
	draft := v.(*model.ShiftDraft)
	if draft == nil {
		return nil, nil
	}
	return draft.Clone(), nil
}

func (s *FileStore) SaveDraft(ctx context.Context, draft *model.ShiftDraft) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := draft.Key()
	if !key.Complete() {
		return fmt.Errorf("incomplete draft key: %s", key)
	}

	path := s.draftPath(key)
	s.locks.Lock(path)
	defer s.locks.Unlock(path)

	if err := yamlio.AtomicWrite(path, draft); err != nil {
		return fmt.Errorf("save draft %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) DeleteDraft(ctx context.Context, key model.DraftKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !key.Complete() {
		return fmt.Errorf("incomplete draft key: %s", key)
	}

	path := s.draftPath(key)
	s.locks.Lock(path)
	defer s.locks.Unlock(path)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete draft %s: %w", key, err)
	}
	os.Remove(path + ".bak")
	return nil
}

func (s *FileStore) GetBaseStatus(ctx context.Context, baseID string) (*model.BaseStatusSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.statusPath(baseID)
	v, err, _ := s.readGroup.Do(path, func() (any, error) {
		var snapshot model.BaseStatusSnapshot
		ok, err := s.readYAML(path, &snapshot)
		if err != nil || !ok {
			return (*model.BaseStatusSnapshot)(nil), err
		}
		return &snapshot, nil
	})
	if err != nil {
		return nil, err
	}
	snapshot := v.(*model.BaseStatusSnapshot)
	if snapshot == nil {
		return nil, nil
	}
	return snapshot.Clone(), nil
}

func (s *FileStore) SaveBaseStatus(ctx context.Context, snapshot *model.BaseStatusSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snapshot.BaseID == "" {
		return fmt.Errorf("base snapshot missing base ID")
	}

	path := s.statusPath(snapshot.BaseID)
	s.locks.Lock(path)
	defer s.locks.Unlock(path)

	if err := yamlio.AtomicWrite(path, snapshot); err != nil {
		return fmt.Errorf("save base status %s: %w", snapshot.BaseID, err)
	}
	return nil
}

// readYAML reads path into v. Returns (false, nil) when the file does not
// exist. A corrupt file is quarantined and restored from backup when the
// backup parses; if recovery yields nothing the document is reported absent.
func (s *FileStore) readYAML(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, v); err == nil {
		return true, nil
	}

	if err := yamlio.RecoverCorrupted(s.quarantineDir, path); err != nil {
		return false, fmt.Errorf("recover corrupted %s: %w", path, err)
	}

	data, err = os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read restored %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse restored %s: %w", path, err)
	}
	return true, nil
}
