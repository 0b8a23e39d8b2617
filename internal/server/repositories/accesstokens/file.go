package accesstokens

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/pmfstudio/reportgate/internal/filex"
	"github.com/pmfstudio/reportgate/internal/server/models"
)

// FileStore keeps the token document in a single JSON file and replaces it
// with write-to-temp-then-rename on every Save. Update holds an advisory
// lock on a sidecar "<path>.lock" file for the whole cycle.
type FileStore struct {
	path string
	perm os.FileMode
}

// NewFileStore returns a store backed by the file at path. The file does not
// need to exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, perm: 0o600}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// LockPath returns the path of the sidecar lock file.
func (s *FileStore) LockPath() string { return s.path + ".lock" }

func (s *FileStore) Load(ctx context.Context) ([]models.AccessToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, unavailable(err)
	}
	return DecodeDocument(data)
}

func (s *FileStore) Save(ctx context.Context, tokens []models.AccessToken) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	data, err := EncodeDocument(tokens)
	if err != nil {
		return unavailable(err)
	}
	if err := filex.WriteFileAtomic(s.path, data, s.perm); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *FileStore) Update(ctx context.Context, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	unlock, err := filex.Lock(s.LockPath())
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = unlock() }()

	tokens, err := s.Load(ctx)
	if err != nil {
		return err
	}
	next, err := fn(tokens)
	if err != nil || next == nil {
		return err
	}
	return s.Save(ctx, next)
}
