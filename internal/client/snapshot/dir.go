package snapshot

import (
	"context"
	"os"
	"path/filepath"
)

// DirSink writes snapshot files into a local directory, creating it on
// demand. Files are replaced atomically.
type DirSink struct {
	Dir string
}

func (s DirSink) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.Dir, "."+name+".*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	dst := filepath.Join(s.Dir, name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}
	return dst, nil
}
