package device

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
)

// LocalFiles implements Files on the local filesystem. Both plain paths and
// file:// uris are accepted.
type LocalFiles struct{}

func (LocalFiles) Stat(_ context.Context, uri string) (FileInfo, error) {
	_, err := os.Stat(PathFromURI(uri))
	if err == nil {
		return FileInfo{Exists: true}, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return FileInfo{}, nil
	}
	return FileInfo{}, fmt.Errorf("stat %s: %w", uri, err)
}

func (LocalFiles) Remove(_ context.Context, uri string) error {
	if err := os.Remove(PathFromURI(uri)); err != nil {
		return fmt.Errorf("remove %s: %w", uri, err)
	}
	return nil
}

// PathFromURI strips a file:// scheme.
func PathFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	return u.Path
}
