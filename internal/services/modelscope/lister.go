package modelscope

import (
	"context"

	"anipipe/internal/catalog"
)

// Lister adapts the client into a catalog source: it refreshes the
// repository manifest and parses it into a snapshot. Each call re-downloads
// the manifest so the observed catalog tracks the remote repository.
type Lister struct {
	client *Client
}

// NewLister wraps a client as a catalog.Lister.
func NewLister(client *Client) *Lister {
	return &Lister{client: client}
}

// Snapshot downloads and parses the current manifest.
func (l *Lister) Snapshot(ctx context.Context) (catalog.Snapshot, error) {
	path, err := l.client.FetchManifest(ctx)
	if err != nil {
		return catalog.Snapshot{}, err
	}
	return catalog.NewFilelistLister(path).Snapshot(ctx)
}
