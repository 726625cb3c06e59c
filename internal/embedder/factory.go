package embedder

import "fmt"

// Mode selects whether embeddings are produced by a loopback-hosted model
// server ("local") or a remote HTTP API ("api").
type Mode string

const (
	ModeLocal Mode = "local"
	ModeAPI   Mode = "api"
)

// New builds the embedder for the configured mode. Both modes share the
// same RemoteEmbedder transport; "local" only changes the endpoint
// resolution expectation (loopback), not the wire dialect.
func New(mode Mode, cfg Config) (*RemoteEmbedder, error) {
	switch mode {
	case ModeLocal, ModeAPI:
		return NewRemoteEmbedder(cfg), nil
	default:
		return nil, fmt.Errorf("unknown embedding mode %q", mode)
	}
}
