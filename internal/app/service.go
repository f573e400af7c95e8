package app

import (
	"time"

	"github.com/condasolve/condasolve/internal/adapters"
	"github.com/condasolve/condasolve/internal/ports"
)

// Service wires the pure solver core to its file-based collaborators,
// following the teacher's app/service.go shape: one struct of ports,
// constructed with concrete file adapters, consumed by one method per
// caller-facing operation.
type Service struct {
	PrefixData    ports.PrefixDataPort
	History       ports.HistoryPort
	IndexProvider ports.IndexProviderPort
	Clock         func() time.Time
}

// NewService constructs a Service backed by local file adapters, with
// repodata read from channelMirrorDir/<channel>/<subdir>/repodata.json.
func NewService(channelMirrorDir string) Service {
	return Service{
		PrefixData:    adapters.NewPrefixDataFileAdapter(),
		History:       adapters.NewHistoryFileAdapter(),
		IndexProvider: adapters.NewRepodataFileAdapter(channelMirrorDir),
		Clock:         time.Now,
	}
}
