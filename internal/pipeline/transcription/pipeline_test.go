package transcription

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/gaspermerela/journal-service-sub002/internal/config"
	registrytranscription "github.com/gaspermerela/journal-service-sub002/internal/registry/transcription"
)

type stubProvider struct{ name string }

func (s *stubProvider) ID() string { return s.name }
func (s *stubProvider) Descriptor() registrytranscription.ProviderDescriptor {
	return registrytranscription.ProviderDescriptor{ID: s.name, Name: s.name}
}
func (s *stubProvider) Transcribe(context.Context, registrytranscription.Request) (registrytranscription.Response, error) {
	return registrytranscription.Response{}, nil
}

// TestDispatcher_ConcurrentProviderAndSemaphoreLookupsAreRaceFree guards
// against the data race fixed by Dispatcher.mu: drainPending fans out one
// goroutine per pending row, and Enqueue calls providerFor from the HTTP
// handler goroutine, so both loaded and sems must tolerate concurrent
// readers/writers (run with -race to verify).
func TestDispatcher_ConcurrentProviderAndSemaphoreLookupsAreRaceFree(t *testing.T) {
	const name = "race-test-provider"
	registrytranscription.Register(registrytranscription.Plugin{
		Name: name,
		Loader: func(context.Context, *config.Config) (registrytranscription.Provider, error) {
			return &stubProvider{name: name}, nil
		},
	})

	cfg := config.DefaultConfig()
	d := NewDispatcher(nil, nil, nil, &cfg)

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			if _, err := d.providerFor(context.Background(), name); err != nil {
				return err
			}
			d.semaphoreFor(name)
			return nil
		})
	}
	require.NoError(t, g.Wait())
}
