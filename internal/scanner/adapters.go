package scanner

import (
	"context"
	"sync"
)

// BackendNative is the platform-native barcode scanner; BackendStream is the
// general-purpose decoder library on a live stream; BackendCompat is the
// heavier, more compatible decoder used only when the stream backend cannot
// initialize.
const (
	BackendNative = "native"
	BackendStream = "stream-decoder"
	BackendCompat = "compat-decoder"
)

// providerBackend adapts a MediaProvider into the Backend contract. All three
// shipped backends share this shape; they differ in which provider (and thus
// which decoder capability) they wrap.
type providerBackend struct {
	name     string
	provider MediaProvider

	mu     sync.Mutex
	stream MediaStream
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNativeBackend wraps the platform-native scanner capability.
func NewNativeBackend(provider MediaProvider) Backend {
	return &providerBackend{name: BackendNative, provider: provider}
}

// NewStreamBackend wraps the primary decoder library.
func NewStreamBackend(provider MediaProvider) Backend {
	return &providerBackend{name: BackendStream, provider: provider}
}

// NewCompatBackend wraps the fallback decoder library.
func NewCompatBackend(provider MediaProvider) Backend {
	return &providerBackend{name: BackendCompat, provider: provider}
}

func (b *providerBackend) Name() string { return b.name }

func (b *providerBackend) IsAvailable(ctx context.Context) bool {
	if b.provider == nil {
		return false
	}
	return b.provider.Available(ctx)
}

func (b *providerBackend) CheckPermission(ctx context.Context) (PermissionResult, error) {
	return b.provider.Permission(ctx)
}

func (b *providerBackend) RequestPermission(ctx context.Context) (PermissionResult, error) {
	return b.provider.RequestPermission(ctx)
}

// Start acquires the camera and pumps decodes into the sink until Stop or
// context cancellation. The acquisition error is returned synchronously so
// the pipeline can fall back to the next backend.
func (b *providerBackend) Start(ctx context.Context, sink Sink, onError ErrorSink) error {
	stream, err := b.provider.Acquire(ctx)
	if err != nil {
		return err
	}

	// The start context only bounds acquisition; the pump outlives it and is
	// torn down by Stop.
	pumpCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	b.mu.Lock()
	if b.stream != nil {
		// A Stop raced us or the caller started twice; release the old
		// stream before adopting the new one.
		_ = b.stream.Close()
		if b.cancel != nil {
			b.cancel()
		}
	}
	b.stream = stream
	b.cancel = cancel
	b.done = done
	b.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-pumpCtx.Done():
				return
			case decode, ok := <-stream.Decodes():
				if !ok {
					if onError != nil {
						onError(ErrBackendUnavailable)
					}
					return
				}
				sink(decode)
			}
		}
	}()
	return nil
}

// Stop tears down the stream and waits for the pump goroutine to exit so the
// camera is released before the caller starts another backend. Safe to call
// repeatedly and with no active stream.
func (b *providerBackend) Stop() {
	b.mu.Lock()
	stream := b.stream
	cancel := b.cancel
	done := b.done
	b.stream = nil
	b.cancel = nil
	b.done = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		_ = stream.Close()
	}
	if done != nil {
		<-done
	}
}
