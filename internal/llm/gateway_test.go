package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-carbon-must-flow/internal/cache"
	"github.com/Veraticus/the-carbon-must-flow/internal/config"
)

type fakeProvider struct {
	err       error
	name      string
	reply     string
	requests  []Request
	available bool
	vision    bool
	mu        sync.Mutex
}

func (f *fakeProvider) Name() string         { return f.name }
func (f *fakeProvider) Available() bool      { return f.available }
func (f *fakeProvider) SupportsVision() bool { return f.vision }
func (f *fakeProvider) DefaultModel() string { return f.name + "-model" }

func (f *fakeProvider) Complete(_ context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.reply, f.err
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func TestGateway_Selection(t *testing.T) {
	tests := []struct {
		name       string
		defaultP   string
		providers  []*fakeProvider
		wantActive string
		wantVision string
	}{
		{
			name:     "default provider available",
			defaultP: "b",
			providers: []*fakeProvider{
				{name: "a", available: true},
				{name: "b", available: true},
			},
			wantActive: "b",
		},
		{
			name:     "default unavailable falls back to priority",
			defaultP: "a",
			providers: []*fakeProvider{
				{name: "a"},
				{name: "b", available: true},
				{name: "c", available: true, vision: true},
			},
			wantActive: "b",
			wantVision: "c",
		},
		{
			name:      "nothing available",
			defaultP:  "a",
			providers: []*fakeProvider{{name: "a"}, {name: "b"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps := make([]Provider, len(tt.providers))
			for i, p := range tt.providers {
				ps[i] = p
			}
			g := NewGateway(ps, Settings{DefaultProvider: tt.defaultP})

			active, ok := g.Active()
			if tt.wantActive == "" {
				assert.False(t, ok)
				assert.False(t, g.Available())
			} else {
				require.True(t, ok)
				assert.Equal(t, tt.wantActive, active.Name())
			}

			vision, ok := g.VisionProvider()
			if tt.wantVision == "" {
				assert.False(t, ok)
			} else {
				require.True(t, ok)
				assert.Equal(t, tt.wantVision, vision.Name())
			}
		})
	}
}

func TestGateway_PromptCachesResponses(t *testing.T) {
	p := &fakeProvider{name: "a", available: true, reply: "hello"}
	g := NewGateway([]Provider{p}, Settings{DefaultProvider: "a", CacheTTL: time.Hour},
		WithResponseCache(cache.NewMemory[string](0)))

	for range 3 {
		out, ok := g.Prompt(context.Background(), "hi", "sys", "")
		require.True(t, ok)
		assert.Equal(t, "hello", out)
	}
	assert.Equal(t, 1, p.calls())
	assert.Equal(t, "a-model", p.requests[0].Model)
	assert.Equal(t, "sys", p.requests[0].System)

	_, ok := g.Prompt(context.Background(), "different", "sys", "")
	require.True(t, ok)
	assert.Equal(t, 2, p.calls())
}

func TestGateway_FailureIsNotAnError(t *testing.T) {
	p := &fakeProvider{name: "a", available: true, err: errors.New("boom")}
	g := NewGateway([]Provider{p}, Settings{DefaultProvider: "a"})

	out, ok := g.Prompt(context.Background(), "hi", "", "")
	assert.False(t, ok)
	assert.Empty(t, out)

	obj, ok := g.JSON(context.Background(), "hi", "", "")
	assert.False(t, ok)
	assert.Nil(t, obj)
}

func TestGateway_JSON(t *testing.T) {
	p := &fakeProvider{name: "a", available: true, reply: "Sure!\n```json\n{\"category_code\": \"fuel\", \"confidence\": 0.9}\n```"}
	g := NewGateway([]Provider{p}, Settings{DefaultProvider: "a"})

	obj, ok := g.JSON(context.Background(), "classify", "", "")
	require.True(t, ok)
	assert.Equal(t, "fuel", String(obj, "category_code"))
	conf, ok := Float(obj, "confidence")
	require.True(t, ok)
	assert.InDelta(t, 0.9, conf, 1e-9)
}

func TestGateway_Vision(t *testing.T) {
	text := &fakeProvider{name: "a", available: true, reply: "text"}
	vis := &fakeProvider{name: "b", available: true, vision: true, reply: "seen"}
	g := NewGateway([]Provider{text, vis}, Settings{DefaultProvider: "a", VisionOrder: []string{"a", "b"}})

	out, ok := g.Vision(context.Background(), "read this", []Image{{MediaType: "image/png", Data: []byte{1, 2}}}, "", "")
	require.True(t, ok)
	assert.Equal(t, "seen", out)
	require.Len(t, vis.requests, 1)
	assert.True(t, vis.requests[0].HasImages())
	assert.Zero(t, text.calls())
}

func TestGateway_Health(t *testing.T) {
	g := NewGateway([]Provider{
		&fakeProvider{name: "a"},
		&fakeProvider{name: "b", available: true, vision: true},
	}, Settings{DefaultProvider: "a"})

	health := g.Health()
	require.Len(t, health, 2)
	assert.False(t, health[0].Available)
	assert.False(t, health[0].Active)
	assert.True(t, health[1].Active)
	assert.True(t, health[1].Vision)
	assert.Equal(t, "b-model", health[1].Model)
}

func TestCacheKey_ImagesChangeKey(t *testing.T) {
	base := Request{Model: "m", Messages: []Message{UserMessage("x")}}
	withImg := Request{Model: "m", Messages: []Message{UserMessage("x", Image{MediaType: "image/png", Data: []byte("abc")})}}
	otherImg := Request{Model: "m", Messages: []Message{UserMessage("x", Image{MediaType: "image/png", Data: []byte("abd")})}}

	assert.NotEqual(t, cacheKey("p", base), cacheKey("p", withImg))
	assert.NotEqual(t, cacheKey("p", withImg), cacheKey("p", otherImg))
	assert.NotEqual(t, cacheKey("p", base), cacheKey("q", base))
	assert.Equal(t, cacheKey("p", base), cacheKey("p", base))
}

// slowProvider blocks until the request context ends.
type slowProvider struct {
	fakeProvider
}

func (s *slowProvider) Complete(ctx context.Context, req Request) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	<-ctx.Done()
	return "", ctx.Err()
}

func TestGateway_TimeoutIsNotAnError(t *testing.T) {
	p := &slowProvider{fakeProvider{name: "a", available: true}}
	g := NewGateway([]Provider{p}, Settings{DefaultProvider: "a", Timeout: 20 * time.Millisecond})

	tests := []struct {
		name string
		call func() bool
	}{
		{
			name: "chat",
			call: func() bool {
				out, ok := g.Chat(context.Background(), []Message{UserMessage("hi")}, "", "")
				assert.Empty(t, out)
				return ok
			},
		},
		{
			name: "json",
			call: func() bool {
				obj, ok := g.JSON(context.Background(), "hi", "", "")
				assert.Nil(t, obj)
				return ok
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Now()
			assert.False(t, tt.call())
			assert.Less(t, time.Since(start), 5*time.Second)
		})
	}
	assert.Equal(t, 2, p.calls())
}

func TestGateway_CloseReleasesOwnedCache(t *testing.T) {
	g := NewFromConfig(config.AIConfig{}, nil)
	require.NotNil(t, g.owned)
	g.Close()
	g.Close()

	select {
	case <-g.owned.Done():
	default:
		t.Fatal("owned response cache still running after Close")
	}

	injected := cache.NewMemory[string](0)
	defer injected.Close()
	other := NewGateway(nil, Settings{}, WithResponseCache(injected))
	other.Close()
	select {
	case <-injected.Done():
		t.Fatal("injected cache closed by gateway")
	default:
	}
}
