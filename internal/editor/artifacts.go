package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/procertify/studio/backend-go/internal/document"
)

// ArtifactRenderer produces a rendered QR bitmap as an image URL
// (normally a PNG data URL). It is called off the UI goroutine.
type ArtifactRenderer interface {
	RenderQR(ctx context.Context, payload, color string) (string, error)
}

// ArtifactKey identifies one memoized rendering.
type ArtifactKey struct {
	ElementID string
	Content   string
	Color     string
}

// KeyFor returns the cache key for an element, applying the default color.
func KeyFor(el document.Element) ArtifactKey {
	color := el.Color
	if color == "" {
		color = document.DefaultQRColor
	}
	return ArtifactKey{ElementID: el.ID, Content: el.Content, Color: color}
}

func (k ArtifactKey) String() string {
	return fmt.Sprintf("%s-%s-%s", k.ElementID, k.Content, k.Color)
}

type artifactResult struct {
	key ArtifactKey
	url string
	err error
}

// ArtifactCache memoizes QR renderings per (element, content, color).
// Ensure, Publish and Lookup belong to the UI goroutine; renders run on
// their own goroutines and hand results back through Publish.
type ArtifactCache struct {
	renderer ArtifactRenderer
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	ready    map[ArtifactKey]string
	failed   map[ArtifactKey]struct{}
	inflight map[ArtifactKey]struct{}
	results  chan artifactResult
	closed   bool
}

func NewArtifactCache(renderer ArtifactRenderer) *ArtifactCache {
	ctx, cancel := context.WithCancel(context.Background())
	return &ArtifactCache{
		renderer: renderer,
		ctx:      ctx,
		cancel:   cancel,
		ready:    make(map[ArtifactKey]string),
		failed:   make(map[ArtifactKey]struct{}),
		inflight: make(map[ArtifactKey]struct{}),
		results:  make(chan artifactResult, 64),
	}
}

// Ensure starts a render for every QR element whose key is neither cached,
// in flight, nor known to fail. It returns the number of renders started.
func (c *ArtifactCache) Ensure(elements []document.Element) int {
	if c.closed || c.renderer == nil {
		return 0
	}

	started := 0
	for _, el := range elements {
		if el.Type != document.ElementQRCode {
			continue
		}
		key := KeyFor(el)
		if _, ok := c.ready[key]; ok {
			continue
		}
		if _, ok := c.inflight[key]; ok {
			continue
		}
		if _, ok := c.failed[key]; ok {
			continue
		}

		c.inflight[key] = struct{}{}
		started++

		payload := el.Content
		if payload == "" {
			payload = document.DefaultQRPayload
		}

		c.wg.Add(1)
		go c.render(key, payload)
	}
	return started
}

func (c *ArtifactCache) render(key ArtifactKey, payload string) {
	defer c.wg.Done()

	url, err := c.renderer.RenderQR(c.ctx, payload, key.Color)
	select {
	case c.results <- artifactResult{key: key, url: url, err: err}:
	case <-c.ctx.Done():
	}
}

// Publish moves finished renders into the cache and returns how many new
// bitmaps became available. Failures are logged and remembered so the same
// key is not retried.
func (c *ArtifactCache) Publish() int {
	if c.closed {
		return 0
	}

	published := 0
	for {
		select {
		case r := <-c.results:
			delete(c.inflight, r.key)
			if r.err != nil {
				slog.Warn("render qr", "error", r.err, "key", r.key.String())
				c.failed[r.key] = struct{}{}
				continue
			}
			c.ready[r.key] = r.url
			published++
		default:
			return published
		}
	}
}

// Lookup returns the rendered bitmap for el, if ready.
func (c *ArtifactCache) Lookup(el document.Element) (string, bool) {
	url, ok := c.ready[KeyFor(el)]
	return url, ok
}

// Pending returns the number of renders that have not been published yet.
func (c *ArtifactCache) Pending() int { return len(c.inflight) }

// Close abandons all in-flight renders. Their results are discarded.
func (c *ArtifactCache) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
}

// Wait blocks until every render goroutine has exited.
func (c *ArtifactCache) Wait() {
	c.wg.Wait()
}
