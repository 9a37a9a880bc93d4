package captcha

import (
	"sync"
	"sync/atomic"

	"github.com/haze-gate/admission-core/verify"
	"github.com/valyala/gozstd"
)

// compressedArtifact is an Artifact with its palette bytes compressed
// at rest. A 128x128 puzzle is 16KiB uncompressed; a pool sized for a
// join burst is worth compressing, the way the teacher's Zstd wrapper
// compresses outbound gateway payloads before they sit in a buffer.
type compressedArtifact struct {
	mapID   int32
	answer  string
	palette []byte
}

// Pool holds pre-rendered artifacts so the hot admission path never
// renders a CAPTCHA inline. Implements verify.CaptchaPool.
type Pool struct {
	gen     *Generator
	nextMap int32

	mu    sync.Mutex
	items []compressedArtifact
}

// NewPool builds an empty pool drawing from gen.
func NewPool(gen *Generator) *Pool {
	return &Pool{gen: gen}
}

// Prime renders n new artifacts and adds them to the pool.
func (p *Pool) Prime(n int) {
	batch := make([]compressedArtifact, 0, n)
	for i := 0; i < n; i++ {
		a := p.gen.Generate()
		batch = append(batch, compressedArtifact{
			mapID:   atomic.AddInt32(&p.nextMap, 1),
			answer:  a.Answer,
			palette: gozstd.Compress(nil, a.PaletteData),
		})
	}

	p.mu.Lock()
	p.items = append(p.items, batch...)
	p.mu.Unlock()
}

// Take removes and returns one artifact from the pool. Ok is false if
// the pool is empty, per spec.md §4.12's `max(0, n-k)` size invariant:
// the pool never renders on demand, it just runs dry.
func (p *Pool) Take() (verify.CaptchaArtifact, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.items) == 0 {
		return verify.CaptchaArtifact{}, false
	}

	last := len(p.items) - 1
	item := p.items[last]
	p.items = p.items[:last]

	palette, err := gozstd.Decompress(nil, item.palette)
	if err != nil {
		return verify.CaptchaArtifact{}, false
	}

	return verify.CaptchaArtifact{
		MapID:       item.mapID,
		PaletteData: palette,
		Answer:      item.answer,
	}, true
}

// Size returns the current pool size, for the admin snapshot.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}
