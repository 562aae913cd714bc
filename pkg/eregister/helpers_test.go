package eregister

import(
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/abworrall/stackreg/pkg/emath"
)

type blob struct {
	cx, cy, sigma, amp float64
}

var testBlobs = []blob{
	{20, 22, 7, 1.0},
	{42, 18, 6, 0.7},
	{30, 44, 8, 0.9},
	{50, 46, 6, 0.5},
}

// blobValue is a smooth analytic scene, so shifted frames can be
// sampled exactly rather than interpolated.
func blobValue(x, y float64) float64 {
	v := 0.1
	for _, b := range testBlobs {
		d2 := (x-b.cx)*(x-b.cx) + (y-b.cy)*(y-b.cy)
		v += b.amp * math.Exp(-d2/(2*b.sigma*b.sigma))
	}
	return v
}

// blobFrame samples the scene moved by (dx,dy): frame(x,y) = scene(x-dx, y-dy).
func blobFrame(w, h int, dx, dy float64) emath.FloatGrid {
	fg := emath.NewFloatGrid(w, h)
	for y:=0; y<h; y++ {
		for x:=0; x<w; x++ {
			fg.Set(x, y, blobValue(float64(x)-dx, float64(y)-dy))
		}
	}
	return fg
}

func noiseFrame(w, h int, seed int64) emath.FloatGrid {
	rng := rand.New(rand.NewSource(seed))
	fg := emath.NewFloatGrid(w, h)
	for i := range fg.Values() {
		fg.Values()[i] = rng.Float64()
	}
	return fg
}

const markerSize = 12

var prevMarkers = []emath.Point{{X: 30, Y: 30}, {X: 52, Y: 34}, {X: 34, Y: 54}, {X: 56, Y: 56}}

// markerFrames returns two 160x160 frames on a zero background, each
// with the same four textured square markers, whose top left corners
// are moved by (dx,dy) in the second frame. Every marker has its own
// intensity range, so none can be mistaken for another.
func markerFrames(dx, dy int) (emath.FloatGrid, emath.FloatGrid) {
	rng := rand.New(rand.NewSource(42))
	prev := emath.NewFloatGrid(160, 160)
	curr := emath.NewFloatGrid(160, 160)

	for i, m := range prevMarkers {
		base := 0.2 + 0.2*float64(i)
		for y:=0; y<markerSize; y++ {
			for x:=0; x<markerSize; x++ {
				v := base + 0.2*rng.Float64()
				prev.Set(int(m.X)+x, int(m.Y)+y, v)
				curr.Set(int(m.X)+x+dx, int(m.Y)+y+dy, v)
			}
		}
	}
	return prev, curr
}

func testConfig() Config {
	cfg := NewConfig()
	cfg.Workers = 4
	if err := cfg.Finalize(); err != nil {
		panic(err)
	}
	return cfg
}

// memStore is an in-memory Store, keyed by stack and channel.
type memStore struct {
	mu     sync.Mutex
	stacks map[string]Stack
	puts   int
}

func newMemStore() *memStore { return &memStore{stacks: map[string]Stack{}} }

func memKey(key StackKey, channel string) string { return key.String() + "|" + channel }

func (m *memStore)GetStack(ctx context.Context, key StackKey, channel string) (Stack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, exists := m.stacks[memKey(key, channel)]
	if !exists {
		return Stack{}, fmt.Errorf("no stack %s channel %s", key, channel)
	}
	return s, nil
}

func (m *memStore)PutStack(ctx context.Context, key StackKey, channel string, s Stack) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stacks[memKey(key, channel)+"|registered"] = s
	m.puts++
	return nil
}

func (m *memStore)ListChannels(ctx context.Context, key StackKey) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := []string{}
	prefix := key.String() + "|"
	for k := range m.stacks {
		if rest, found := strings.CutPrefix(k, prefix); found && !strings.Contains(rest, "|") {
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	return names, nil
}
