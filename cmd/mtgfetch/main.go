// Command mtgfetch runs the card grid core headlessly: it loads the
// config, builds the image cache and grid, feeds in a synthetic
// collection, and simulates a resize plus a scroll ramp while printing
// visible ranges and cache activity. Useful for profiling the core and
// for smoke-testing config changes without a render backend.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	mtgfetch "github.com/Raygunpewpew1/mtgfetch"
	"github.com/Raygunpewpew1/mtgfetch/grid"
	"github.com/Raygunpewpew1/mtgfetch/imagecache"
)

func main() {
	configPath := flag.String("config", "~/.config/mtgfetch/mtgfetch.toml", "path to config file")
	cards := flag.Int("cards", 300, "number of synthetic cards")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	mtgfetch.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(*configPath, *cards); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath string, cards int) error {
	cfg, err := mtgfetch.Load(configPath)
	if err != nil {
		return err
	}

	cache, err := imagecache.New(imagecache.Options{
		MemoryCapacity:     cfg.Cache.MemoryCapacity,
		Dir:                cfg.Cache.Dir,
		DiskMaxBytes:       cfg.Cache.DiskMaxBytes,
		DiskMaxEntries:     cfg.Cache.DiskMaxEntries,
		EvictBatch:         cfg.Cache.EvictBatch,
		EvictCheckInterval: time.Duration(cfg.Cache.EvictCheckSeconds) * time.Second,
		URL:                originURL(cfg.Cache.OriginURL),
		UserAgent:          cfg.Cache.UserAgent,
		FetchConcurrency:   cfg.Cache.FetchConcurrency,
		FetchMinInterval:   time.Duration(cfg.Cache.FetchMinIntervalMs) * time.Millisecond,
		RetryCount:         cfg.Cache.RetryCount,
		RetryDelay:         time.Duration(cfg.Cache.RetryDelayMillis) * time.Millisecond,
		PollInterval:       time.Duration(cfg.Cache.DedupPollMillis) * time.Millisecond,
		MaxPolls:           cfg.Cache.DedupMaxPolls,
	})
	if err != nil {
		return err
	}
	defer cache.Close()

	events := &printListener{}
	g := grid.New(grid.Options{
		Config: grid.GridConfig{
			MinItemWidth:  cfg.Grid.MinItemWidth,
			Spacing:       cfg.Grid.Spacing,
			LabelHeight:   cfg.Grid.LabelHeight,
			AspectRatio:   cfg.Grid.AspectRatio,
			FixedPadding:  cfg.Grid.FixedPadding,
			FooterPadding: cfg.Grid.FooterPadding,
			BufferRows:    cfg.Grid.BufferRows,
		},
		LongPressDelay: cfg.Gesture.LongPressDelay(),
		ScrollSlop:     cfg.Gesture.ScrollSlop,
		DragSlop:       cfg.Gesture.DragSlop,
		Cache:          cache,
		Listener:       events,
	})
	defer g.Close()

	g.SetItems(syntheticCards(cards))
	g.Resize(360, 640)

	// Scroll ramp: a screenful at a time down the whole collection.
	time.Sleep(50 * time.Millisecond)
	rl := g.RenderList()
	for offset := float32(0); offset < rl.TotalHeight; offset += 640 {
		g.ScrollTo(offset)
		time.Sleep(50 * time.Millisecond)
	}

	// Give prefetches a moment to settle before reporting.
	time.Sleep(500 * time.Millisecond)

	stats := cache.Stats()
	fmt.Printf("redraws=%d ranges=%d\n", events.redraws.Load(), events.ranges.Load())
	fmt.Printf("cache: mem=%d disk=%d net=%d miss=%d cancelled=%d diskEntries=%d\n",
		stats.MemoryHits, stats.DiskHits, stats.NetworkHits, stats.Misses,
		stats.Cancelled, stats.DiskEntries)
	return nil
}

// originURL builds the image origin URL scheme used by the card image
// CDN: /<variant>/<face>/<id[0]>/<id[1]>/<id>.jpg
func originURL(base string) func(imagecache.Key) string {
	return func(k imagecache.Key) string {
		face := "front"
		if k.Face == imagecache.FaceBack {
			face = "back"
		}
		if len(k.ID) < 2 {
			return fmt.Sprintf("%s/%s/%s/%s.jpg", base, k.Variant, face, k.ID)
		}
		return fmt.Sprintf("%s/%s/%s/%c/%c/%s.jpg", base, k.Variant, face, k.ID[0], k.ID[1], k.ID)
	}
}

// printListener counts redraw requests and prints range changes.
type printListener struct {
	redraws atomic.Uint64
	ranges  atomic.Uint64
}

func (p *printListener) VisibleRangeChanged(start, end int) {
	p.ranges.Add(1)
	fmt.Printf("visible: [%d, %d]\n", start, end)
}

func (p *printListener) RequestRedraw()               { p.redraws.Add(1) }
func (p *printListener) ItemClicked(id string)        { fmt.Println("clicked:", id) }
func (p *printListener) ItemLongPressed(id string)    { fmt.Println("long-pressed:", id) }
func (p *printListener) DragStarted(id string, i int) { fmt.Println("drag started:", id, i) }
func (p *printListener) DragMoved(x, y float32)       {}
func (p *printListener) DragEnded(src, tgt int)       { fmt.Println("drag ended:", src, tgt) }
func (p *printListener) DragCancelled()               { fmt.Println("drag cancelled") }

func syntheticCards(n int) []grid.CardRecord {
	items := make([]grid.CardRecord, n)
	for i := range items {
		items[i] = grid.CardRecord{
			ID:        fmt.Sprintf("%08x-0000-4000-8000-%012x", i, i),
			Name:      fmt.Sprintf("Card %d", i),
			SizeClass: "normal",
			Quantity:  1,
		}
	}
	return items
}
