package mtgfetch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the full tuning surface of the grid core, loaded from an
// optional mtgfetch.toml. Every value has a working default; a missing
// file is not an error.
type Config struct {
	Grid    GridSection    `toml:"grid"`
	Gesture GestureSection `toml:"gesture"`
	Cache   CacheSection   `toml:"cache"`
}

// GridSection holds the sizing constants for the virtualized card grid.
type GridSection struct {
	// MinItemWidth is the narrowest a card cell may be, in logical units.
	MinItemWidth float32 `toml:"min_item_width"`
	// Spacing is the gap between cells and around the grid edges.
	Spacing float32 `toml:"spacing"`
	// LabelHeight is the space reserved below the card art for name/price.
	LabelHeight float32 `toml:"label_height"`
	// AspectRatio is card height divided by width (MTG cards are 88x63mm).
	AspectRatio float32 `toml:"aspect_ratio"`
	// FixedPadding is horizontal chrome subtracted from the viewport width
	// before column packing.
	FixedPadding float32 `toml:"fixed_padding"`
	// FooterPadding is extra scrollable space after the last row.
	FooterPadding float32 `toml:"footer_padding"`
	// BufferRows is how many extra offscreen rows to lay out on each side
	// of the viewport for smooth scrolling and image prefetch.
	BufferRows int `toml:"buffer_rows"`
}

// GestureSection holds the gesture recognizer thresholds.
type GestureSection struct {
	// LongPressMillis is the press-and-hold delay before a drag arms.
	LongPressMillis int `toml:"long_press_millis"`
	// ScrollSlop is the movement (units) that yields a press to scrolling.
	ScrollSlop float32 `toml:"scroll_slop"`
	// DragSlop is the movement (units) that turns an armed press into a drag.
	// Smaller than ScrollSlop so a deliberate long-press survives jitter.
	DragSlop float32 `toml:"drag_slop"`
}

// CacheSection holds the multi-tier image cache tuning.
type CacheSection struct {
	MemoryCapacity     int    `toml:"memory_capacity"`
	Dir                string `toml:"dir"`
	DiskMaxBytes       int64  `toml:"disk_max_bytes"`
	DiskMaxEntries     int    `toml:"disk_max_entries"`
	EvictBatch         int    `toml:"evict_batch"`
	EvictCheckSeconds  int    `toml:"evict_check_seconds"`
	FetchConcurrency   int    `toml:"fetch_concurrency"`
	FetchMinIntervalMs int    `toml:"fetch_min_interval_millis"`
	RetryCount         int    `toml:"retry_count"`
	RetryDelayMillis   int    `toml:"retry_delay_millis"`
	DedupPollMillis    int    `toml:"dedup_poll_millis"`
	DedupMaxPolls      int    `toml:"dedup_max_polls"`
	UserAgent          string `toml:"user_agent"`
	OriginURL          string `toml:"origin_url"`
}

// DefaultConfig returns the defaults used when no config file exists.
func DefaultConfig() Config {
	return Config{
		Grid: GridSection{
			MinItemWidth:  100,
			Spacing:       8,
			LabelHeight:   24,
			AspectRatio:   1.4,
			FixedPadding:  0,
			FooterPadding: 16,
			BufferRows:    1,
		},
		Gesture: GestureSection{
			LongPressMillis: 500,
			ScrollSlop:      10,
			DragSlop:        8,
		},
		Cache: CacheSection{
			MemoryCapacity:     128,
			Dir:                "~/.cache/mtgfetch/images",
			DiskMaxBytes:       256 << 20,
			DiskMaxEntries:     4096,
			EvictBatch:         64,
			EvictCheckSeconds:  60,
			FetchConcurrency:   4,
			FetchMinIntervalMs: 100,
			RetryCount:         2,
			RetryDelayMillis:   250,
			DedupPollMillis:    50,
			DedupMaxPolls:      40,
			UserAgent:          "mtgfetch/0.1",
			OriginURL:          "https://cards.scryfall.io",
		},
	}
}

// LongPressDelay returns the long-press delay as a duration.
func (g GestureSection) LongPressDelay() time.Duration {
	return time.Duration(g.LongPressMillis) * time.Millisecond
}

// Load reads and parses the config at path, falling back to defaults for
// a missing file or any unset field. Path may start with "~".
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	resolved, err := expandPath(path)
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.Cache.Dir = mustExpand(cfg.Cache.Dir)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.sanitize()
	cfg.Cache.Dir = mustExpand(cfg.Cache.Dir)
	return cfg, nil
}

// sanitize clamps nonsensical values back to their defaults so a partial
// or hand-edited file can never produce a degenerate grid or cache.
func (c *Config) sanitize() {
	def := DefaultConfig()
	if c.Grid.MinItemWidth <= 0 {
		c.Grid.MinItemWidth = def.Grid.MinItemWidth
	}
	if c.Grid.Spacing < 0 {
		c.Grid.Spacing = def.Grid.Spacing
	}
	if c.Grid.AspectRatio <= 0 {
		c.Grid.AspectRatio = def.Grid.AspectRatio
	}
	if c.Grid.BufferRows < 0 {
		c.Grid.BufferRows = def.Grid.BufferRows
	}
	if c.Gesture.LongPressMillis <= 0 {
		c.Gesture.LongPressMillis = def.Gesture.LongPressMillis
	}
	if c.Gesture.ScrollSlop <= 0 {
		c.Gesture.ScrollSlop = def.Gesture.ScrollSlop
	}
	if c.Gesture.DragSlop <= 0 || c.Gesture.DragSlop > c.Gesture.ScrollSlop {
		c.Gesture.DragSlop = def.Gesture.DragSlop
	}
	if c.Cache.MemoryCapacity <= 0 {
		c.Cache.MemoryCapacity = def.Cache.MemoryCapacity
	}
	if c.Cache.FetchConcurrency <= 0 {
		c.Cache.FetchConcurrency = def.Cache.FetchConcurrency
	}
	if c.Cache.EvictBatch <= 0 {
		c.Cache.EvictBatch = def.Cache.EvictBatch
	}
	if strings.TrimSpace(c.Cache.UserAgent) == "" {
		c.Cache.UserAgent = def.Cache.UserAgent
	}
	if strings.TrimSpace(c.Cache.Dir) == "" {
		c.Cache.Dir = def.Cache.Dir
	}
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
