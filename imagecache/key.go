package imagecache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SizeVariant selects which rendition of a card image to fetch and cache.
// Each variant caches independently; a small thumbnail and a full-size
// scan of the same card are distinct entries.
type SizeVariant uint8

const (
	VariantSmall SizeVariant = iota
	VariantNormal
	VariantLarge
)

// String returns the origin's name for the variant.
func (v SizeVariant) String() string {
	switch v {
	case VariantSmall:
		return "small"
	case VariantLarge:
		return "large"
	default:
		return "normal"
	}
}

// TargetWidth is the pixel width decoded images are downscaled to.
// Zero means keep the origin's native size.
func (v SizeVariant) TargetWidth() int {
	switch v {
	case VariantSmall:
		return 146
	case VariantLarge:
		return 672
	default:
		return 488
	}
}

// Face distinguishes the two sides of double-faced cards.
type Face uint8

const (
	FaceFront Face = iota
	FaceBack
)

// Key is the logical identity of one cached image: which card, which
// rendition, which face. Keys are values; two keys with the same fields
// are the same cache entry everywhere (memory map, pending set, disk).
type Key struct {
	ID      string
	Variant SizeVariant
	Face    Face
}

// Digest returns the deterministic content address for the key, used as
// the disk filename. sha256 keeps arbitrary card IDs filesystem-safe.
func (k Key) Digest() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", k.ID, k.Variant, k.Face)))
	return hex.EncodeToString(sum[:])
}

// String implements fmt.Stringer for log output.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/face%d", k.ID, k.Variant, k.Face)
}
