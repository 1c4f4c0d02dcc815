package storage

import "strings"

// ResourceKind is the coarse category a blob was stored under. Destroying a
// blob requires the kind it was stored with; a mismatched kind yields
// ErrWrongResourceKind and the caller may retry with the next candidate.
type ResourceKind string

const (
	KindRaw    ResourceKind = "raw"
	KindImage  ResourceKind = "image"
	KindVideo  ResourceKind = "video"
	KindScript ResourceKind = "script"
	KindStyle  ResourceKind = "style"
)

// fallbackKinds is the fixed order tried after the declared kind.
var fallbackKinds = []ResourceKind{KindRaw, KindImage, KindVideo, KindScript, KindStyle}

// KindForMime maps a MIME type to the kind a blob of that type is stored
// under. Unknown and empty types map to raw.
func KindForMime(mimeType string) ResourceKind {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(m, "image/"):
		return KindImage
	case strings.HasPrefix(m, "video/"):
		return KindVideo
	case strings.Contains(m, "javascript"):
		return KindScript
	case strings.Contains(m, "css"):
		return KindStyle
	default:
		return KindRaw
	}
}

// KindChain returns the ordered list of kinds to try when destroying a blob:
// the declared kind first (falling back to the MIME-derived kind when no kind
// was recorded), then the remaining kinds in fixed order, without duplicates.
func KindChain(declared ResourceKind, mimeType string) []ResourceKind {
	first := declared
	if first == "" {
		first = KindForMime(mimeType)
	}
	chain := make([]ResourceKind, 0, len(fallbackKinds)+1)
	chain = append(chain, first)
	for _, kind := range fallbackKinds {
		if kind != first {
			chain = append(chain, kind)
		}
	}
	return chain
}
