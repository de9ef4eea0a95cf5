package media

import (
	"cmp"
	"slices"
	"sync/atomic"
)

// Provider identifies the implementation behind a codec, filter graph,
// color converter or muxer.
type Provider uint8

const (
	ProviderAuto    Provider = iota // Let library choose best available
	ProviderGo                      // Pure Go, always available
	ProviderFFmpeg                  // libav* through go-astiav (cgo)
	ProviderSwscale                 // libswscale loaded at runtime (purego)
	providerCount
)

// License represents the software license of a provider.
type License uint8

const (
	LicenseLGPL License = iota // Weak copyleft, dynamic linking is fine
	LicenseGPL                 // Copyleft - requires source disclosure
	LicenseBSD                 // Permissive - no copyleft obligations
)

// Permissive returns true if the license has no copyleft obligations.
func (l License) Permissive() bool { return l == LicenseBSD }

func (l License) String() string {
	switch l {
	case LicenseLGPL:
		return "LGPL"
	case LicenseGPL:
		return "GPL"
	case LicenseBSD:
		return "BSD"
	default:
		return "unknown"
	}
}

// Features is a bitmask of provider capabilities.
type Features uint32

const (
	FeatureDecode       Features = 1 << iota // Video decoding
	FeatureEncode                            // Audio/video encoding
	FeatureFilterGraph                       // Arbitrary filter graphs
	FeatureColorConvert                      // Pixel format conversion
	FeatureMux                               // Container muxing
)

// Has returns true if all specified features are supported.
func (f Features) Has(feature Features) bool { return f&feature == feature }

// providerMeta contains static metadata about a provider.
type providerMeta struct {
	Name     string
	License  License
	Priority int // higher wins when ProviderAuto resolves
	Features Features
}

// Static metadata table - indexed by Provider, zero allocations.
var providerInfo = [providerCount]providerMeta{
	ProviderAuto:    {"auto", LicenseBSD, 0, 0},
	ProviderGo:      {"go", LicenseBSD, 1, FeatureDecode | FeatureEncode | FeatureFilterGraph | FeatureColorConvert | FeatureMux},
	ProviderFFmpeg:  {"ffmpeg", LicenseLGPL, 3, FeatureDecode | FeatureEncode | FeatureFilterGraph | FeatureColorConvert | FeatureMux},
	ProviderSwscale: {"swscale", LicenseLGPL, 2, FeatureColorConvert},
}

// Runtime availability - set by init() in provider implementations.
var providerAvailable [providerCount]atomic.Bool

func init() {
	setProviderAvailable(ProviderGo)
}

// String returns the provider name.
func (p Provider) String() string {
	if p >= providerCount {
		return "unknown"
	}
	return providerInfo[p].Name
}

// License returns the provider's license type.
func (p Provider) License() License {
	if p >= providerCount {
		return LicenseGPL
	}
	return providerInfo[p].License
}

// Features returns the provider's feature bitmask.
func (p Provider) Features() Features {
	if p >= providerCount {
		return 0
	}
	return providerInfo[p].Features
}

// Available returns true if the provider is usable at runtime.
func (p Provider) Available() bool {
	if p >= providerCount {
		return false
	}
	return providerAvailable[p].Load()
}

// preferred reports whether p should replace current as a default.
func (p Provider) preferred(current Provider) bool {
	if p >= providerCount || current >= providerCount {
		return false
	}
	return providerInfo[p].Priority > providerInfo[current].Priority
}

// setProviderAvailable marks a provider as available (called by implementations).
func setProviderAvailable(p Provider) {
	if p < providerCount {
		providerAvailable[p].Store(true)
	}
}

// ProvidersWith returns the available providers supporting all of f, best first.
func ProvidersWith(f Features) []Provider {
	var out []Provider
	for p := providerCount - 1; p > ProviderAuto; p-- {
		if p.Available() && p.Features().Has(f) {
			out = append(out, p)
		}
	}
	slices.SortStableFunc(out, func(a, b Provider) int {
		return cmp.Compare(providerInfo[b].Priority, providerInfo[a].Priority)
	})
	return out
}
