package media

import (
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Options is a flat string-keyed option map, as passed to encoders and
// muxers. Values are never mutated in place; every helper returns a copy.
type Options map[string]string

// argPattern matches "-name" optionally followed by a value. A value may
// not start with '-' unless it is a negative number.
var argPattern = regexp.MustCompile(`-([^-\s]+)(?:\s+((?:-\d|[^-\s])\S*))?`)

// ParseArgs parses an ffmpeg-style argument string such as
// "-f mpegts -codec:v libx264 -crf 18" into Options. Flags without a value
// map to the empty string.
func ParseArgs(args string) Options {
	opts := Options{}
	for _, m := range argPattern.FindAllStringSubmatch(args, -1) {
		opts[m[1]] = m[2]
	}
	return opts
}

// Clone returns a copy of o.
func (o Options) Clone() Options {
	if o == nil {
		return Options{}
	}
	return maps.Clone(o)
}

// Partition splits o into the options whose key ends with suffix (with the
// suffix removed) and the remainder.
func (o Options) Partition(suffix string) (matched, rest Options) {
	matched, rest = Options{}, Options{}
	for k, v := range o {
		if name, ok := strings.CutSuffix(k, suffix); ok && name != "" {
			matched[name] = v
		} else {
			rest[k] = v
		}
	}
	return matched, rest
}

// Without returns o minus keys.
func (o Options) Without(keys ...string) Options {
	out := o.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Merge returns o with every entry of other added, other winning.
func (o Options) Merge(other Options) Options {
	out := o.Clone()
	maps.Copy(out, other)
	return out
}

// WithSuffix returns o with suffix appended to every key.
func (o Options) WithSuffix(suffix string) Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k+suffix] = v
	}
	return out
}

// Keys returns the sorted keys.
func (o Options) Keys() []string {
	return slices.Sorted(maps.Keys(o))
}

// Int returns the integer value of key, or def when absent or invalid.
func (o Options) Int(key string, def int) int {
	v, ok := o[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (o Options) String() string {
	var b strings.Builder
	for i, k := range o.Keys() {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("-" + k)
		if v := o[k]; v != "" {
			b.WriteString(" " + v)
		}
	}
	return b.String()
}
