package media

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// LinkParams describe the frames flowing over a filter link.
type LinkParams struct {
	MediaType MediaType
	TimeBase  Rational

	Width             int
	Height            int
	PixelFormat       PixelFormat
	SampleAspectRatio Rational
	FrameRate         Rational

	SampleRate    int
	SampleFormat  SampleFormat
	ChannelLayout ChannelLayout
}

// BufferArgs formats the parameters as buffer/abuffer source arguments.
func (p LinkParams) BufferArgs() string {
	if p.MediaType == MediaTypeAudio {
		return fmt.Sprintf("time_base=%s:sample_rate=%d:sample_fmt=%s:channel_layout=%s",
			p.TimeBase, p.SampleRate, p.SampleFormat, p.ChannelLayout)
	}
	s := fmt.Sprintf("video_size=%dx%d:pix_fmt=%d:time_base=%s:sar=%s",
		p.Width, p.Height, p.PixelFormat, p.TimeBase, p.SampleAspectRatio)
	if !p.FrameRate.IsZero() {
		s += ":frame_rate=" + p.FrameRate.String()
	}
	return s
}

// SinkConstraints restrict what the graph may deliver to the encoder.
// Empty lists accept anything.
type SinkConstraints struct {
	PixelFormats   []PixelFormat
	SampleFormats  []SampleFormat
	ChannelLayouts []ChannelLayout
	SampleRates    []int
}

// constraintFilter returns the format/aformat stage enforcing c, or "".
func (c SinkConstraints) constraintFilter(mt MediaType) string {
	join := func(n int, f func(int) string) string {
		parts := make([]string, n)
		for i := range parts {
			parts[i] = f(i)
		}
		return strings.Join(parts, "|")
	}
	if mt == MediaTypeVideo {
		if len(c.PixelFormats) == 0 {
			return ""
		}
		return "format=pix_fmts=" + join(len(c.PixelFormats), func(i int) string { return c.PixelFormats[i].String() })
	}
	var args []string
	if len(c.SampleFormats) > 0 {
		args = append(args, "sample_fmts="+join(len(c.SampleFormats), func(i int) string { return c.SampleFormats[i].String() }))
	}
	if len(c.ChannelLayouts) > 0 {
		args = append(args, "channel_layouts="+join(len(c.ChannelLayouts), func(i int) string { return c.ChannelLayouts[i].String() }))
	}
	if len(c.SampleRates) > 0 {
		args = append(args, "sample_rates="+join(len(c.SampleRates), func(i int) string { return strconv.Itoa(c.SampleRates[i]) }))
	}
	if len(args) == 0 {
		return ""
	}
	return "aformat=" + strings.Join(args, ":")
}

// FilterGraph is a configured single-input single-output filter graph.
type FilterGraph interface {
	// AddSource creates the buffer source feeding the graph input.
	AddSource(params LinkParams) error
	// AddSink creates the buffer sink behind the graph output.
	AddSink(mt MediaType, c SinkConstraints) error
	// Configure links and validates the graph.
	Configure() error
	// Output describes the frames delivered by Pull.
	Output() LinkParams
	Push(f *Frame) error
	// PushEOF closes the source at pts.
	PushEOF(pts int64) error
	// Pull returns ErrAgain when no frame is ready and io.EOF once drained.
	Pull() (*Frame, error)
	Close() error
	Provider() Provider
}

// FilterInfo describes the pads of a filter.
type FilterInfo struct {
	Name    string
	Inputs  []MediaType
	Outputs []MediaType
	// Pads overrides Inputs/Outputs for filters whose pad count depends
	// on their arguments.
	Pads func(args string) (in, out []MediaType)
}

func (fi FilterInfo) pads(args string) (in, out []MediaType) {
	if fi.Pads != nil {
		return fi.Pads(args)
	}
	return fi.Inputs, fi.Outputs
}

type filterGraphFactory func(desc *FilterGraphDesc) (FilterGraph, error)

var filterRegistry = struct {
	mu     sync.RWMutex
	info   map[string]FilterInfo
	native func(name string) (FilterInfo, bool)
	graphs map[Provider]filterGraphFactory
}{
	info:   make(map[string]FilterInfo),
	graphs: make(map[Provider]filterGraphFactory),
}

func registerFilterInfo(fi FilterInfo) {
	filterRegistry.mu.Lock()
	defer filterRegistry.mu.Unlock()
	filterRegistry.info[fi.Name] = fi
}

func registerFilterGraph(p Provider, f filterGraphFactory) {
	filterRegistry.mu.Lock()
	defer filterRegistry.mu.Unlock()
	filterRegistry.graphs[p] = f
}

func lookupFilter(name string) (FilterInfo, bool) {
	filterRegistry.mu.RLock()
	defer filterRegistry.mu.RUnlock()
	if filterRegistry.native != nil && ProviderFFmpeg.Available() {
		if fi, ok := filterRegistry.native(name); ok {
			return fi, true
		}
	}
	fi, ok := filterRegistry.info[name]
	return fi, ok
}

func countPads(mt MediaType, key string, def int) func(string) ([]MediaType, []MediaType) {
	return func(args string) ([]MediaType, []MediaType) {
		n := argInt(args, key, 0, def)
		pads := make([]MediaType, n)
		for i := range pads {
			pads[i] = mt
		}
		if key == "outputs" {
			return []MediaType{mt}, pads
		}
		return pads, []MediaType{mt}
	}
}

func init() {
	v, a := []MediaType{MediaTypeVideo}, []MediaType{MediaTypeAudio}
	for _, name := range []string{"null", "copy", "format", "scale", "hflip", "vflip", "setsar", "setdar",
		"fps", "yadif", "bwdif", "crop", "pad", "transpose", "fieldorder", "setfield", "drawbox", "colorspace"} {
		registerFilterInfo(FilterInfo{Name: name, Inputs: v, Outputs: v})
	}
	for _, name := range []string{"anull", "acopy", "aformat", "volume", "aresample", "asetnsamples", "pan",
		"loudnorm", "highpass", "lowpass", "atempo"} {
		registerFilterInfo(FilterInfo{Name: name, Inputs: a, Outputs: a})
	}
	registerFilterInfo(FilterInfo{Name: "overlay", Inputs: []MediaType{MediaTypeVideo, MediaTypeVideo}, Outputs: v})
	registerFilterInfo(FilterInfo{Name: "split", Pads: countPads(MediaTypeVideo, "outputs", 2)})
	registerFilterInfo(FilterInfo{Name: "asplit", Pads: countPads(MediaTypeAudio, "outputs", 2)})
	registerFilterInfo(FilterInfo{Name: "amix", Pads: countPads(MediaTypeAudio, "inputs", 2)})
	registerFilterInfo(FilterInfo{Name: "hstack", Pads: countPads(MediaTypeVideo, "inputs", 2)})
	registerFilterInfo(FilterInfo{Name: "vstack", Pads: countPads(MediaTypeVideo, "inputs", 2)})
}

// argInt reads an integer argument given either as key=value or as the
// positional argument at index pos.
func argInt(args, key string, pos, def int) int {
	v, ok := filterArg(args, key, pos)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// filterArg returns the value of key in a ':'-separated argument list,
// falling back to the positional argument at pos.
func filterArg(args, key string, pos int) (string, bool) {
	if args == "" {
		return "", false
	}
	parts := splitUnescaped(args, ':')
	for _, p := range parts {
		if k, v, ok := strings.Cut(p, "="); ok && k == key {
			return v, true
		}
	}
	if pos >= 0 && pos < len(parts) && !strings.Contains(parts[pos], "=") {
		return parts[pos], true
	}
	return "", false
}

func splitUnescaped(s string, sep byte) []string {
	var parts []string
	var cur strings.Builder
	quoted := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i++
			cur.WriteByte(s[i])
		case c == '\'':
			quoted = !quoted
		case c == sep && !quoted:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	return append(parts, cur.String())
}

// FilterNode is one filter instance of a parsed graph.
type FilterNode struct {
	Name      string
	Args      string
	InLabels  []string
	OutLabels []string
}

func (n FilterNode) String() string {
	var b strings.Builder
	for _, l := range n.InLabels {
		b.WriteString("[" + l + "]")
	}
	b.WriteString(n.Name)
	if n.Args != "" {
		b.WriteString("=" + n.Args)
	}
	for _, l := range n.OutLabels {
		b.WriteString("[" + l + "]")
	}
	return b.String()
}

// FilterPad is an unconnected pad of a parsed graph.
type FilterPad struct {
	Label     string
	MediaType MediaType
	Chain     int
	Node      int
	Index     int
}

// FilterGraphDesc is a parsed filter graph description.
type FilterGraphDesc struct {
	Spec    string
	Chains  [][]FilterNode
	Inputs  []FilterPad
	Outputs []FilterPad
}

// Linear reports whether the graph is a single chain of one-in one-out
// filters.
func (d *FilterGraphDesc) Linear() bool {
	if len(d.Chains) != 1 {
		return false
	}
	for _, n := range d.Chains[0] {
		fi, _ := lookupFilter(n.Name)
		in, out := fi.pads(n.Args)
		if len(in) != 1 || len(out) != 1 {
			return false
		}
	}
	return true
}

// String serializes the graph.
func (d *FilterGraphDesc) String() string {
	chains := make([]string, len(d.Chains))
	for i, c := range d.Chains {
		nodes := make([]string, len(c))
		for j, n := range c {
			nodes[j] = n.String()
		}
		chains[i] = strings.Join(nodes, ",")
	}
	return strings.Join(chains, ";")
}

// Labels used to attach a graph to its source and sink.
const (
	sourceLabel = "in"
	sinkLabel   = "out"
	graphOutput = "graph_out"
)

// Attach returns the graph text with its single open input labelled
// [in] and its single open output routed through the constraint stage
// into [out].
func (d *FilterGraphDesc) Attach(constraint string) (string, error) {
	if len(d.Inputs) != 1 || len(d.Outputs) != 1 {
		return "", fmt.Errorf("%w: %w: graph has %d inputs and %d outputs", ErrConfig, ErrFilterGraph, len(d.Inputs), len(d.Outputs))
	}
	chains := make([][]FilterNode, len(d.Chains))
	for i, c := range d.Chains {
		chains[i] = append([]FilterNode(nil), c...)
	}

	in, out := d.Inputs[0], d.Outputs[0]
	inNode := &chains[in.Chain][in.Node]
	renameOrAdd(&inNode.InLabels, in.Label, sourceLabel)
	outNode := &chains[out.Chain][out.Node]
	renameOrAdd(&outNode.OutLabels, out.Label, graphOutput)

	text := (&FilterGraphDesc{Chains: chains}).String()
	if constraint == "" {
		constraint = "null"
		if out.MediaType == MediaTypeAudio {
			constraint = "anull"
		}
	}
	return text + ";[" + graphOutput + "]" + constraint + "[" + sinkLabel + "]", nil
}

func renameOrAdd(labels *[]string, old, name string) {
	if old != "" {
		for i, l := range *labels {
			if l == old {
				(*labels)[i] = name
				return
			}
		}
	}
	*labels = append(*labels, name)
}

// ParseFilterGraph parses FFmpeg filtergraph syntax and resolves its open
// pads. Unknown filters fail with ErrFilterNotFound.
func ParseFilterGraph(spec string) (*FilterGraphDesc, error) {
	p := &graphParser{s: spec}
	desc := &FilterGraphDesc{Spec: spec}

	for {
		chain, err := p.chain()
		if err != nil {
			return nil, fmt.Errorf("%w: %w: %q: %w", ErrConfig, ErrFilterGraph, spec, err)
		}
		desc.Chains = append(desc.Chains, chain)
		p.skipSpace()
		if p.done() {
			break
		}
		if p.s[p.i] != ';' {
			return nil, fmt.Errorf("%w: %w: %q: unexpected %q at %d", ErrConfig, ErrFilterGraph, spec, p.s[p.i], p.i)
		}
		p.i++
	}

	if err := desc.resolvePads(); err != nil {
		return nil, err
	}
	return desc, nil
}

func (d *FilterGraphDesc) resolvePads() error {
	var openIn, openOut []FilterPad
	take := func(pads *[]FilterPad, label string) (FilterPad, bool) {
		for i, p := range *pads {
			if p.Label == label {
				*pads = append((*pads)[:i], (*pads)[i+1:]...)
				return p, true
			}
		}
		return FilterPad{}, false
	}

	for ci, chain := range d.Chains {
		var pending []FilterPad // unlabeled outputs of the previous filter
		for ni, n := range chain {
			fi, ok := lookupFilter(n.Name)
			if !ok {
				return fmt.Errorf("%w: %w: %q", ErrConfig, ErrFilterNotFound, n.Name)
			}
			ins, outs := fi.pads(n.Args)
			if len(n.InLabels) > len(ins) {
				return fmt.Errorf("%w: %w: %s has %d inputs, %d labels given", ErrConfig, ErrFilterGraph, n.Name, len(ins), len(n.InLabels))
			}
			if len(n.OutLabels) > len(outs) {
				return fmt.Errorf("%w: %w: %s has %d outputs, %d labels given", ErrConfig, ErrFilterGraph, n.Name, len(outs), len(n.OutLabels))
			}

			for i, mt := range ins {
				switch {
				case i < len(n.InLabels):
					label := n.InLabels[i]
					if src, ok := take(&openOut, label); ok {
						if src.MediaType != mt {
							return fmt.Errorf("%w: %w: [%s] is %s, %s expects %s", ErrConfig, ErrMediaType, label, src.MediaType, n.Name, mt)
						}
						continue
					}
					openIn = append(openIn, FilterPad{Label: label, MediaType: mt, Chain: ci, Node: ni, Index: i})
				case len(pending) > 0:
					src := pending[0]
					pending = pending[1:]
					if src.MediaType != mt {
						return fmt.Errorf("%w: %w: cannot link %s output to %s input of %s", ErrConfig, ErrMediaType, src.MediaType, mt, n.Name)
					}
				default:
					openIn = append(openIn, FilterPad{MediaType: mt, Chain: ci, Node: ni, Index: i})
				}
			}
			// Outputs the next filter did not consume stay open.
			openOut = append(openOut, pending...)
			pending = nil

			for i, mt := range outs {
				pad := FilterPad{MediaType: mt, Chain: ci, Node: ni, Index: i}
				if i < len(n.OutLabels) {
					label := n.OutLabels[i]
					if dst, ok := take(&openIn, label); ok {
						if dst.MediaType != mt {
							return fmt.Errorf("%w: %w: [%s] is %s, consumer expects %s", ErrConfig, ErrMediaType, label, mt, dst.MediaType)
						}
						continue
					}
					pad.Label = label
					openOut = append(openOut, pad)
					continue
				}
				pending = append(pending, pad)
			}
		}
		openOut = append(openOut, pending...)
	}
	d.Inputs, d.Outputs = openIn, openOut
	return nil
}

type graphParser struct {
	s string
	i int
}

func (p *graphParser) done() bool { return p.i >= len(p.s) }

func (p *graphParser) skipSpace() {
	for !p.done() && strings.IndexByte(" \t\r\n", p.s[p.i]) >= 0 {
		p.i++
	}
}

func (p *graphParser) chain() ([]FilterNode, error) {
	var chain []FilterNode
	for {
		n, err := p.filter()
		if err != nil {
			return nil, err
		}
		chain = append(chain, n)
		p.skipSpace()
		if p.done() || p.s[p.i] != ',' {
			return chain, nil
		}
		p.i++
	}
}

func (p *graphParser) labels() ([]string, error) {
	var out []string
	for {
		p.skipSpace()
		if p.done() || p.s[p.i] != '[' {
			return out, nil
		}
		end := strings.IndexByte(p.s[p.i:], ']')
		if end < 0 {
			return nil, fmt.Errorf("unterminated label at %d", p.i)
		}
		label := p.s[p.i+1 : p.i+end]
		if label == "" {
			return nil, fmt.Errorf("empty label at %d", p.i)
		}
		out = append(out, label)
		p.i += end + 1
	}
}

func (p *graphParser) filter() (FilterNode, error) {
	var n FilterNode
	var err error
	if n.InLabels, err = p.labels(); err != nil {
		return n, err
	}
	p.skipSpace()
	start := p.i
	for !p.done() && strings.IndexByte("=,;[ \t\r\n", p.s[p.i]) < 0 {
		p.i++
	}
	n.Name = p.s[start:p.i]
	if n.Name == "" {
		return n, fmt.Errorf("missing filter name at %d", start)
	}
	if !p.done() && p.s[p.i] == '=' {
		p.i++
		start = p.i
		quoted := false
	args:
		for !p.done() {
			switch c := p.s[p.i]; {
			case c == '\\':
				p.i++
			case c == '\'':
				quoted = !quoted
			case !quoted && strings.IndexByte(",;[", c) >= 0:
				break args
			}
			p.i++
		}
		n.Args = strings.TrimSpace(p.s[start:min(p.i, len(p.s))])
	}
	if n.OutLabels, err = p.labels(); err != nil {
		return n, err
	}
	return n, nil
}

// NewFilterGraph returns a graph implementation able to run desc, trying
// providers best first.
func NewFilterGraph(desc *FilterGraphDesc) (FilterGraph, error) {
	filterRegistry.mu.RLock()
	defer filterRegistry.mu.RUnlock()

	var errs []string
	for _, p := range ProvidersWith(FeatureFilterGraph) {
		f, ok := filterRegistry.graphs[p]
		if !ok {
			continue
		}
		g, err := f(desc)
		if err == nil {
			return g, nil
		}
		errs = append(errs, p.String()+": "+err.Error())
	}
	return nil, fmt.Errorf("%w: %w: %q: %s", ErrConfig, ErrFilterGraph, desc.Spec, strings.Join(errs, "; "))
}
