package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name string
		args string
		want Options
	}{
		{"empty", "", Options{}},
		{"pairs", "-f mpegts -codec:v libx264 -crf 18", Options{"f": "mpegts", "codec:v": "libx264", "crf": "18"}},
		{"flag without value", "-an -f null", Options{"an": "", "f": "null"}},
		{"negative number", "-itsoffset -1 -g 50", Options{"itsoffset": "-1", "g": "50"}},
		{"filter value", "-filter:v scale=1280:-2,fps=25", Options{"filter:v": "scale=1280:-2,fps=25"}},
		{"trailing flag", "-codec:a aac -y", Options{"codec:a": "aac", "y": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseArgs(tt.args))
		})
	}
}

func TestOptionsPartition(t *testing.T) {
	o := Options{"codec:v": "libx264", "b:v": "5M", "codec:a": "aac", "f": "mp4", ":v": "x"}
	video, rest := o.Partition(":v")
	assert.Equal(t, Options{"codec": "libx264", "b": "5M"}, video)
	assert.Equal(t, Options{"codec:a": "aac", "f": "mp4", ":v": "x"}, rest)
}

func TestOptionsHelpers(t *testing.T) {
	o := Options{"a": "1", "b": "x"}

	assert.Equal(t, Options{"b": "x"}, o.Without("a", "missing"))
	assert.Equal(t, Options{"a": "2", "b": "x", "c": ""}, o.Merge(Options{"a": "2", "c": ""}))
	assert.Equal(t, Options{"a:v": "1", "b:v": "x"}, o.WithSuffix(":v"))
	assert.Equal(t, Options{"a": "1", "b": "x"}, o, "helpers must not mutate the receiver")

	assert.Equal(t, 1, o.Int("a", 9))
	assert.Equal(t, 9, o.Int("b", 9))
	assert.Equal(t, 9, o.Int("c", 9))

	assert.Equal(t, []string{"a", "b"}, o.Keys())
	assert.Equal(t, "-a 1 -b x -y", o.Merge(Options{"y": ""}).String())

	var nilOpts Options
	assert.NotNil(t, nilOpts.Clone())
}
