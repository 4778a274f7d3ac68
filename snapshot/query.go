package snapshot

import (
	"fmt"
	"sort"

	"github.com/adamlouis/camcap"
)

// Formats lists what a device can capture. *camcap.Session satisfies it.
type Formats interface {
	SupportedFormats() map[camcap.PixelFormat]string
	SupportedFrameSizes(f camcap.PixelFormat) []camcap.FrameSize
}

// Query returns a map of the supported formats and resolutions. Stepwise
// ranges are reported in their bracketed form.
func Query(d Formats) map[string][]string {
	m := map[string][]string{}
	for f, desc := range d.SupportedFormats() {
		r := []string{}
		for _, value := range d.SupportedFrameSizes(f) {
			r = append(r, value.GetString())
		}
		m[fmt.Sprintf("%s (%s)", desc, f)] = r
	}
	return m
}

// ControlRange describes one control for query output.
type ControlRange struct {
	Name    string
	Value   int32
	Default int32
	Minimum int32
	Maximum int32
}

// QueryControls reads the known controls the device supports, in table
// order.
func QueryControls(p *camcap.ControlPort) []ControlRange {
	var out []ControlRange
	for _, k := range camcap.KnownControls {
		info, err := p.Query(k.ID)
		if err != nil {
			continue
		}
		v, err := p.Get(k.ID)
		if err != nil {
			continue
		}
		out = append(out, ControlRange{Name: k.Name, Value: v, Default: info.Default, Minimum: info.Minimum, Maximum: info.Maximum})
	}
	return out
}

// SortedKeys returns the keys of a Query result in order.
func SortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
