package snapshot

import (
	"fmt"
	"strings"
	"time"

	"github.com/adamlouis/camcap"
)

// Naming selects how output files are named.
type Naming string

const (
	// NamingAuto numbers the files when shooting at an interval and uses
	// timestamps otherwise.
	NamingAuto      Naming = "auto"
	NamingFixed     Naming = "fixed"
	NamingSequence  Naming = "sequence"
	NamingTimestamp Naming = "timestamp"
)

func ParseNaming(s string) (Naming, error) {
	switch n := Naming(strings.ToLower(s)); n {
	case NamingAuto, NamingFixed, NamingSequence, NamingTimestamp:
		return n, nil
	case "":
		return NamingAuto, nil
	}
	return "", fmt.Errorf("unknown naming policy %q", s)
}

// Extension returns the file extension for an output format.
func Extension(f camcap.OutputFormat) string {
	switch f {
	case camcap.OutputYUYV:
		return ".yuv"
	case camcap.OutputBMP:
		return ".bmp"
	}
	return ".jpg"
}

// Namer produces output file names from a prefix, which may include a
// directory.
type Namer struct {
	Policy   Naming
	Prefix   string
	Interval bool // shots are taken at an interval

	now func() time.Time
}

func NewNamer(policy Naming, prefix string, interval bool) *Namer {
	return &Namer{Policy: policy, Prefix: prefix, Interval: interval, now: time.Now}
}

// Name returns the file name for shot number seq.
func (n *Namer) Name(seq int, ext string) string {
	policy := n.Policy
	if policy == NamingAuto || policy == "" {
		policy = NamingTimestamp
		if n.Interval {
			policy = NamingSequence
		}
	}
	switch policy {
	case NamingFixed:
		return n.Prefix + ext
	case NamingSequence:
		return fmt.Sprintf("%s_%d%s", n.Prefix, seq, ext)
	}
	stamp := strings.Replace(n.now().Format("20060102_150405.000"), ".", "_", 1)
	if seq > 0 {
		// Shots in a burst can share a millisecond.
		stamp = fmt.Sprintf("%s_%d", stamp, seq)
	}
	return fmt.Sprintf("%s_%s%s", n.Prefix, stamp, ext)
}
