// Package marker detects completion markers in streamed agent output.
package marker

import "strings"

// DefaultMarkers is the default set of literal completion markers.
// Matching is case-sensitive.
var DefaultMarkers = []string{
	"<promise>COMPLETE</promise>",
	"AFK_COMPLETE",
	"AFK_STOP",
}

// ContainsCompletionSignal reports whether text contains any of the given
// markers. An empty marker list never matches.
func ContainsCompletionSignal(text string, markers []string) bool {
	if text == "" {
		return false
	}
	for _, m := range markers {
		if m != "" && strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// Detector scans an output stream for completion markers. It buffers a
// rolling tail across writes so a marker split between stream reads is
// still detected; callers never need to align writes to line boundaries.
//
// Detector implements io.Writer and never returns an error, so it can sit
// inside an io.MultiWriter on the subprocess stdout path.
type Detector struct {
	markers  []string
	tailSize int
	tail     []byte
	detected bool
}

// NewDetector creates a Detector for the given markers. A nil or empty
// list falls back to DefaultMarkers.
func NewDetector(markers []string) *Detector {
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	longest := 0
	for _, m := range markers {
		if len(m) > longest {
			longest = len(m)
		}
	}
	tailSize := 0
	if longest > 1 {
		tailSize = longest - 1
	}
	return &Detector{markers: markers, tailSize: tailSize}
}

// Write scans the chunk (together with the retained tail of the previous
// write) for markers. It always reports the full chunk as written.
func (d *Detector) Write(p []byte) (int, error) {
	if d.detected {
		return len(p), nil
	}

	window := append(append([]byte{}, d.tail...), p...)
	if ContainsCompletionSignal(string(window), d.markers) {
		d.detected = true
		d.tail = nil
		return len(p), nil
	}

	if len(window) > d.tailSize {
		window = window[len(window)-d.tailSize:]
	}
	d.tail = window
	return len(p), nil
}

// Detected reports whether a completion marker has been seen so far.
func (d *Detector) Detected() bool {
	return d.detected
}

// Reset clears the detector state for reuse in a new iteration.
func (d *Detector) Reset() {
	d.detected = false
	d.tail = nil
}
