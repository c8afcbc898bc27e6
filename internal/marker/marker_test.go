package marker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainsCompletionSignal(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"marker embedded in output", "work done...AFK_COMPLETE...bye", true},
		{"promise marker", "all stories pass\n<promise>COMPLETE</promise>", true},
		{"stop marker", "AFK_STOP", true},
		{"lowercase does not match", "afk_complete", false},
		{"partial marker does not match", "AFK", false},
		{"bare COMPLETE does not match", "COMPLETE", false},
		{"empty text", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainsCompletionSignal(tt.text, DefaultMarkers))
		})
	}
}

func TestContainsCompletionSignal_EmptyMarkerList(t *testing.T) {
	assert.False(t, ContainsCompletionSignal("AFK_COMPLETE", nil))
	assert.False(t, ContainsCompletionSignal("AFK_COMPLETE", []string{""}))
}

func TestDetector_SingleWrite(t *testing.T) {
	d := NewDetector(nil)

	n, err := d.Write([]byte("progress... AFK_COMPLETE done"))
	require.NoError(t, err)
	assert.Equal(t, 29, n)
	assert.True(t, d.Detected())
}

func TestDetector_MarkerSplitAcrossWrites(t *testing.T) {
	d := NewDetector(nil)

	_, _ = d.Write([]byte("almost there AFK_CO"))
	assert.False(t, d.Detected())

	_, _ = d.Write([]byte("MPLETE"))
	assert.True(t, d.Detected())
}

func TestDetector_MarkerSplitBytePerByte(t *testing.T) {
	d := NewDetector([]string{"AFK_COMPLETE"})

	for _, b := range []byte("xxAFK_COMPLETExx") {
		_, _ = d.Write([]byte{b})
	}
	assert.True(t, d.Detected())
}

func TestDetector_NoMarker(t *testing.T) {
	d := NewDetector(nil)

	_, _ = d.Write([]byte("just normal output"))
	_, _ = d.Write([]byte("more output, still working"))
	assert.False(t, d.Detected())
}

func TestDetector_CaseSensitive(t *testing.T) {
	d := NewDetector(nil)

	_, _ = d.Write([]byte("afk_complete"))
	assert.False(t, d.Detected())
}

func TestDetector_StaysDetected(t *testing.T) {
	d := NewDetector(nil)

	_, _ = d.Write([]byte("AFK_STOP"))
	require.True(t, d.Detected())

	_, _ = d.Write([]byte("trailing output"))
	assert.True(t, d.Detected())
}

func TestDetector_Reset(t *testing.T) {
	d := NewDetector(nil)

	_, _ = d.Write([]byte("AFK_COMPLETE"))
	require.True(t, d.Detected())

	d.Reset()
	assert.False(t, d.Detected())

	// Tail state is cleared too: the second half alone must not match.
	_, _ = d.Write([]byte("MPLETE"))
	assert.False(t, d.Detected())
}

func TestDetector_CustomMarkers(t *testing.T) {
	d := NewDetector([]string{"DONE_SIGNAL"})

	_, _ = d.Write([]byte("AFK_COMPLETE"))
	assert.False(t, d.Detected())

	_, _ = d.Write([]byte("DONE_SIGNAL"))
	assert.True(t, d.Detected())
}
