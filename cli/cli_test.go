package cli

import (
	"strings"
	"testing"

	"github.com/amp-labs/statechart/event"
	"github.com/amp-labs/statechart/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBanner(t *testing.T) {
	t.Parallel()

	got := Banner("scexec\nturnstile", 12, AlignCenter)

	assert.Equal(t, strings.Join([]string{
		"╒══════════╕",
		"│  scexec  │",
		"│turnstile │",
		"└──────────┘",
	}, "\n"), got)

	assert.Empty(t, Banner("x", 2, AlignLeft))
	assert.Empty(t, Banner("x", 10, 7))
}

func TestPad(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text      string
		width     int
		alignment int
		want      string
	}{
		{"ab", 4, AlignLeft, "ab  "},
		{"ab", 4, AlignRight, "  ab"},
		{"ab", 5, AlignCenter, " ab  "},
		{"abcd", 4, AlignCenter, "abcd"},
		{"abcdef", 4, AlignLeft, "abc…"},
		{"héllo wörld", 6, AlignLeft, "héllo…"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, pad(tt.text, tt.width, tt.alignment), tt.text)
	}
}

func TestDivider(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "┠───┨\n", Divider(5))
	assert.Equal(t, "┠┨\n", Divider(0))
}

func TestParseDimensions(t *testing.T) {
	t.Parallel()

	rows, cols, err := parse("24 80\n")
	require.NoError(t, err)
	assert.Equal(t, uint(24), rows)
	assert.Equal(t, uint(80), cols)

	_, _, err = parse("garbage")
	require.Error(t, err)
}

func TestReport(t *testing.T) {
	t.Parallel()

	got := Report(
		[]model.LogEntry{{Label: "entered", Value: "1", HasValue: true}, {Label: "marker"}},
		[]event.Event{event.Internal("done", nil)},
		[]event.Event{{Name: "tick", Type: event.TypeExternal, SendID: "s1", Data: map[string]any{"n": 1}}},
	)

	assert.Equal(t, "log (2)\n  entered: 1\n  marker\n"+
		"internal events (1)\n  done [internal]\n"+
		"external events (1)\n  tick [external] id=s1 data=map[n:1]\n", got)
}

func TestPrompterNoChoices(t *testing.T) {
	t.Parallel()

	p := NewPrompter()

	_, err := p.Select("block")
	require.ErrorIs(t, err, ErrNoChoices)

	selected, err := p.MultiSelect("blocks")
	require.NoError(t, err)
	assert.Empty(t, selected)
}

func TestPrefixSearcher(t *testing.T) {
	t.Parallel()

	items := []string{doneChoice, "onentry", "onexit", "push"}
	search := prefixSearcher(items, 1)

	assert.False(t, search("[", 0))
	assert.True(t, search("one", 1))
	assert.True(t, search("one", 2))
	assert.False(t, search("one", 3))
	assert.False(t, search("", 1))
}
