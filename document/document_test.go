package document

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/amp-labs/statechart/dispatch"
	"github.com/amp-labs/statechart/event"
	"github.com/amp-labs/statechart/model"
	"github.com/amp-labs/statechart/session"
	"github.com/amp-labs/statechart/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

const turnstile = `
name: turnstile
datamodel: simple
data:
  count: 0
  owner: "ops"
script: |
  count = 1
blocks:
  onentry:
    - type: log
      params:
        label: entered
        expr: count
    - type: assign
      params:
        location: count
        expr: count + 1
  push:
    - type: raise
      params:
        event: pushed
  block10:
    - type: log
      params:
        label: ten
  block2:
    - type: log
      params:
        label: two
`

func TestLoadBytes(t *testing.T) {
	t.Parallel()

	doc, err := LoadBytes([]byte(turnstile))
	require.NoError(t, err)

	assert.Equal(t, "turnstile", doc.Name)
	assert.Equal(t, "simple", doc.Datamodel)
	assert.Equal(t, "UTF-8", doc.Charset)
	assert.Equal(t, map[string]any{"count": 0, "owner": "ops"}, doc.Data)
	assert.Equal(t, "count = 1\n", doc.Script)
	assert.Equal(t, []string{"block2", "block10", "onentry", "push"}, doc.BlockNames())
	require.Len(t, doc.Blocks["onentry"], 2)
	assert.Equal(t, "assign", doc.Blocks["onentry"][1].Type)
}

func TestLoadBytesErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"not yaml", "blocks: [unterminated"},
		{"unknown field", "name: x\nstates: {}\nblocks:\n  a: []\n"},
		{"unknown datamodel", "datamodel: xpath\nblocks:\n  a: []\n"},
		{"no blocks", "name: x\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := LoadBytes([]byte(tt.doc))
			require.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestLoadUTF16(t *testing.T) {
	t.Parallel()

	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()

	data, err := enc.Bytes([]byte("name: café\nblocks:\n  a:\n    - type: log\n      params:\n        label: ünïcode\n"))
	require.NoError(t, err)

	doc, err := LoadBytes(data)
	require.NoError(t, err)

	assert.Equal(t, "UTF-16LE", doc.Charset)
	assert.Equal(t, "café", doc.Name)
	assert.Equal(t, "ünïcode", doc.Blocks["a"][0].Params["label"])
}

func TestLoadLatin1(t *testing.T) {
	t.Parallel()

	src := "name: the résumé document for the café\n" +
		"script: |\n  greeting = \"this is the café where the résumé was written\"\n" +
		"blocks:\n  entry:\n    - type: log\n      params:\n        label: we are entering the café and reading the résumé\n"

	data, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(src))
	require.NoError(t, err)

	doc, err := LoadBytes(data)
	require.NoError(t, err)

	assert.NotEqual(t, "UTF-8", doc.Charset)
	assert.Equal(t, "the résumé document for the café", doc.Name)
}

func TestLoadAndLoadFS(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(turnstile), 0o600))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "turnstile", doc.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	fsys := fstest.MapFS{"charts/turnstile.yaml": {Data: []byte(turnstile)}}

	doc, err = LoadFS(fsys, "charts/turnstile.yaml")
	require.NoError(t, err)
	assert.Len(t, doc.Blocks, 4)
}

func TestBlockAndCompile(t *testing.T) {
	t.Parallel()

	doc, err := LoadBytes([]byte(turnstile))
	require.NoError(t, err)

	factory := model.NewActionFactory()

	block, err := doc.Block(factory, "onentry")
	require.NoError(t, err)
	require.Len(t, block, 2)
	assert.Equal(t, model.KindLog, block[0].Kind())

	_, err = doc.Block(factory, "onexit")
	require.ErrorIs(t, err, ErrUnknownBlock)

	blocks, err := doc.Compile(factory)
	require.NoError(t, err)
	assert.Len(t, blocks, 4)

	doc.Blocks["broken"] = []model.ActionConfig{{Type: "teleport"}}

	_, err = doc.Compile(factory)
	require.ErrorIs(t, err, model.ErrUnknownActionType)
}

func TestStart(t *testing.T) {
	t.Parallel()

	doc, err := LoadBytes([]byte(turnstile))
	require.NoError(t, err)

	mem := sink.NewMemory()

	s, err := doc.Start(t.Context(),
		session.WithSink(mem),
		session.WithDispatchOptions(dispatch.WithDNSRefresh(0)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	factory := model.NewActionFactory()

	onentry, err := doc.Block(factory, "onentry")
	require.NoError(t, err)

	require.NoError(t, s.Execute(t.Context(), onentry))
	require.NoError(t, s.Execute(t.Context(), onentry))

	assert.Equal(t, []model.LogEntry{
		{Label: "entered", Value: "1", HasValue: true},
		{Label: "entered", Value: "2", HasValue: true},
	}, mem.Entries())

	push, err := doc.Block(factory, "push")
	require.NoError(t, err)
	require.NoError(t, s.Execute(t.Context(), push))

	ev, ok := s.Internal().Pop()
	require.True(t, ok)
	assert.Equal(t, "pushed", ev.Name)
	assert.Equal(t, event.TypeInternal, ev.Type)
}

func TestStartScriptFailure(t *testing.T) {
	t.Parallel()

	doc, err := LoadBytes([]byte("script: count = missing\nblocks:\n  a: []\n"))
	require.NoError(t, err)

	s, err := doc.Start(t.Context(),
		session.WithSink(sink.Discard{}),
		session.WithDispatchOptions(dispatch.WithDNSRefresh(0)))
	require.Error(t, err)
	require.NotNil(t, s)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	ev, ok := s.Internal().Pop()
	require.True(t, ok)
	assert.Equal(t, event.ErrorExecution, ev.Name)
}

func TestSessionsDoNotShareData(t *testing.T) {
	t.Parallel()

	doc, err := LoadBytes([]byte("data:\n  cfg:\n    n: 0\n    tags: [a]\nblocks:\n  a: []\n"))
	require.NoError(t, err)

	start := func(mem *sink.Memory) *session.Session {
		s, err := doc.Start(t.Context(),
			session.WithSink(mem),
			session.WithDispatchOptions(dispatch.WithDNSRefresh(0)))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close(context.Background()) })

		return s
	}

	first := start(sink.NewMemory())

	assign, err := model.NewAssign("cfg.n", "42")
	require.NoError(t, err)
	require.NoError(t, first.Execute(t.Context(), model.Block{assign}))

	mem := sink.NewMemory()
	second := start(mem)
	require.NoError(t, second.Execute(t.Context(), model.Block{model.NewLog("n", "cfg.n")}))

	assert.Equal(t, []model.LogEntry{{Label: "n", Value: "0", HasValue: true}}, mem.Entries())
	assert.Equal(t, map[string]any{"cfg": map[string]any{"n": 0, "tags": []any{"a"}}}, doc.Data)
}
