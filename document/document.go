// Package document loads state chart documents: a datamodel declaration,
// an optional global script and named blocks of executable content, written
// in YAML.
//
// A document looks like this:
//
//	name: turnstile
//	datamodel: simple
//	data:
//	  count: 0
//	script: |
//	  count = 1
//	blocks:
//	  onentry:
//	    - type: log
//	      params:
//	        label: entered
//	        expr: count
//
// Documents need not be UTF-8: the encoding is detected and the text is
// converted before it is parsed.
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"unicode/utf8"

	"facette.io/natsort"
	"github.com/amp-labs/statechart/datamodel"
	"github.com/amp-labs/statechart/model"
	"github.com/amp-labs/statechart/session"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidDocument indicates a document that cannot be parsed or is malformed.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrUnknownBlock indicates a block name the document does not define.
	ErrUnknownBlock = errors.New("unknown block")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Document is a parsed state chart document.
type Document struct {
	Name      string                          `yaml:"name"`
	Datamodel string                          `yaml:"datamodel,omitempty"`
	Data      map[string]any                  `yaml:"data,omitempty"`
	Script    string                          `yaml:"script,omitempty"`
	Blocks    map[string][]model.ActionConfig `yaml:"blocks"`

	// Charset is the encoding the document was read in.
	Charset string `yaml:"-"`
}

// Load reads a document from a file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	return LoadBytes(data)
}

// LoadFS reads a document from a file system.
func LoadFS(fsys fs.FS, name string) (*Document, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	return LoadBytes(data)
}

// LoadBytes parses a document. Unknown fields are rejected.
func LoadBytes(data []byte) (*Document, error) {
	text, name, err := toUTF8(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(text))
	dec.KnownFields(true)

	var doc Document

	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: document is empty", ErrInvalidDocument)
		}

		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	doc.Charset = name

	if err := doc.Validate(); err != nil {
		return nil, err
	}

	return &doc, nil
}

// Validate checks the parts of a document that do not need a factory.
func (d *Document) Validate() error {
	switch d.Datamodel {
	case "", datamodel.KindSimple, datamodel.KindLua:
	default:
		return fmt.Errorf("%w: %w: %q", ErrInvalidDocument, datamodel.ErrUnknownKind, d.Datamodel)
	}

	if len(d.Blocks) == 0 {
		return fmt.Errorf("%w: no blocks defined", ErrInvalidDocument)
	}

	return nil
}

// BlockNames returns the block names in natural order.
func (d *Document) BlockNames() []string {
	names := make([]string, 0, len(d.Blocks))
	for name := range d.Blocks {
		names = append(names, name)
	}

	natsort.Sort(names)

	return names
}

// Block builds the named block.
func (d *Document) Block(factory *model.ActionFactory, name string) (model.Block, error) {
	configs, ok := d.Blocks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlock, name)
	}

	block, err := factory.CreateBlock(configs)
	if err != nil {
		return nil, fmt.Errorf("block %q: %w", name, err)
	}

	return block, nil
}

// Compile builds every block, failing on the first one that cannot be built.
func (d *Document) Compile(factory *model.ActionFactory) (map[string]model.Block, error) {
	blocks := make(map[string]model.Block, len(d.Blocks))

	for _, name := range d.BlockNames() {
		block, err := d.Block(factory, name)
		if err != nil {
			return nil, err
		}

		blocks[name] = block
	}

	return blocks, nil
}

// Start creates a session with the document's datamodel and data and runs
// the global script. The session is returned even when the script fails, as
// the failure is already queued as an error event.
func (d *Document) Start(ctx context.Context, opts ...session.Option) (*session.Session, error) {
	dm, err := datamodel.New(d.Datamodel, d.Data)
	if err != nil {
		return nil, fmt.Errorf("create datamodel: %w", err)
	}

	s := session.New(append([]session.Option{session.WithDatamodel(dm)}, opts...)...)

	if err := s.Init(ctx, d.Script); err != nil {
		return s, fmt.Errorf("run global script: %w", err)
	}

	return s, nil
}

// toUTF8 converts data to UTF-8, returning the name of the source encoding.
// Valid UTF-8 is used as is; anything else goes through charset detection.
func toUTF8(data []byte) ([]byte, string, error) {
	if utf8.Valid(data) {
		return bytes.TrimPrefix(data, utf8BOM), "UTF-8", nil
	}

	best, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil {
		return nil, "", fmt.Errorf("detect encoding: %w", err)
	}

	reader, err := charset.NewReaderLabel(best.Charset, bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", best.Charset, err)
	}

	decoded, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", best.Charset, err)
	}

	return bytes.TrimPrefix(decoded, utf8BOM), best.Charset, nil
}
