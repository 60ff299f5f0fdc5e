// Package resource provides scoped, in-memory editing of XML resource
// documents (e.g. AndroidManifest.xml).
package resource

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
)

var (
	// ErrAlreadyOpen is returned by Open if the document is already open.
	ErrAlreadyOpen = errors.New("document already open")
	// ErrNotFound is returned by Element if no element has the tag.
	ErrNotFound = errors.New("element not found")
)

// Editor holds the resource documents for a run. Documents are read from the
// underlying filesystem the first time they are opened, and are only kept in
// memory afterwards; nothing is written until Save.
type Editor struct {
	fsys      fs.FS
	open      map[string]*Document
	committed map[string][]byte
}

// NewEditor creates an editor reading from fsys, which may be nil if there are
// no resources.
func NewEditor(fsys fs.FS) *Editor {
	return &Editor{
		fsys:      fsys,
		open:      map[string]*Document{},
		committed: map[string][]byte{},
	}
}

// Open parses a document. The document must be closed before it can be opened
// again, and changes are only visible to later opens after it is closed.
func (e *Editor) Open(name string) (*Document, error) {
	if !fs.ValidPath(name) {
		return nil, fmt.Errorf("open %s: invalid path", name)
	}
	if _, ok := e.open[name]; ok {
		return nil, fmt.Errorf("open %s: %w", name, ErrAlreadyOpen)
	}

	buf, ok := e.committed[name]
	if !ok {
		if e.fsys == nil {
			return nil, fmt.Errorf("open %s: %w", name, fs.ErrNotExist)
		}
		var err error
		if buf, err = fs.ReadFile(e.fsys, name); err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
	}

	root, err := xmlquery.Parse(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("open %s: parse xml: %w", name, err)
	}

	d := &Document{editor: e, name: name, root: root}
	e.open[name] = d
	return d, nil
}

// Use opens a document, calls fn, then closes it. The document is closed
// exactly once even if fn fails or panics, and errors from both are returned.
func (e *Editor) Use(name string, fn func(d *Document) error) (err error) {
	d, err := e.Open(name)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, d.Close())
	}()
	return fn(d)
}

// CloseAll closes every open document.
func (e *Editor) CloseAll() error {
	var errs []error
	for _, name := range sortedKeys(e.open) {
		errs = append(errs, e.open[name].Close())
	}
	return errors.Join(errs...)
}

// Committed returns the serialized contents of a closed document.
func (e *Editor) Committed(name string) ([]byte, bool) {
	buf, ok := e.committed[name]
	return buf, ok
}

// Modified returns the names of all committed documents, sorted.
func (e *Editor) Modified() []string {
	return sortedKeys(e.committed)
}

// Save writes all committed documents under dir. It fails if any documents
// are still open.
func (e *Editor) Save(dir string) error {
	if len(e.open) != 0 {
		return fmt.Errorf("save: documents still open: %s", strings.Join(sortedKeys(e.open), ", "))
	}
	for _, name := range sortedKeys(e.committed) {
		fn := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(fn), 0755); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
		if err := os.WriteFile(fn, e.committed[name], 0644); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
	}
	return nil
}

// Document is an open XML document.
type Document struct {
	editor *Editor
	name   string
	root   *xmlquery.Node
	closed bool
}

// Name returns the path the document was opened from.
func (d *Document) Name() string {
	return d.name
}

// Elements returns all elements with the tag (which may include a prefix),
// in document order.
func (d *Document) Elements(tag string) []*Element {
	prefix, local := splitName(tag)
	var els []*Element
	var walk func(n *xmlquery.Node)
	walk = func(n *xmlquery.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == xmlquery.ElementNode {
				if c.Data == local && c.Prefix == prefix {
					els = append(els, &Element{c})
				}
				walk(c)
			}
		}
	}
	walk(d.root)
	return els
}

// Element returns the first element with the tag.
func (d *Document) Element(tag string) (*Element, error) {
	if els := d.Elements(tag); len(els) != 0 {
		return els[0], nil
	}
	return nil, fmt.Errorf("%s: <%s>: %w", d.name, tag, ErrNotFound)
}

// Query returns the elements matching an XPath expression.
func (d *Document) Query(expr string) ([]*Element, error) {
	ns, err := xmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("%s: query %q: %w", d.name, expr, err)
	}
	var els []*Element
	for _, n := range ns {
		if n.Type == xmlquery.ElementNode {
			els = append(els, &Element{n})
		}
	}
	return els, nil
}

// String returns the current serialized document.
func (d *Document) String() string {
	return d.root.OutputXML(true)
}

// Close commits the document to the editor. Closing an already closed
// document does nothing.
func (d *Document) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	delete(d.editor.open, d.name)
	d.editor.committed[d.name] = []byte(d.String())
	return nil
}

// Element is an XML element in an open document.
type Element struct {
	n *xmlquery.Node
}

// Tag returns the tag name, including the prefix if any.
func (e *Element) Tag() string {
	if e.n.Prefix != "" {
		return e.n.Prefix + ":" + e.n.Data
	}
	return e.n.Data
}

// Attr gets an attribute by name (e.g. package or android:name).
func (e *Element) Attr(name string) (string, bool) {
	prefix, local := splitName(name)
	for _, a := range e.n.Attr {
		if a.Name.Space == prefix && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets an attribute, adding it if it doesn't exist.
func (e *Element) SetAttr(name, value string) {
	e.n.SetAttr(name, value)
}

func splitName(name string) (prefix, local string) {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "", name
}

func sortedKeys[V any](m map[string]V) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}
