// Package manifest holds the ordered block manifest and its wire codec.
// The manifest is the atomic unit of a block-blob commit: the ordered list
// of block references submitted at commit time fully determines the blob's
// final content, regardless of the order blocks were uploaded in.
package manifest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/PositiveExperienceLLC/blobclient/blobtypes"
	"github.com/PositiveExperienceLLC/blobclient/errors"
)

// Manifest is an ordered sequence of block references. Order is
// caller-controlled, not insertion order: references can be inserted,
// removed and reordered freely before commit, and may name blocks staged
// in earlier sessions.
type Manifest struct {
	refs []blobtypes.BlockRef
}

// New creates an empty manifest.
func New() *Manifest {
	return &Manifest{}
}

// FromRefs creates a manifest from an existing ordered reference list.
func FromRefs(refs []blobtypes.BlockRef) *Manifest {
	m := &Manifest{refs: make([]blobtypes.BlockRef, len(refs))}
	copy(m.refs, refs)
	return m
}

// Append adds a reference at the end of the manifest.
func (m *Manifest) Append(id string, status blobtypes.BlockStatus) {
	m.refs = append(m.refs, blobtypes.BlockRef{ID: id, Status: status})
}

// AppendLatest adds a Latest-status reference at the end of the manifest.
func (m *Manifest) AppendLatest(id string) {
	m.Append(id, blobtypes.BlockLatest)
}

// Insert places a reference at position i, shifting later entries.
func (m *Manifest) Insert(i int, ref blobtypes.BlockRef) error {
	if i < 0 || i > len(m.refs) {
		return errors.NewError("manifest", errors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("insert position %d out of range [0,%d]", i, len(m.refs)))
	}
	m.refs = append(m.refs, blobtypes.BlockRef{})
	copy(m.refs[i+1:], m.refs[i:])
	m.refs[i] = ref
	return nil
}

// Remove deletes the first reference with the given id and reports whether
// one was found.
func (m *Manifest) Remove(id string) bool {
	for i, ref := range m.refs {
		if ref.ID == id {
			m.refs = append(m.refs[:i], m.refs[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of references.
func (m *Manifest) Len() int {
	return len(m.refs)
}

// Refs returns a copy of the ordered reference list.
func (m *Manifest) Refs() []blobtypes.BlockRef {
	out := make([]blobtypes.BlockRef, len(m.refs))
	copy(out, m.refs)
	return out
}

// MarshalBody serializes the manifest into the XML commit body:
//
//	<BlockList><Latest>id</Latest><Committed>id</Committed>...</BlockList>
//
// Element names carry the per-reference status.
func (m *Manifest) MarshalBody() ([]byte, error) {
	return MarshalRefs(m.refs)
}

// MarshalRefs serializes an ordered reference list into the commit body.
func MarshalRefs(refs []blobtypes.BlockRef) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<BlockList>")
	for _, ref := range refs {
		var elem string
		switch ref.Status {
		case blobtypes.BlockCommitted:
			elem = "Committed"
		case blobtypes.BlockUncommitted:
			elem = "Uncommitted"
		case blobtypes.BlockLatest:
			elem = "Latest"
		default:
			return nil, errors.NewError("manifest", errors.ErrInvalidInput).
				WithMessage("unknown block status " + string(ref.Status))
		}
		buf.WriteString("<" + elem + ">")
		if err := xml.EscapeText(&buf, []byte(ref.ID)); err != nil {
			return nil, errors.NewError("manifest", err)
		}
		buf.WriteString("</" + elem + ">")
	}
	buf.WriteString("</BlockList>")
	return buf.Bytes(), nil
}

// blockXML mirrors one <Block> element of a block-list response.
type blockXML struct {
	Name string `xml:"Name"`
	Size int64  `xml:"Size"`
}

// blockListXML mirrors the block-list response body.
type blockListXML struct {
	XMLName     xml.Name   `xml:"BlockList"`
	Committed   []blockXML `xml:"CommittedBlocks>Block"`
	Uncommitted []blockXML `xml:"UncommittedBlocks>Block"`
}

// ParseBlockList decodes a block-list response body.
func ParseBlockList(r io.Reader) (*blobtypes.BlockList, error) {
	var parsed blockListXML
	if err := xml.NewDecoder(r).Decode(&parsed); err != nil {
		return nil, errors.NewError("getBlockList", errors.ErrProtocol).
			WithMessage("malformed block list body: " + err.Error())
	}
	out := &blobtypes.BlockList{}
	for _, b := range parsed.Committed {
		out.Committed = append(out.Committed, blobtypes.Block{ID: b.Name, Size: b.Size})
	}
	for _, b := range parsed.Uncommitted {
		out.Uncommitted = append(out.Uncommitted, blobtypes.Block{ID: b.Name, Size: b.Size})
	}
	return out, nil
}
