// Package artifact models the per-task artifact map (spec.md §3, "Artifact
// map"): a JSON-able bag keyed by artifact kind, where each entry is exactly
// one of a scalar, an inline text blob, or a descriptor pointing at the
// content-addressed object store. This replaces the source's open JSON bag
// with a statically-typed tagged union (Design Note "Dynamic artifact map").
package artifact

import (
	"encoding/json"
	"fmt"
)

// Kind identifies an artifact slot, e.g. "source_video", "transcript",
// "burned_video", "thumbnail", "captions_draft", "published_url",
// "published_external_id". The set is extensible; tools declare the kinds
// they read/write via their tools.Descriptor.
type Kind string

type valueKind int

const (
	KindScalar valueKind = iota
	KindText
	KindBlob
)

// Descriptor addresses a binary artifact on the content-addressed object
// store (internal/platform/object).
type Descriptor struct {
	URI    string `json:"uri"`
	Mime   string `json:"mime"`
	Bytes  int64  `json:"bytes"`
	SHA256 string `json:"sha256"`
}

// Value carries exactly one of a scalar, inline text, or a blob descriptor.
type Value struct {
	kind   valueKind
	scalar interface{}
	text   string
	blob   Descriptor
}

func NewScalar(v interface{}) Value { return Value{kind: KindScalar, scalar: v} }
func NewText(s string) Value        { return Value{kind: KindText, text: s} }
func NewBlob(d Descriptor) Value    { return Value{kind: KindBlob, blob: d} }

func (v Value) IsScalar() bool { return v.kind == KindScalar }
func (v Value) IsText() bool   { return v.kind == KindText }
func (v Value) IsBlob() bool   { return v.kind == KindBlob }

func (v Value) Scalar() interface{} { return v.scalar }
func (v Value) Text() string        { return v.text }
func (v Value) Blob() Descriptor    { return v.blob }

// Map is the per-task artifact bag. It is stored as a JSON column on
// PublishTask (domain.PublishTask.Artifacts) via MarshalJSON/UnmarshalJSON.
type Map map[Kind]Value

// Clone returns a shallow copy, sufficient since Value is immutable by
// convention (no in-place mutation after construction).
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Project returns the subset of m restricted to the given kinds, failing if
// any declared kind is absent — the executor uses this to build a step's
// input projection and to enforce spec.md §4.7's "missing declared input
// fails the step permanently" rule.
func (m Map) Project(kinds []Kind) (Map, error) {
	out := make(Map, len(kinds))
	for _, k := range kinds {
		v, ok := m[k]
		if !ok {
			return nil, fmt.Errorf("artifact: missing declared input kind %q", k)
		}
		out[k] = v
	}
	return out, nil
}

// Merge writes outputs into a copy of m, last-writer-wins per spec.md §3.
func (m Map) Merge(outputs Map) Map {
	out := m.Clone()
	for k, v := range outputs {
		out[k] = v
	}
	return out
}

// PreviewKind namespaces a kind under the sandboxed preview side channel
// (spec.md §4.2, supports_preview) so it never collides with a canonical key.
func PreviewKind(k Kind) Kind {
	return Kind("preview/" + string(k))
}

type wireValue struct {
	Kind   string      `json:"kind"`
	Scalar interface{} `json:"scalar,omitempty"`
	Text   string      `json:"text,omitempty"`
	Blob   *Descriptor `json:"blob,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{}
	switch v.kind {
	case KindScalar:
		w.Kind = "scalar"
		w.Scalar = v.scalar
	case KindText:
		w.Kind = "text"
		w.Text = v.text
	case KindBlob:
		w.Kind = "blob"
		b := v.blob
		w.Blob = &b
	}
	return json.Marshal(w)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "scalar":
		*v = NewScalar(w.Scalar)
	case "text":
		*v = NewText(w.Text)
	case "blob":
		if w.Blob == nil {
			return fmt.Errorf("artifact: blob value missing descriptor")
		}
		*v = NewBlob(*w.Blob)
	default:
		return fmt.Errorf("artifact: unknown value kind %q", w.Kind)
	}
	return nil
}
