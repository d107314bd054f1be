package artifact_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/clipforge/pipeline/internal/artifact"
)

func TestValueJSONRoundTripAllKinds(t *testing.T) {
	cases := map[string]artifact.Value{
		"scalar": artifact.NewScalar(float64(42)),
		"text":   artifact.NewText("hello world"),
		"blob":   artifact.NewBlob(artifact.Descriptor{URI: "gs://bucket/x", Mime: "video/mp4", Bytes: 10, SHA256: "abc"}),
	}
	for name, v := range cases {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("%s: marshal: %v", name, err)
		}
		var got artifact.Value
		if err := json.Unmarshal(b, &got); err != nil {
			t.Fatalf("%s: unmarshal: %v", name, err)
		}
		switch name {
		case "scalar":
			if !got.IsScalar() || got.Scalar() != float64(42) {
				t.Errorf("scalar round trip mismatch: %+v", got)
			}
		case "text":
			if !got.IsText() || got.Text() != "hello world" {
				t.Errorf("text round trip mismatch: %+v", got)
			}
		case "blob":
			if !got.IsBlob() || got.Blob().SHA256 != "abc" {
				t.Errorf("blob round trip mismatch: %+v", got)
			}
		}
	}
}

func TestUnmarshalRejectsUnknownKind(t *testing.T) {
	var v artifact.Value
	err := json.Unmarshal([]byte(`{"kind":"mystery"}`), &v)
	if err == nil {
		t.Fatal("expected error for unknown wire kind")
	}
}

func TestMapSQLValueScanRoundTrip(t *testing.T) {
	m := artifact.Map{
		"source_video": artifact.NewBlob(artifact.Descriptor{URI: "gs://b/k", SHA256: "xyz"}),
		"transcript":   artifact.NewText("a transcript"),
	}
	raw, err := m.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var got artifact.Map
	if err := got.Scan(raw); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 2 || !got["transcript"].IsText() || got["transcript"].Text() != "a transcript" {
		t.Fatalf("unexpected round-tripped map: %+v", got)
	}
}

func TestMapScanNilYieldsEmptyMap(t *testing.T) {
	var m artifact.Map
	if err := m.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if m == nil || len(m) != 0 {
		t.Fatalf("expected empty non-nil map, got %+v", m)
	}
}

func TestMapValueNilMarshalsToEmptyObject(t *testing.T) {
	var m artifact.Map
	raw, err := m.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if string(raw.([]byte)) != "{}" {
		t.Fatalf("expected {}, got %s", raw)
	}
}

func TestProjectFailsOnMissingDeclaredInput(t *testing.T) {
	m := artifact.Map{"source_video": artifact.NewText("x")}
	_, projectErr := m.Project([]artifact.Kind{"source_video", "captions_draft"})
	if projectErr == nil {
		t.Fatal("expected error for missing declared input kind")
	}
	if !strings.Contains(projectErr.Error(), "captions_draft") {
		t.Errorf("expected error to name the missing kind, got %q", projectErr.Error())
	}
}

func TestMergeIsLastWriterWins(t *testing.T) {
	base := artifact.Map{"k": artifact.NewText("old")}
	merged := base.Merge(artifact.Map{"k": artifact.NewText("new")})
	if merged["k"].Text() != "new" {
		t.Fatalf("expected merge to overwrite, got %q", merged["k"].Text())
	}
	if base["k"].Text() != "old" {
		t.Fatal("expected base map to remain unmutated (Merge must copy)")
	}
}

func TestPreviewKindNamespaces(t *testing.T) {
	if artifact.PreviewKind("transcript") != "preview/transcript" {
		t.Fatalf("unexpected preview kind: %q", artifact.PreviewKind("transcript"))
	}
}
