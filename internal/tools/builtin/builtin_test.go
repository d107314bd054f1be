package builtin_test

import (
	"context"
	"testing"

	"github.com/clipforge/pipeline/internal/artifact"
	"github.com/clipforge/pipeline/internal/tools"
	"github.com/clipforge/pipeline/internal/tools/builtin"
)

func newRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	if err := builtin.RegisterAll(reg); err != nil {
		t.Fatalf("register all: %v", err)
	}
	return reg
}

func TestRegisterAllWiresSixTools(t *testing.T) {
	reg := newRegistry(t)
	ids := []string{
		builtin.ToolIngest, builtin.ToolScriptAnalysis, builtin.ToolScriptGenerate,
		builtin.ToolBurn, builtin.ToolQC, builtin.ToolPublish,
	}
	for _, id := range ids {
		if _, ok := reg.Get(id); !ok {
			t.Errorf("expected tool %q to be registered", id)
		}
	}
}

func TestIngestThenScriptAnalysisThenGenerateChain(t *testing.T) {
	reg := newRegistry(t)
	ctx := context.Background()

	ingest, _ := reg.Get(builtin.ToolIngest)
	out, err := ingest.Handler.Handle(ctx, artifact.Map{}, map[string]interface{}{"source_url": "video.mp4"})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !out["source_video"].IsBlob() {
		t.Fatal("expected ingest to produce a blob artifact")
	}

	analysis, _ := reg.Get(builtin.ToolScriptAnalysis)
	transcriptOut, err := analysis.Handler.Handle(ctx, out, nil)
	if err != nil {
		t.Fatalf("script analysis: %v", err)
	}
	if !transcriptOut["transcript"].IsText() {
		t.Fatal("expected transcript artifact to be text")
	}

	generate, _ := reg.Get(builtin.ToolScriptGenerate)
	captionsOut, err := generate.Handler.Handle(ctx, transcriptOut, nil)
	if err != nil {
		t.Fatalf("script generate: %v", err)
	}
	if !captionsOut["captions_draft"].IsText() {
		t.Fatal("expected captions_draft artifact to be text")
	}
}

func TestScriptAnalysisFailsWithoutSourceVideo(t *testing.T) {
	reg := newRegistry(t)
	analysis, _ := reg.Get(builtin.ToolScriptAnalysis)
	if _, err := analysis.Handler.Handle(context.Background(), artifact.Map{}, nil); err == nil {
		t.Fatal("expected error when source_video input is missing")
	}
}

func TestBurnProducesVideoAndThumbnail(t *testing.T) {
	reg := newRegistry(t)
	burn, _ := reg.Get(builtin.ToolBurn)
	inputs := artifact.Map{
		"source_video":   artifact.NewBlob(artifact.Descriptor{URI: "ingest://x", Mime: "video/mp4"}),
		"captions_draft": artifact.NewText("hello"),
	}
	out, err := burn.Handler.Handle(context.Background(), inputs, nil)
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if !out["burned_video"].IsBlob() || !out["thumbnail"].IsBlob() {
		t.Fatal("expected burn to produce burned_video and thumbnail blobs")
	}
}

func TestQCRequiresBurnedVideo(t *testing.T) {
	reg := newRegistry(t)
	qc, _ := reg.Get(builtin.ToolQC)
	if _, err := qc.Handler.Handle(context.Background(), artifact.Map{}, nil); err == nil {
		t.Fatal("expected error when burned_video is missing")
	}
	ok := artifact.Map{"burned_video": artifact.NewBlob(artifact.Descriptor{SHA256: "abc"})}
	if _, err := qc.Handler.Handle(context.Background(), ok, nil); err != nil {
		t.Fatalf("qc with burned_video present: %v", err)
	}
}

func TestPublishProducesURLAndExternalID(t *testing.T) {
	reg := newRegistry(t)
	publish, _ := reg.Get(builtin.ToolPublish)
	inputs := artifact.Map{"burned_video": artifact.NewBlob(artifact.Descriptor{SHA256: "deadbeef"})}
	out, err := publish.Handler.Handle(context.Background(), inputs, nil)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !out["published_url"].IsScalar() || !out["published_external_id"].IsScalar() {
		t.Fatal("expected published_url and published_external_id to be scalars")
	}
}
