// Package builtin provides deterministic tool handlers that exercise the
// executor end to end without depending on real transcription/encoding/LLM
// services (those concrete tool implementations are out of scope per
// spec.md §1; only their contracts are modeled here). The tool ids mirror
// spec.md §8's scenario-1 preset.
package builtin

import (
	"context"
	"fmt"

	"github.com/clipforge/pipeline/internal/artifact"
	"github.com/clipforge/pipeline/internal/tools"
)

const (
	ToolIngest         = "T01_INGEST"
	ToolScriptAnalysis = "A01_SCRIPT_ANALYSIS"
	ToolScriptGenerate = "G01_SCRIPT"
	ToolBurn           = "E01_BURN"
	ToolQC             = "T18_QC"
	ToolPublish        = "P01_PUBLISH"
)

// RegisterAll wires every builtin handler into reg, failing fast on the
// first registration error (mirrors startup wiring in cmd/server).
func RegisterAll(reg *tools.Registry) error {
	descriptors := []tools.Descriptor{
		{
			ToolID:        ToolIngest,
			Handler:       ingestTool{},
			ResourceClass: tools.ResourceClassNone,
			Inputs:        nil,
			Outputs:       []artifact.Kind{"source_video"},
			SupportsRetry: true,
		},
		{
			ToolID:          ToolScriptAnalysis,
			Handler:         scriptAnalysisTool{},
			ResourceClass:   "whisper",
			Inputs:          []artifact.Kind{"source_video"},
			Outputs:         []artifact.Kind{"transcript"},
			SupportsRetry:   true,
			SupportsPreview: true,
		},
		{
			ToolID:        ToolScriptGenerate,
			Handler:       scriptGenerateTool{},
			ResourceClass: "llm",
			Inputs:        []artifact.Kind{"transcript"},
			Outputs:       []artifact.Kind{"captions_draft"},
			SupportsRetry: true,
		},
		{
			ToolID:        ToolBurn,
			Handler:       burnTool{},
			ResourceClass: "ffmpeg",
			Inputs:        []artifact.Kind{"source_video", "captions_draft"},
			Outputs:       []artifact.Kind{"burned_video", "thumbnail"},
			SupportsRetry: true,
		},
		{
			ToolID:        ToolQC,
			Handler:       qcTool{},
			ResourceClass: tools.ResourceClassNone,
			Inputs:        []artifact.Kind{"burned_video"},
			Outputs:       nil,
			SupportsRetry: true,
		},
		{
			ToolID:             ToolPublish,
			Handler:            publishTool{},
			ResourceClass:      tools.ResourceClassNone,
			Inputs:             []artifact.Kind{"burned_video"},
			Outputs:            []artifact.Kind{"published_url", "published_external_id"},
			SupportsRetry:      false,
			SupportsManualEdit: true,
		},
	}
	for _, d := range descriptors {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

type ingestTool struct{}

func (ingestTool) Handle(ctx context.Context, inputs artifact.Map, params map[string]interface{}) (artifact.Map, error) {
	url, _ := params["source_url"].(string)
	return artifact.Map{
		"source_video": artifact.NewBlob(artifact.Descriptor{
			URI:  "ingest://" + url,
			Mime: "video/mp4",
		}),
	}, nil
}

type scriptAnalysisTool struct{}

func (scriptAnalysisTool) Handle(ctx context.Context, inputs artifact.Map, params map[string]interface{}) (artifact.Map, error) {
	if _, ok := inputs["source_video"]; !ok {
		return nil, fmt.Errorf("script analysis: missing source_video input")
	}
	return artifact.Map{
		"transcript": artifact.NewText("auto-generated transcript placeholder"),
	}, nil
}

type scriptGenerateTool struct{}

func (scriptGenerateTool) Handle(ctx context.Context, inputs artifact.Map, params map[string]interface{}) (artifact.Map, error) {
	transcript, ok := inputs["transcript"]
	if !ok {
		return nil, fmt.Errorf("script generate: missing transcript input")
	}
	return artifact.Map{
		"captions_draft": artifact.NewText(transcript.Text()),
	}, nil
}

type burnTool struct{}

func (burnTool) Handle(ctx context.Context, inputs artifact.Map, params map[string]interface{}) (artifact.Map, error) {
	src, ok := inputs["source_video"]
	if !ok {
		return nil, fmt.Errorf("burn: missing source_video input")
	}
	return artifact.Map{
		"burned_video": artifact.NewBlob(artifact.Descriptor{
			URI:  src.Blob().URI + "#burned",
			Mime: "video/mp4",
		}),
		"thumbnail": artifact.NewBlob(artifact.Descriptor{
			URI:  src.Blob().URI + "#thumb",
			Mime: "image/jpeg",
		}),
	}, nil
}

type qcTool struct{}

func (qcTool) Handle(ctx context.Context, inputs artifact.Map, params map[string]interface{}) (artifact.Map, error) {
	if _, ok := inputs["burned_video"]; !ok {
		return nil, fmt.Errorf("qc: missing burned_video input")
	}
	return artifact.Map{}, nil
}

type publishTool struct{}

func (publishTool) Handle(ctx context.Context, inputs artifact.Map, params map[string]interface{}) (artifact.Map, error) {
	video, ok := inputs["burned_video"]
	if !ok {
		return nil, fmt.Errorf("publish: missing burned_video input")
	}
	return artifact.Map{
		"published_url":          artifact.NewScalar("https://platform.example/" + video.Blob().SHA256),
		"published_external_id": artifact.NewScalar("ext-" + video.Blob().SHA256),
	}, nil
}
