// Package chart turns query results into a rendered chart by asking the model
// for two Starlark programs: one that extracts a dataset from CSV text and one
// that draws a figure from that dataset.
package chart

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrPipeline        = errors.New("chart pipeline failed")
	ErrUnsupportedKind = errors.New("unsupported chart kind")
	ErrNoRows          = errors.New("query returned no rows")
)

type Phase string

const (
	PhaseExtract Phase = "extract"
	PhaseChart   Phase = "chart"
	PhaseRender  Phase = "render"
)

// PipelineError reports which phase stopped the pipeline. A failed extract
// phase means the chart phase never ran.
type PipelineError struct {
	Phase Phase
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s phase: %v", ErrPipeline, e.Phase, e.Err)
}

func (e *PipelineError) Is(target error) bool {
	return target == ErrPipeline
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

type Kind string

const (
	KindBar     Kind = "bar"
	KindLine    Kind = "line"
	KindPie     Kind = "pie"
	KindScatter Kind = "scatter"
)

func ParseKind(raw string) (Kind, error) {
	switch kind := Kind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case KindBar, KindLine, KindPie, KindScatter:
		return kind, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, raw)
	}
}

// Dataset is the validated output of the extract phase.
type Dataset struct {
	Headers            []string
	Columns            map[string][]any
	NumericColumns     []string
	CategoricalColumns []string
	Shape              [2]int
}

func (d Dataset) Rows() int {
	return d.Shape[0]
}

// Artifact is what a chart request returns to its caller.
type Artifact struct {
	ImageBase64 string `json:"image_base64"`
	Insights    string `json:"insights"`
	ArchiveKey  string `json:"archive_key,omitempty"`
}
