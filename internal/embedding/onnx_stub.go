//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/ragprobe/internal/errdefs"
)

// ONNXEmbedder stub type when built without CGO (see onnx.go for real implementation).
type ONNXEmbedder struct{}

// NewONNXEmbedder returns an error when built without CGO (ONNX not available).
func NewONNXEmbedder(_ string, _, _ int) (*ONNXEmbedder, error) {
	return nil, fmt.Errorf("%w: LOCAL embedding requires CGO; build with CGO_ENABLED=1 and onnxruntime", errdefs.ErrConfig)
}

func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errdefs.ErrConfig
}

func (e *ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errdefs.ErrConfig
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }

func (e *ONNXEmbedder) Close() error { return nil }
