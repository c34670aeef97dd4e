//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/ragprobe/internal/errdefs"
	"github.com/hyperjump/ragprobe/pkg/utils"
)

// ONNXEmbedder runs a sentence-embedding model locally with ONNX Runtime.
// It requires CGO and the onnxruntime shared library.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer
	// Run() reads these inputs and writes the output in place.
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
	mu            sync.Mutex
}

// NewONNXEmbedder loads the model at modelPath. InitializeEnvironment is called if not already done.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: initialize ONNX runtime: %w", errdefs.ErrConfig, err)
		}
	}
	e := &ONNXEmbedder{dimensions: dimensions, maxTokens: maxTokens, tokenizer: &HashTokenizer{}}
	if err := e.allocate(); err != nil {
		_ = e.Close()
		return nil, err
	}
	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{e.inputIDs, e.attentionMask, e.tokenTypeIDs},
		[]ort.ArbitraryTensor{e.output},
		nil,
	)
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("%w: create ONNX session for %s: %w", errdefs.ErrConfig, modelPath, err)
	}
	e.session = session
	return e, nil
}

func (e *ONNXEmbedder) allocate() error {
	shape := ort.NewShape(1, int64(e.maxTokens))
	var err error
	ids, mask, types := e.tokenizer.Tokenize("", e.maxTokens)
	if e.inputIDs, err = ort.NewTensor(shape, ids); err != nil {
		return fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if e.attentionMask, err = ort.NewTensor(shape, mask); err != nil {
		return fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if e.tokenTypeIDs, err = ort.NewTensor(shape, types); err != nil {
		return fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	if e.output, err = ort.NewTensor(ort.NewShape(1, int64(e.dimensions)), make([]float32, e.dimensions)); err != nil {
		return fmt.Errorf("failed to create output tensor: %w", err)
	}
	return nil
}

// Embed runs inference for text and returns a normalized embedding.
func (e *ONNXEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.inputIDs.GetData(), ids)
	copy(e.attentionMask.GetData(), mask)
	copy(e.tokenTypeIDs.GetData(), types)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: onnx inference: %w", errdefs.ErrExternalService, err)
	}
	emb := make([]float32, e.dimensions)
	copy(emb, e.output.GetData())
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session and tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputIDs != nil {
		_ = e.inputIDs.Destroy()
	}
	if e.attentionMask != nil {
		_ = e.attentionMask.Destroy()
	}
	if e.tokenTypeIDs != nil {
		_ = e.tokenTypeIDs.Destroy()
	}
	if e.output != nil {
		_ = e.output.Destroy()
	}
	e.inputIDs, e.attentionMask, e.tokenTypeIDs, e.output = nil, nil, nil, nil
	return err
}
