package ai

import (
	"encoding/json"
	"fmt"
)

// Embedding endpoints in the wild answer in one of two shapes: a single
// vector on the object itself, or a list of vectors, one per input. The
// wire payload is parsed into an explicit tagged form here, at the provider
// boundary, so nothing downstream ever inspects raw JSON.
type embedResponse struct {
	// direct shape: {"embedding": [...]}
	Embedding []float32 `json:"embedding"`
	// indexed shape: {"data": [{"embedding": [...]}, ...]}
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func parseEmbedResponse(raw []byte) ([]float32, error) {
	var out embedResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	switch {
	case len(out.Data) > 0:
		if len(out.Data[0].Embedding) == 0 {
			return nil, fmt.Errorf("embed response data entry has no values")
		}
		return out.Data[0].Embedding, nil
	case len(out.Embedding) > 0:
		return out.Embedding, nil
	default:
		return nil, fmt.Errorf("embed response has no embedding")
	}
}
