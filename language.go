package compactvec

import (
	"context"
	"fmt"
	"strings"
)

const (
	labelPrefix     = "__label__"
	unknownLanguage = "unk"
)

// Prediction is one label scored by a language identifier.
type Prediction struct {
	Label       string
	Probability float32
}

// LanguageIdentifier predicts the language label of a text, best first.
// A store does not implement it; supervised models are served elsewhere.
type LanguageIdentifier interface {
	Predict(ctx context.Context, text string) ([]Prediction, error)
}

// Language is the detected language of one text.
type Language struct {
	Text        string
	Language    string
	Probability float32
}

// DetectLanguages asks id for the top label of every text. The "__label__"
// prefix is stripped and texts without a prediction are reported as "unk".
func DetectLanguages(ctx context.Context, id LanguageIdentifier, texts []string) ([]Language, error) {
	out := make([]Language, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		preds, err := id.Predict(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("detect language of text %d: %w", i, err)
		}
		out[i] = Language{Text: text, Language: unknownLanguage}
		if len(preds) > 0 {
			out[i].Language = strings.TrimPrefix(preds[0].Label, labelPrefix)
			out[i].Probability = preds[0].Probability
		}
	}
	return out, nil
}
