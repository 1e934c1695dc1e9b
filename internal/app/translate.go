package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Translate resolves each text against the bidirectional cache and sends
// only the misses to the LLM in one batched call. New pairs are saved in
// both directions so the reverse lookup is a free hit later.
func (a *App) Translate(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	targetLang = strings.ToLower(strings.TrimSpace(targetLang))
	if !validLangCode(targetLang) {
		return nil, &ValidationError{Field: "target_lang", Reason: "must be a two-letter language code"}
	}

	results := make([]string, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, &ValidationError{Field: "text", Reason: fmt.Sprintf("item %d is empty", i)}
		}
		translated, ok, err := a.store.GetTranslation(text)
		if err != nil {
			return nil, err
		}
		if ok {
			results[i] = translated
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return results, nil
	}

	translated, err := a.llm.TranslateBatch(ctx, missing, targetLang)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if len(translated) != len(missing) {
		return nil, fmt.Errorf("%w: got %d translations for %d texts", ErrUpstream, len(translated), len(missing))
	}
	for j, out := range translated {
		results[missingIdx[j]] = out
		if err := a.store.SaveTranslation(missing[j], out); err != nil {
			slog.Warn("translation cache save failed", "error", err)
		}
	}
	return results, nil
}
