package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/lorekeep/lorekeep/internal/log"
)

// maxJudgeResponseBytes limits LLM response size before JSON parsing (32 KB).
const maxJudgeResponseBytes = 32 * 1024

// repairPrompt asks the model to fix its own malformed JSON. One round trip
// only; a second failure surfaces as ErrMalformedResponse.
const repairPrompt = `Your previous reply was not valid JSON and could not be parsed.
Reply again with ONLY the corrected JSON, no prose, no markdown fences.

Previous reply:
%s`

// GenkitJudge runs structured prompts through a Genkit model.
type GenkitJudge struct {
	g      *genkit.Genkit
	model  string
	logger log.Logger
}

// NewGenkitJudge creates a Judge using the named model.
func NewGenkitJudge(g *genkit.Genkit, modelName string, logger log.Logger) *GenkitJudge {
	if logger == nil {
		logger = log.NewNop()
	}
	return &GenkitJudge{g: g, model: modelName, logger: logger}
}

// GenerateJSON prompts the model and unmarshals its reply into out.
// Markdown code fences around the JSON are tolerated. A reply that fails
// to parse triggers one repair round trip before giving up.
func (j *GenkitJudge) GenerateJSON(ctx context.Context, system, prompt string, out any) error {
	text, err := j.generate(ctx, system, prompt)
	if err != nil {
		return err
	}

	if parseErr := ParseJSONReply(text, out); parseErr != nil {
		j.logger.Debug("model reply failed to parse, requesting repair", "error", parseErr)

		repaired, genErr := j.generate(ctx, system, fmt.Sprintf(repairPrompt, truncate(text, 2048)))
		if genErr != nil {
			return genErr
		}
		if parseErr = ParseJSONReply(repaired, out); parseErr != nil {
			return fmt.Errorf("%w: %v", ErrMalformedResponse, parseErr)
		}
	}
	return nil
}

// GenerateText prompts the model for a free-form reply.
func (j *GenkitJudge) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	return j.generate(ctx, system, prompt)
}

func (j *GenkitJudge) generate(ctx context.Context, system, prompt string) (string, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(j.model),
		ai.WithPrompt(prompt),
	}
	if system != "" {
		opts = append(opts, ai.WithSystem(system))
	}

	resp, err := genkit.Generate(ctx, j.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generating response: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if len(text) > maxJudgeResponseBytes {
		return "", fmt.Errorf("model response too large: %d bytes", len(text))
	}
	return text, nil
}

// ParseJSONReply strips markdown code fences from an LLM reply and
// unmarshals the remainder into out.
func ParseJSONReply(text string, out any) error {
	text = stripCodeFences(text)
	if text == "" {
		return fmt.Errorf("empty response")
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("parsing response: %w (raw: %q)", err, truncate(text, 200))
	}
	return nil
}

// stripCodeFences removes ```json ... ``` wrapping from LLM output.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}

// truncate shortens s to at most n bytes for logging.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
