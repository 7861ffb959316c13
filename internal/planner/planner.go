// File: internal/planner/planner.go
package planner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// Planner produces a one-shot ordered action list for an instruction. The
// model path is tried first; when it fails or returns garbage, the heuristic
// grammar takes over. Plans are post-processed with readiness waits before
// being returned.
type Planner struct {
	logger *zap.Logger
	llm    schemas.LLMClient
}

// New creates a Planner. llm may be nil, in which case only the heuristic
// path is available.
func New(logger *zap.Logger, llm schemas.LLMClient) *Planner {
	return &Planner{
		logger: logger.Named("planner"),
		llm:    llm,
	}
}

const planSystemPrompt = `You are the planner of 'webpilot', a browser automation agent.
Decompose the user's instruction into an ordered list of page actions.
You must respond ONLY with a JSON array of action objects. No prose, no Markdown.
Action schema (one object per action):
- {"type":"navigate","url":"<absolute URL>"}
- {"type":"findElements","locator":{"role":"<role>","name":"<accessible name>","text":"<visible text>"}}
- {"type":"click","locator":{...}}
- {"type":"typeText","locator":{...},"text":"<text>","submit":<bool>}
- {"type":"select","locator":{...},"value":"<option>"}
- {"type":"scroll","direction":"up|down","amountPx":<int>}
- {"type":"waitFor","value":"ready|idle","timeoutMs":<int>}
- {"type":"extract","value":"article|full"}
- {"type":"switchTab","value":"<tab hint>"}
- {"type":"askUser","question":"<question>","choices":["..."]}
Locators identify elements by role/name/text/nth. Keep plans short and concrete.`

// Plan turns an instruction into an executable action list.
// It fails with schemas.ErrPlanning when neither the model nor the heuristic
// grammar can produce a non-empty plan.
func (p *Planner) Plan(ctx context.Context, instruction string) ([]schemas.Action, error) {
	if strings.TrimSpace(instruction) == "" {
		return nil, fmt.Errorf("%w: empty instruction", schemas.ErrPlanning)
	}

	if p.llm != nil {
		raw, err := p.llm.GenerateResponse(ctx, schemas.GenerationRequest{
			SystemPrompt: planSystemPrompt,
			UserPrompt:   fmt.Sprintf("Instruction: %s\n\nRespond with the JSON action array.", instruction),
			Tier:         schemas.TierPowerful,
			Options: schemas.GenerationOptions{
				Temperature:     0.1,
				ForceJSONFormat: true,
			},
		})
		if err != nil {
			p.logger.Warn("Model planning failed, falling back to heuristics", zap.Error(err))
		} else if actions, derr := decodePlan(raw); derr != nil {
			p.logger.Warn("Could not decode model plan, falling back to heuristics",
				zap.Error(derr), zap.Int("response_len", len(raw)))
		} else if len(actions) > 0 {
			p.logger.Info("Model produced plan", zap.Int("actions", len(actions)))
			return Augment(actions), nil
		}
	}

	if actions, ok := HeuristicPlan(instruction); ok {
		p.logger.Info("Heuristic planner produced plan", zap.Int("actions", len(actions)))
		return Augment(actions), nil
	}

	return nil, fmt.Errorf("%w: no decodable plan and no heuristic match for %q", schemas.ErrPlanning, instruction)
}

// decodePlan tries, in order: a direct JSON-array decode, a decode after
// stripping Markdown code fences, and a decode of the substring between the
// first '[' and the last ']'. First success wins.
func decodePlan(raw string) ([]schemas.Action, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("empty response")
	}

	if actions, err := schemas.DecodeActions([]byte(trimmed)); err == nil {
		return actions, nil
	}

	unfenced := StripCodeFences(trimmed)
	if unfenced != trimmed {
		if actions, err := schemas.DecodeActions([]byte(unfenced)); err == nil {
			return actions, nil
		}
	}

	start := strings.Index(trimmed, "[")
	end := strings.LastIndex(trimmed, "]")
	if start >= 0 && end > start {
		if actions, err := schemas.DecodeActions([]byte(trimmed[start : end+1])); err == nil {
			return actions, nil
		}
	}

	return nil, fmt.Errorf("response is not a decodable action array")
}

// StripCodeFences removes leading/trailing Markdown fence markers like
// ```json ... ```.
func StripCodeFences(s string) string {
	out := strings.TrimSpace(s)
	if !strings.HasPrefix(out, "```") {
		return out
	}
	out = strings.TrimPrefix(out, "```")
	// Drop an optional language tag on the opening fence.
	if idx := strings.Index(out, "\n"); idx >= 0 {
		firstLine := strings.TrimSpace(out[:idx])
		if len(firstLine) <= 10 && !strings.ContainsAny(firstLine, "[]{}") {
			out = out[idx+1:]
		}
	}
	out = strings.TrimSuffix(strings.TrimSpace(out), "```")
	return strings.TrimSpace(out)
}
