package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rbright/murmur/internal/generation"
	"github.com/rbright/murmur/internal/quota"
)

// Reply is a conversational response.
type Reply struct {
	Text    string `json:"text"`
	Backend string `json:"backend"`
	Canned  bool   `json:"canned,omitempty"`
}

func generationChain(selected quota.GenerationVariant) []quota.GenerationVariant {
	switch selected {
	case quota.GenerationCloud:
		return []quota.GenerationVariant{quota.GenerationCloud, quota.GenerationLocal}
	case quota.GenerationLocal:
		return []quota.GenerationVariant{quota.GenerationLocal}
	case quota.GenerationNone:
		return nil
	default:
		return nil
	}
}

// Chat answers message from the first generator that succeeds, ending with the canned reply.
func (o *Orchestrator) Chat(ctx context.Context, req generation.Request) (Reply, error) {
	if strings.TrimSpace(req.Message) == "" {
		return Reply{}, fmt.Errorf("%w: message cannot be empty", ErrInvalidRequest)
	}

	for i, variant := range generationChain(o.arbiter.SelectGeneration(ctx)) {
		engine, ok := o.generators[variant]
		if !ok {
			continue
		}
		if i > 0 && !o.usable(ctx, variant) {
			continue
		}

		started := time.Now()
		result := engine.Generate(ctx, req)
		o.observe(engine.Name(), result.Status, started)
		if result.OK() && result.Text != "" {
			o.track(ctx, variant)
			return Reply{Text: result.Text, Backend: engine.Name()}, nil
		}
		o.logger.Warn("generation failed, falling back",
			"component", "orchestrator",
			"service", engine.Name(),
			"variant", variant.String(),
			"error", errString(result.Err),
		)
	}

	canned := generation.Canned{}
	return Reply{Text: canned.Generate(ctx, req).Text, Backend: canned.Name(), Canned: true}, nil
}
