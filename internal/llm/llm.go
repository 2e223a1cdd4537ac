package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/rangelog/internal/completion"
	"github.com/joescharf/rangelog/internal/models"
)

// DebriefInput is everything the coach sees about a finished session.
type DebriefInput struct {
	DrillName string
	Config    models.DrillConfig
	Stats     models.SessionStats
	Gates     []completion.Gate
	Duration  time.Duration
	Score     *float64
}

// Debrief is the coaching summary returned by the model.
type Debrief struct {
	Summary     string   `json:"summary"`
	FocusPoints []string `json:"focus_points"`
}

// Client wraps the Anthropic API for session debriefs.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string, extra ...option.RequestOption) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	opts = append(opts, extra...)
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildDebriefPrompt constructs the system and user prompts for a debrief.
func buildDebriefPrompt(in DebriefInput) (system string, user string) {
	system = `You are a firearms training coach reviewing one range session. Return a JSON object with exactly two fields:

- "summary": 2-4 sentences on how the session went against the drill's requirements
- "focus_points": 1-3 short, concrete things to practice next time

Rules:
- Accuracy only counts manually reported hits; scanned paper targets contribute dispersion, not accuracy
- Refer to failed requirements by name when there are any
- Do not invent numbers that are not in the input
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	name := in.DrillName
	if name == "" {
		name = "custom drill"
	}
	fmt.Fprintf(&sb, "Drill: %s (%s targets", name, in.Config.TargetType)
	if in.Config.Goal != "" {
		fmt.Fprintf(&sb, ", goal %s", in.Config.Goal)
	}
	sb.WriteString(")\n")
	fmt.Fprintf(&sb, "Duration: %s\n", in.Duration.Round(time.Second))

	st := in.Stats
	fmt.Fprintf(&sb, "Targets: %d (%d paper, %d tactical)\n", st.TargetCount, st.PaperTargets, st.TacticalTargets)
	fmt.Fprintf(&sb, "Shots: %d, hits: %d\n", st.TotalShots, st.TotalHits)
	fmt.Fprintf(&sb, "Accuracy: %.2f%% (%d/%d manual)\n", st.AccuracyPct, st.ManualHits, st.ManualShots)
	if st.AvgDispersionCM != nil {
		fmt.Fprintf(&sb, "Dispersion: avg %.2f cm, best %.2f cm\n", *st.AvgDispersionCM, *st.BestDispersionCM)
	}
	if st.AvgTimeSeconds != nil {
		fmt.Fprintf(&sb, "Time per target: avg %.2f s, fastest %.2f s\n", *st.AvgTimeSeconds, *st.FastestTimeSeconds)
	}
	if st.TacticalTargets > 0 {
		fmt.Fprintf(&sb, "Stages cleared: %d\n", st.StagesCleared)
	}
	if in.Score != nil {
		fmt.Fprintf(&sb, "Score: %.1f\n", *in.Score)
	}

	if len(in.Gates) > 0 {
		sb.WriteString("\nRequirements:\n")
		for _, g := range in.Gates {
			verdict := "passed"
			if !g.Passed {
				verdict = "FAILED"
			}
			fmt.Fprintf(&sb, "- %s: %s (required %s, actual %s)\n", g.Name, verdict, g.Required, g.Actual)
		}
	}
	user = sb.String()
	return
}

// Debrief asks the model for a coaching summary of a session.
func (c *Client) Debrief(ctx context.Context, in DebriefInput) (*Debrief, error) {
	systemPrompt, userPrompt := buildDebriefPrompt(in)

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("no text content in API response")
	}
	return parseDebrief(text)
}

func parseDebrief(text string) (*Debrief, error) {
	// Strip markdown fencing if present
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var d Debrief
	if err := json.Unmarshal([]byte(text), &d); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return &d, nil
}
