package llm

import (
	"context"
	"fmt"
	"strings"

	"promptroom/promptroom/apperrors"
)

// Orchestrator produces one model reply per call. No retries: the caller
// decides what a failure means.
type Orchestrator struct {
	client *Client
	caps   *CapabilityTable
}

func NewOrchestrator(client *Client, caps *CapabilityTable) *Orchestrator {
	return &Orchestrator{client: client, caps: caps}
}

// Complete builds a family-appropriate request from the room's current
// settings and recent history and returns the reply text.
func (o *Orchestrator) Complete(ctx context.Context, systemPrompt, model string, temperature float64, history []HistoryEntry) (string, error) {
	profile := o.caps.Profile(model)

	payload := map[string]interface{}{
		"model":    model,
		"messages": BuildRequestMessages(systemPrompt, history, !profile.SystemChannel),
	}
	if profile.CustomTemperature {
		payload["temperature"] = SanitizeTemperature(temperature)
	}
	if !profile.OmitTokenLimit {
		payload[profile.TokenLimitParam] = DefaultTokenLimit
	}

	reply, err := o.client.Complete(ctx, payload)
	if err != nil {
		return "", classify(err, model)
	}
	return reply, nil
}

// classify rewrites "unknown model" provider errors into an explanation of
// the likely causes, keeping the provider's own text. Everything else
// passes through intact.
func classify(err error, model string) error {
	ue, ok := apperrors.AsUpstream(err)
	if !ok {
		return err
	}
	if !looksLikeUnknownModel(ue.Message) {
		return err
	}
	return &apperrors.UpstreamError{
		Status: ue.Status,
		Message: fmt.Sprintf(
			"Модель %q недоступна. Возможные причины: нет доступа к этой модели, имя модели указано неверно, либо модель не опубликована. Ответ провайдера: %s",
			model, ue.Message,
		),
	}
}

func looksLikeUnknownModel(msg string) bool {
	m := strings.ToLower(msg)
	if !strings.Contains(m, "model") {
		return false
	}
	for _, marker := range []string{"does not exist", "not found", "do not have access", "invalid model", "unknown model"} {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}
