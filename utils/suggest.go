package utils

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/raushankrgupta/mystery-message/config"
	"google.golang.org/api/option"
)

const suggestPrompt = "Create a list of three open-ended and engaging questions formatted as a single string. " +
	"Each question should be separated by '||'. These questions are for an anonymous social messaging platform " +
	"and should be suitable for a diverse audience. Avoid personal or sensitive topics, focusing instead on " +
	"universal themes that encourage friendly interaction. For example, your output should be structured like " +
	"this: 'What's a hobby you've recently started?||If you could have dinner with any historical figure, who " +
	"would it be?||What's a simple thing that makes you happy?'. Ensure the questions are intriguing, foster " +
	"curiosity, and contribute to a positive and welcoming conversational environment."

// SuggestMessages asks Gemini for three '||'-separated message starters.
// The caller bounds ctx; the whole call is expected to finish within 30 seconds.
func SuggestMessages(ctx context.Context) (string, error) {
	if config.GeminiAPIKey == "" {
		return "", fmt.Errorf("GEMINI_API_KEY is not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.GeminiAPIKey))
	if err != nil {
		return "", fmt.Errorf("failed to create Gemini client: %v", err)
	}
	defer client.Close()

	model := client.GenerativeModel("gemini-1.5-flash")
	resp, err := model.GenerateContent(ctx, genai.Text(suggestPrompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate suggestions: %v", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	suggestions := strings.TrimSpace(sb.String())
	if suggestions == "" {
		return "", fmt.Errorf("no content generated")
	}
	return suggestions, nil
}
