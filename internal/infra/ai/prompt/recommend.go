package prompt

import "fmt"

// GetSystemPrompt returns the system prompt for recommendation generation.
func GetSystemPrompt() string {
	return `You are a workplace wellbeing assistant. Given a burnout risk level ` +
		`derived from a voice analysis, respond with a JSON object of the form ` +
		`{"recommendations": ["...", "...", "..."]} containing at most three short, ` +
		`practical suggestions in the user's language. Never give medical diagnoses ` +
		`and never mention the analysis mechanism.`
}

// GetUserPrompt builds the user message for a scored analysis.
func GetUserPrompt(level string, score float64) string {
	return fmt.Sprintf("Burnout risk level: %s. Risk score: %.2f. Suggest up to three recommendations.", level, score)
}
