package config

import "github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"

var defaultModels = []string{"gemini-2.5-flash", "gemini-2.5-flash-lite", "gemini-2.5-pro"}

func defaultPrompt() Prompt {
	return Prompt{
		ContextDescription: "NHS health conditions and medical information",
		NotFoundMessage:    "No relevant NHS health information is available to answer this question.",
	}
}

func defaultMessages() domain.UserMessages {
	return domain.UserMessages{
		NotFound:      "No relevant NHS information was found for this question.",
		Validation:    "Please enter a question about a health condition.",
		Retrieval:     "We could not search the NHS information right now. Please try again.",
		Generation:    "We could not write an answer right now. Please try again.",
		Configuration: "The assistant is not configured correctly. Please contact the administrator.",
	}
}
