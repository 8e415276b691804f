package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
)

func buildSystemPrompt(settings domain.PromptSettings) string {
	return fmt.Sprintf(`You are a medical assistant answering health questions strictly from the provided %s context.

# Rules

1. Context only:
   - Use only information found in the context.
   - Do not speculate or add medical claims that the context does not state.

2. Format:
   - Answer clearly and concisely.
   - Use markdown bullet points ("*" or "-") for lists, one item per line, with a blank line before the first item.
   - Reproduce relevant markdown tables from the context with their structure intact.
   - Do not use code blocks.

3. Links:
   - Use only URLs that appear in the context. Never invent a URL.
   - Write links as markdown with descriptive text, for example [NHS ADHD information](https://www.nhs.uk/conditions/adhd-adults/). Never show bare URLs.

4. Citations:
   - Each context section starts with a marker such as [1]. Cite the markers of the sections you used.

5. Missing information:
   - If the context does not answer the question, or contains %s, reply exactly:
     "%s"`,
		settings.ContextDescription,
		domain.NoRelevantInformationMarker,
		settings.NotFoundMessage,
	)
}

// buildMessages orders the conversation as rules, retrieved context, question.
func buildMessages(settings domain.PromptSettings, assembled domain.AssembledContext, query string) []domain.ChatMessage {
	var contextMsg strings.Builder
	fmt.Fprintf(&contextMsg, "Here is the context from %s to use for the following question:\n\n", settings.ContextDescription)
	contextMsg.WriteString(assembled.Text)

	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: buildSystemPrompt(settings)},
		{Role: domain.RoleAssistant, Content: contextMsg.String()},
		{Role: domain.RoleUser, Content: query},
	}
}
