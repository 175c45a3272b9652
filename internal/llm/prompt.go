package llm

import (
	"encoding/json"
	"fmt"

	"github.com/digkill/LetterDesk/internal/models"
)

const (
	Temperature     float32 = 0.7
	MaxOutputTokens int32   = 1000
)

const promptTemplate = `You are an experienced Indian office professional and documentation expert.
Your task is to write a %s that is calm, polite, and follows standard Indian formal English.

Guidelines:
- Tone: Professional, respectful, and confident.
- Style: Standard Indian business letter format.
- Audience: Indian HR managers, Bank managers, Police officers, or College Principals.
- No Filler: Do not include introductory text. Just provide the letter content.

User Details provided:
%s

Length: Maximum 350 words.
Return ONLY the final document text ready for printing.`

// BuildPrompt renders the drafting instructions for one letter.
func BuildPrompt(docType models.DocType, fields map[string]string) string {
	if fields == nil {
		fields = map[string]string{}
	}
	details, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		details = []byte("{}")
	}
	return fmt.Sprintf(promptTemplate, docType, details)
}
