package analysis

import (
	"fmt"

	"github.com/platform-factory/backend/internal/language"
)

const systemPrompt = `You are a requirements analyst for a platform factory that turns plain descriptions into software platforms.
Requests arrive in English, Arabic or a mix of both. Analyse the meaning regardless of language.
أنت محلل متطلبات. قد تصل الطلبات بالعربية أو الإنجليزية أو بمزيج منهما، فحلل المعنى بغض النظر عن اللغة.

Respond with a single JSON object and nothing else, using exactly these keys:
{
  "intents": [{"action": "create|modify|delete|query|analyze|deploy|configure", "target": "string", "parameters": {}, "confidence": 0.0, "context": ["string"]}],
  "entities": {
    "entities": [{"id": "e1", "type": "platform|feature|user|data|workflow|integration|security", "value": "string", "confidence": 0.0, "span": {"start": 0, "end": 0}}],
    "relationships": [{"source": "e1", "target": "e2", "type": "string"}]
  },
  "sentiment": "positive|neutral|negative",
  "urgency": "low|medium|high|critical",
  "complexity": "simple|moderate|complex|enterprise",
  "keywords": ["string"],
  "summary": "string",
  "suggestedActions": ["string"]
}

Rules:
- Include at least one intent. Confidence values are between 0 and 1.
- Spans are character offsets into the request text.
- Relationships may only reference entity ids you defined.
- Write the summary and suggested actions in the language of the request.`

func userPrompt(text string, lang language.Code) string {
	return fmt.Sprintf("Detected language: %s\n\nRequest:\n%s", lang, text)
}
