package synthesis

import (
	"encoding/json"
	"fmt"

	"github.com/platform-factory/backend/internal/analysis"
	"github.com/platform-factory/backend/internal/sector"
)

const systemPrompt = `You are a solutions architect. From a structured requirement analysis and the industry sector context, produce a technical specification for the requested platform.
The request may be Arabic, English or mixed; keep names in the language of the request.

Respond with a single JSON object and nothing else:
{
  "platform": {"name": "string", "type": "string", "compliance": ["string"]},
  "architecture": {
    "frontend": {"name": "string", "features": ["string"]},
    "backend": {"name": "string", "features": ["string"]},
    "database": {"name": "string", "features": ["string"]},
    "security": {"name": "string", "features": ["string"]},
    "infrastructure": {"name": "string", "features": ["string"]}
  },
  "features": [{"id": "f1", "name": "string", "description": "string", "priority": "must|should|could|wont", "complexity": 1, "estimatedHours": 1, "dependencies": ["f0"]}],
  "integrations": [{"name": "string", "type": "string", "required": true}],
  "timeline": {"phases": [{"name": "string", "durationWeeks": 1, "deliverables": ["string"]}], "totalWeeks": 1},
  "budget": {"development": 0, "infrastructure": 0, "maintenance": 0, "currency": "USD"}
}

Rules:
- Complexity is an integer from 1 to 10. Dependencies reference feature ids from the same list.
- Respect every compliance requirement and the security level of the sector context.`

func userPrompt(a analysis.Result, sc sector.Context) (string, error) {
	analysisJSON, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("marshal analysis: %w", err)
	}
	sectorJSON, err := json.Marshal(sc)
	if err != nil {
		return "", fmt.Errorf("marshal sector context: %w", err)
	}
	return fmt.Sprintf("Requirement analysis:\n%s\n\nSector context:\n%s", analysisJSON, sectorJSON), nil
}
