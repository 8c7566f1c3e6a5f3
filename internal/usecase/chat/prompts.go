package chat

import (
	"fmt"
	"strings"

	"github.com/harborview-labs/insight/internal/domain"
)

const basePreamble = `## Role and Expertise
You are the Chief Investment Analyst AI for Golden Gate Ventures, a premier investment management firm. Your expertise spans venture capital, private equity, public markets, and emerging investment opportunities.
`

// labelInstructions holds the per-label system prompt blocks.
var labelInstructions = map[domain.Label]string{
	domain.LabelFactual: `## Query Context: Factual Information Request
For this factual query, prioritize:
- Precise data points, figures, and metrics from the context
- Clear citation of sources where available
- Concise, direct answers without unnecessary elaboration
- Structured presentation of numerical data when relevant
`,
	domain.LabelAnalytical: `## Query Context: Analytical Request
For this analytical query, prioritize:
- Thorough examination of multiple perspectives and factors
- Connecting data points to reveal meaningful patterns and insights
- Balanced assessment of risks and opportunities
- Progressive disclosure of complex ideas with clear logical flow
- Strategic implications and actionable conclusions
`,
	domain.LabelFollowUp: `## Query Context: Follow-up Question
This appears to be a follow-up to our earlier discussion. Prioritize:
- Direct connection to previously discussed topics
- Contextual continuity with our conversation history
- Progressive building on established concepts
- Addressing any implicit assumptions from earlier exchanges
`,
	domain.LabelComparative: `## Query Context: Comparative Analysis Request
For this comparative query, prioritize:
- Side-by-side analysis of the compared elements
- Clear evaluation criteria and metrics
- Balanced assessment of strengths and weaknesses
- Visual organization to highlight key differences
- Contextual factors that influence the comparison
`,
	domain.LabelMarketOverview: `## Query Context: Market Overview Request
For this market overview query, prioritize:
- High-level industry trends and market dynamics
- Key market segments and their relative sizes
- Growth rates and market trajectory
- Major players and competitive landscape
- Macro factors influencing the market
- Visual representation of market structure when helpful
`,
	domain.LabelCompanyProfile: `## Query Context: Company Analysis Request
For this company-specific query, prioritize:
- Company background and core business model
- Key financial metrics and performance indicators
- Market position and competitive advantages
- Growth strategy and recent developments
- Risk factors and challenges
- Management team highlights if available
`,
	domain.LabelGeneral: `## Query Context: Investment Intelligence Request
Deliver investment intelligence that is:
- Thoroughly researched (based exclusively on the provided context)
- Precisely articulated (with specific metrics, figures, and dates)
- Professionally presented (with clear structure)
- Actionable for investment decision-making
`,
}

const universalRequirements = `## Universal Response Requirements
1. Extract relevant information from the context that directly addresses the query
2. Include specific metrics and figures when available
3. Only use information contained in the provided context material
4. Begin with a concise executive summary or key takeaway
5. Maintain awareness of our entire conversation history
`

const numericStyle = `## Numeric Presentation
- Use thousands separators for large numbers
- Round decimals to two places
- Use M/B notation for amounts in the millions or billions
`

// dataHeavyLabels get the numeric-formatting style block appended.
var dataHeavyLabels = map[domain.Label]bool{
	domain.LabelFactual:        true,
	domain.LabelComparative:    true,
	domain.LabelMarketOverview: true,
	domain.LabelCompanyProfile: true,
}

// contextHeaders title the source-material section per label.
var contextHeaders = map[domain.Label]string{
	domain.LabelFactual:        "### Factual Information Sources",
	domain.LabelAnalytical:     "### Analysis Source Material",
	domain.LabelComparative:    "### Comparative Analysis Sources",
	domain.LabelFollowUp:       "### Additional Context for Follow-up",
	domain.LabelMarketOverview: "### Market Research Sources",
	domain.LabelCompanyProfile: "### Company Information Sources",
	domain.LabelGeneral:        "### Source Material",
}

// queryFraming holds the per-label query header and closing instruction of
// the final user message. Empty instruction means no closing sentence.
var queryFraming = map[domain.Label]struct {
	header      string
	instruction string
}{
	domain.LabelFollowUp: {
		"### Follow-up Query",
		"Remember to connect this to our previous discussion points and answer in context of our conversation history.",
	},
	domain.LabelComparative: {
		"### Comparative Analysis Request",
		"Present a balanced and structured comparison of the elements mentioned.",
	},
	domain.LabelAnalytical: {
		"### Analysis Request",
		"Provide strategic insights and connect different data points into a cohesive analysis.",
	},
	domain.LabelFactual: {
		"### Factual Query",
		"Provide precise information with specific figures and metrics where available.",
	},
	domain.LabelMarketOverview: {
		"### Market Overview Request",
		"Provide a comprehensive view of market dynamics, trends, and competitive landscape.",
	},
	domain.LabelCompanyProfile: {
		"### Company Analysis Request",
		"Provide a concise company profile with key metrics and performance indicators.",
	},
	domain.LabelGeneral: {
		"### Current Query",
		"",
	},
}

// systemMessage composes the first system message: preamble, label
// instruction block, universal requirements, and a numeric style block for
// data-heavy labels.
func systemMessage(label domain.Label) string {
	instructions, ok := labelInstructions[label]
	if !ok {
		instructions = labelInstructions[domain.LabelGeneral]
	}

	var sb strings.Builder
	sb.WriteString(basePreamble)
	sb.WriteString("\n")
	sb.WriteString(instructions)
	sb.WriteString("\n")
	sb.WriteString(universalRequirements)
	if dataHeavyLabels[label] {
		sb.WriteString("\n")
		sb.WriteString(numericStyle)
	}
	return sb.String()
}

// memoryMessage wraps the rolling summary as a second system message.
func memoryMessage(summary string) string {
	return "## Conversation Memory\nKey topics and information from previous exchanges:\n\n" + summary
}

// contextMessage builds the final user message: briefing header, delineated
// source material, and the raw query under a label-specific framing.
func contextMessage(userMessage string, docs []domain.RetrievedDocument, label domain.Label) string {
	header, ok := contextHeaders[label]
	if !ok {
		header = contextHeaders[domain.LabelGeneral]
	}
	framing, ok := queryFraming[label]
	if !ok {
		framing = queryFraming[domain.LabelGeneral]
	}

	var sb strings.Builder
	sb.WriteString("## Investment Intelligence Briefing\n\n")
	sb.WriteString(header)
	sb.WriteString("\n")
	sb.WriteString(formatSources(docs, label))
	sb.WriteString("\n\n")
	sb.WriteString(framing.header)
	sb.WriteString("\n")
	sb.WriteString(userMessage)
	sb.WriteString("\n\n")
	if framing.instruction != "" {
		sb.WriteString(framing.instruction)
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatSources joins retrieved texts with blank lines. Multiple chunks get
// "SOURCE i:" delineation, except for follow-ups which keep the running
// conversational shape.
func formatSources(docs []domain.RetrievedDocument, label domain.Label) string {
	if len(docs) <= 1 || label == domain.LabelFollowUp {
		texts := make([]string, 0, len(docs))
		for _, d := range docs {
			texts = append(texts, d.Text)
		}
		return strings.Join(texts, "\n\n")
	}

	parts := make([]string, 0, len(docs))
	for i, d := range docs {
		text := strings.TrimSpace(d.Text)
		if text == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("SOURCE %d:\n%s", i+1, text))
	}
	return strings.Join(parts, "\n\n")
}

const titlePromptTemplate = `Create a very concise title (maximum 4 words) for a chat conversation that starts with this message:
"%s"

The title should:
- Be 1-4 words total
- Capture the main topic or intent
- Be specific rather than generic
- NOT include phrases like "Chat about" or "Conversation regarding"
- Just return the title itself with no other text or formatting`
