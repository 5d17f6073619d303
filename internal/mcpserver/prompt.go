package mcpserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// analysisPromptBody is the shared analyst briefing. Each server prepends its
// topic line and its own tool/resource section.
const analysisPromptBody = `**Analysis Objectives:**
- Create a comprehensive analytical narrative
- Develop data-driven insights using SQL queries
- Generate visualizations to support conclusions
- Provide strategic recommendations

---

**Data Management Guidelines:**
1. Use the complete dataset (no sampling) unless otherwise specified
2. Ensure data integrity and accuracy in all analyses

---

**Core Analysis Areas:** *(These depend on the topic and may vary)*
1. **Data Overview**
   - Data distribution and summaries
   - Temporal trends
   - Geographic patterns
   - Category breakdowns

2. **Key Entity Analysis**
   - Identify significant entities (e.g., customers, products, events)
   - Examine relationships and networks
   - Analyze behavior patterns

3. **In-depth Investigation**
   - Perform detailed analysis on areas of interest
   - Identify correlations and causations
   - Detect anomalies or outliers

4. **Predictive Insights**
   - Forecast future trends
   - Highlight emerging patterns
   - Assess opportunities and risks

---

**Visualization Requirements:**
- For each visualization, include a clear title, subtitle explaining the context, and concise conclusions presented in clear language.
- Begin with a brief introduction addressing the overall question or objective.
- Conclude with key takeaways, suggestions for further analysis, and potential caveats that should be considered.

---

**Design Principles:**
- Use clear and straightforward designs
- Ensure visualizations are easy to interpret
- Utilize libraries and tools available in your environment
- Make the analysis self-contained (no external dependencies unless specified)

---

**Analysis Process:**
1. **Explore Available Data**
   - Examine relevant tables and their relationships
   - Identify key data points and metrics
   - Assess data quality and completeness

2. **Initial Findings**
   - Share preliminary observations with the user
   - Discuss potential directions for deeper analysis
   - Align on priorities based on user interests

3. **Detailed Analysis**
   - Execute targeted SQL queries
   - Create visualizations and charts
   - Document findings and insights

4. **Recommendations**
   - Summarize key findings
   - Provide actionable recommendations
   - Suggest next steps or areas for further investigation

To begin the analysis, first explore the available data relevant to the topic and share your initial findings with the user. Then, discuss potential directions for deeper analysis based on their specific interests and the data available.

**IMPORTANT:** Never use placeholder data or estimates. Every number you provide must be based on actual data from the database unless the user explicitly states otherwise.`

func analysisPrompt(topic, toolSection string) string {
	return fmt.Sprintf("As an expert data analyst specializing in SQL databases, your goal is to help analyze and derive insights about the following topic: %s\n\n---\n\n**Available Tools and Resources:**\n<mcp>\n%s\n</mcp>\n\n---\n\n%s",
		topic, toolSection, analysisPromptBody)
}

// analysisPromptHandler builds a GetPrompt handler that fills the template
// with the caller's topic and the backend's tool section. A missing topic is
// a protocol error, not an embedded one.
func analysisPromptHandler(descriptionFormat, toolSection string) server.PromptHandlerFunc {
	return func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		topic := req.Params.Arguments["topic"]
		if topic == "" {
			return nil, errors.New("missing required argument: topic")
		}
		return mcp.NewGetPromptResult(
			fmt.Sprintf(descriptionFormat, topic),
			[]mcp.PromptMessage{
				mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(analysisPrompt(topic, toolSection))),
			},
		), nil
	}
}
