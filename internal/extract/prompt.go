package extract

import (
	"fmt"
	"strings"
)

// maxPromptContent caps the page text embedded in the prompt.
const maxPromptContent = 24000

const systemPrompt = `You extract structured data from job and opportunity postings. Respond with a single JSON object and nothing else: no prose, no markdown.`

const promptTemplate = `Extract the opportunity described below into a JSON object with exactly these keys:

{
  "company_name": string or null,
  "job_title": string or null,
  "opportunity_type": one of "internship", "full_time", "research", "fellowship", "scholarship", or null,
  "role_type": string or null,
  "relevant_majors": array of strings or null,
  "deadline": "YYYY-MM-DD" or null,
  "requirements": string or null,
  "location": string or null,
  "description": string or null
}

Rules:
- company_name: the hiring organization, not a job board or recruiting platform.
- job_title: the position title exactly as posted.
- opportunity_type: lowercase token from the list above. Summer, co-op and student positions are "internship"; permanent roles are "full_time"; lab or academic research positions are "research".
- role_type: a short functional area such as "Software Engineering", "Data Science", "Marketing" or "Finance".
- relevant_majors: fields of study the posting asks for or that clearly fit the role, e.g. ["Computer Science", "Mathematics"].
- deadline: the application deadline as a calendar date in YYYY-MM-DD form. Use null for rolling or unstated deadlines.
- requirements: qualifications and skills, condensed to a few sentences.
- location: city and region, or "Remote".
- description: two or three sentences summarizing the role.

Prefer a partial answer over null: if a field can reasonably be inferred from the posting, fill it in. Use null only when there is no basis at all.

%s`

// BuildPrompt renders the user prompt for a URL or for page text. Text
// takes precedence when both are present.
func BuildPrompt(in Input) string {
	if content := strings.TrimSpace(in.Content); content != "" {
		if r := []rune(content); len(r) > maxPromptContent {
			content = string(r[:maxPromptContent])
		}
		src := "Posting text:\n\"\"\"\n" + content + "\n\"\"\""
		if in.URL != "" {
			src = "Source URL: " + in.URL + "\n\n" + src
		}
		return fmt.Sprintf(promptTemplate, src)
	}
	return fmt.Sprintf(promptTemplate, "Posting URL: "+in.URL)
}
