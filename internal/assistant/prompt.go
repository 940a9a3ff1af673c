package assistant

import (
	"fmt"
	"strings"

	"github.com/studybuddy-platform/studybuddy/internal/documents"
	"github.com/studybuddy-platform/studybuddy/internal/memory"
	"github.com/studybuddy-platform/studybuddy/internal/performance"
	"github.com/studybuddy-platform/studybuddy/internal/retrieval"
)

const (
	documentMaxTokens = 400
	mentorMaxTokens   = 1200
)

const documentSystemPrompt = `You are PDF Buddy, a quick study assistant for the document %q.
Answer from the document material provided. Keep every answer to about 200 words.
If the material does not cover the question, say so in one sentence and suggest
asking Study Buddy for a broader explanation.`

const mentorSystemPrompt = `You are Study Buddy, a patient mentor who knows all of the student's
study material and quiz history. Give complete explanations of 200 to 500 words.
Connect ideas across documents when it helps, and point out weak topics from the
quiz results with a concrete suggestion for what to review next.`

// promptBuilder accumulates titled prompt sections.
type promptBuilder struct {
	b strings.Builder
}

func (p *promptBuilder) section(title string) {
	if p.b.Len() > 0 {
		p.b.WriteString("\n")
	}
	p.b.WriteString("## ")
	p.b.WriteString(title)
	p.b.WriteString("\n")
}

func (p *promptBuilder) line(format string, args ...any) {
	fmt.Fprintf(&p.b, format, args...)
	p.b.WriteString("\n")
}

func (p *promptBuilder) String() string {
	return p.b.String()
}

func (p *promptBuilder) matches(title string, matches []retrieval.Match) {
	p.section(title)
	for i, m := range matches {
		p.line("[%d] (%s, relevance %.2f) %s", i+1, m.Origin, m.Score, m.Excerpt)
	}
}

func (p *promptBuilder) summary(doc *documents.Document) bool {
	if doc.Summary == "" && len(doc.KeyPoints) == 0 {
		return false
	}
	p.section("Document summary")
	if doc.Summary != "" {
		p.line("%s", doc.Summary)
	}
	if len(doc.KeyPoints) > 0 {
		p.line("Key points:")
		for _, kp := range doc.KeyPoints {
			p.line("- %s", kp)
		}
	}
	return true
}

func (p *promptBuilder) attempts(title string, attempts []*performance.QuizAttempt) {
	if len(attempts) == 0 {
		return
	}
	p.section(title)
	for _, a := range attempts {
		p.line("- %s: %d/%d (%.0f%%) on %s", a.Topic, a.Correct, a.Total, a.Percent(), a.CompletedAt.Format("2006-01-02"))
	}
}

func (p *promptBuilder) topics(perf []*performance.TopicPerformance, limit int) {
	if len(perf) == 0 {
		return
	}
	if len(perf) > limit {
		perf = perf[:limit]
	}
	p.section("Topic performance (weakest first)")
	for _, t := range perf {
		p.line("- %s: average %.0f%%, best %.0f%% over %d attempts", t.Topic, t.AveragePct, t.BestPct, t.Attempts)
	}
}

func (p *promptBuilder) documents(docs []*documents.Document) {
	if len(docs) == 0 {
		return
	}
	p.section("Student's documents")
	for _, d := range docs {
		p.line("- %s (%d pages)", d.Title, d.PageCount)
	}
}

func (p *promptBuilder) history(turns []memory.Turn) {
	if len(turns) == 0 {
		return
	}
	p.section("Conversation so far")
	for _, t := range turns {
		speaker := "Student"
		if t.Role == memory.RoleAssistant {
			speaker = "Assistant"
		}
		p.line("%s: %s", speaker, t.Text)
	}
}

func (p *promptBuilder) question(text string) {
	p.section("Student question")
	p.line("%s", text)
}
