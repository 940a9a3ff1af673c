package assistant

import "strings"

// DeflectionTriggers are phrases asking for a longer answer than the
// document assistant gives. Matching is a case-insensitive substring test.
var DeflectionTriggers = []string{
	"in detail",
	"detailed explanation",
	"explain in depth",
	"in depth",
	"in-depth",
	"elaborate",
	"step by step",
	"step-by-step",
	"comprehensive",
	"thorough explanation",
	"explain thoroughly",
	"explain everything",
	"full explanation",
	"long answer",
	"walk me through",
	"break it down",
}

// DeflectionReply redirects the user from the document assistant to the mentor.
const DeflectionReply = "That sounds like it needs a longer, more detailed answer than I give here. " +
	"Open a Study Buddy conversation for a full explanation that draws on all of your documents " +
	"and quiz history. I'm happy to keep helping with quick questions about this document."

// Deflection is the result of a trigger match.
type Deflection struct {
	Reply          string
	SkipGeneration bool
}

// Deflect returns a Deflection when text contains a trigger phrase, nil otherwise.
// Only document (pdf) sessions are checked: the mentor in a general session is
// where DeflectionReply sends the user, so HandleMessage never deflects there.
func Deflect(text string) *Deflection {
	lower := strings.ToLower(text)
	for _, trigger := range DeflectionTriggers {
		if strings.Contains(lower, trigger) {
			return &Deflection{Reply: DeflectionReply, SkipGeneration: true}
		}
	}
	return nil
}
