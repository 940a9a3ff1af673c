package llm

import "context"

// PlaceholderReply is returned when no generation provider is configured.
const PlaceholderReply = "[Study Buddy is running without an AI provider] " +
	"I can't generate a tailored answer right now. Review your document's summary and key points, " +
	"and try again once an AI provider has been configured."

// Placeholder answers every prompt with PlaceholderReply. Its replies are
// not AI generated and are flagged as such to users.
type Placeholder struct{}

func (Placeholder) Name() string { return ProviderPlaceholder }

func (Placeholder) Generate(context.Context, string, Options) (string, error) {
	return PlaceholderReply, nil
}

func (Placeholder) GenerateStream(_ context.Context, _ string, _ Options, onChunk func(string)) (string, error) {
	if onChunk != nil {
		onChunk(PlaceholderReply)
	}
	return PlaceholderReply, nil
}
