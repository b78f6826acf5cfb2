package usage

import "strings"

// MaxMultiplier caps the repetition multiplier accepted from callers.
const MaxMultiplier = 1000

// UserMessages is the default sample conversation input.
var UserMessages = []string{
	"I need to build a simple website for my small business. What's the best approach?",
	"I sell handmade leather goods like wallets, belts, and bags. I want to showcase my products and accept orders online. My budget is limited.",
	"I have some basic technical knowledge but I'm not a developer. Can you recommend a simple solution that won't require much coding?",
	"I like the website builder idea. Which one would you recommend for an e-commerce site that's easy to set up and affordable?",
	"That sounds good. What about SEO? How can I make sure my site ranks well in search results?",
}

// AssistantReply is the default sample response.
const AssistantReply = "There are several approaches to building a business website, depending on your technical skills, budget, and specific needs:\n\n" +
	"1. Website builders (easiest): Services like Wix, Squarespace, or Shopify offer drag-and-drop interfaces to create professional-looking sites without coding knowledge.\n\n" +
	"2. WordPress (flexible): A popular platform that offers more customization but has a steeper learning curve than website builders.\n\n" +
	"3. Custom development (most control): Hiring a developer or agency to build a custom site offers maximum flexibility but is more expensive.\n\n" +
	"What type of business do you have, and what functionality do you need on your website?"

// Sample is a pair of texts priced against each model.
type Sample struct {
	Input  string `json:"input" yaml:"input"`
	Output string `json:"output" yaml:"output"`
}

// DefaultSample returns the built-in sample conversation.
func DefaultSample() Sample {
	lines := make([]string, len(UserMessages))
	for i, msg := range UserMessages {
		lines[i] = "User: " + msg
	}
	return Sample{
		Input:  strings.Join(lines, "\n\n"),
		Output: "Assistant: " + AssistantReply,
	}
}

// Scaled applies a repetition multiplier to both texts, clamped to
// [1, MaxMultiplier].
func (s Sample) Scaled(n int) Sample {
	n = min(max(n, 1), MaxMultiplier)
	return Sample{
		Input:  WithMultiplier(s.Input, n),
		Output: WithMultiplier(s.Output, n),
	}
}

// Cost prices the sample against the given per-million prices.
func (s Sample) Cost(inputPrice, outputPrice *float64) TotalCost {
	return CalculateTotalCost(s.Input, s.Output, inputPrice, outputPrice)
}
