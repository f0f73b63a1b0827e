package persona

import "fmt"

// Persona bundles a system prompt with capability flags. A persona without a system
// instruction drives the image generator instead of the chat.
type Persona struct {
	ID                string `json:"id" toml:"id"`
	Name              string `json:"name" toml:"name"`
	SystemInstruction string `json:"systemInstruction,omitempty" toml:"system_instruction"`
	Grounding         bool   `json:"grounding,omitempty" toml:"grounding"`
}

// IsChat reports whether the persona can hold a conversation.
func (p Persona) IsChat() bool {
	return p.SystemInstruction != ""
}

// Greeting 返回会话开场白，同一 persona 始终得到相同文本。
func Greeting(p Persona) string {
	if p.IsChat() {
		return fmt.Sprintf("Hello! I'm %s. How can I help you today?", p.Name)
	}
	return "This persona is for image generation. Please select a different persona to chat."
}

// ImageGeneratorID is the id of the built-in image persona.
const ImageGeneratorID = "image-generator"

// Seed provides the built-in persona catalog.
func Seed() []Persona {
	return []Persona{
		{
			ID:                "general-assistant",
			Name:              "General Assistant",
			SystemInstruction: "You are a friendly and helpful general-purpose AI assistant. Be curious, knowledgeable, and polite.",
		},
		{
			ID:                "creative-writer",
			Name:              "Creative Writer",
			SystemInstruction: "You are a creative writer, specializing in short stories, poems, and scripts. Your tone should be imaginative, evocative, and inspiring.",
		},
		{
			ID:                "code-wizard",
			Name:              "Code Wizard",
			SystemInstruction: "You are an expert programmer and code assistant. Provide clear, efficient, and well-documented code. Explain complex concepts simply. Default to TypeScript for examples unless another language is specified.",
		},
		{
			ID:   "frontend-pro",
			Name: "Frontend Pro",
			SystemInstruction: "You are an expert frontend developer. When asked to build a component or page, output one self-contained HTML file " +
				"with all CSS in <style> and all JS in <script>, ready for the browser. Wrap the entire file in a markdown code fence " +
				"using the language 'html-preview'.",
		},
		{
			ID:   "data-analyst",
			Name: "Data Analyst",
			SystemInstruction: "You are a world-class Data Analyst AI. When a user gives you data: acknowledge and summarize it, " +
				"perform a thorough analysis of trends, comparisons, relationships and distributions (use web search to find relevant benchmarks), " +
				"recommend suitable visualizations (bar, line, scatter, pie) explaining why each fits and giving a short text example, " +
				"and finish with a bulleted list of actionable insights.",
			Grounding: true,
		},
		{
			ID:                "research-expert",
			Name:              "Research Expert",
			SystemInstruction: "You are a research expert who uses web search to find the most up-to-date and relevant information. Always cite your sources.",
			Grounding:         true,
		},
		{
			ID:   ImageGeneratorID,
			Name: "Image Generator",
		},
	}
}
