package service

import "fmt"

// TemplateName values accepted by the chat API.
const (
	TemplatePlain     = "plain"
	TemplateFinancial = "financial"
)

// promptTemplate renders a context block and question into a complete prompt.
type promptTemplate func(context, question string) string

var templates = map[string]promptTemplate{
	TemplatePlain: func(context, question string) string {
		return fmt.Sprintf(`
You are a helpful analyst. Use ONLY the context. If the context is not
sufficient to answer, reply exactly: "Insufficient context to answer."
Do not invent facts.

Context:
%s

Q: %s
A:`, context, question)
	},
	TemplateFinancial: func(context, question string) string {
		return fmt.Sprintf(`
Write a short financial memo. Use markdown headings. Base every statement
ONLY on the context below; if the context is insufficient, say
"Insufficient context to answer." instead of speculating.

<CONTEXT>
%s
</CONTEXT>

QUESTION: %s
ANSWER (memo style):`, context, question)
	},
}

// LookupTemplate returns the named prompt template, defaulting to plain when
// name is empty. Unknown names return false.
func LookupTemplate(name string) (promptTemplate, bool) {
	if name == "" {
		name = TemplatePlain
	}
	t, ok := templates[name]
	return t, ok
}
