package service

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/corval/docqa-service/internal/model"
	registryllm "github.com/corval/docqa-service/internal/registry/llm"
	"github.com/corval/docqa-service/internal/security"
)

// NoResultsAnswer is returned when nothing in the index scores above the
// similarity threshold for a question.
const NoResultsAnswer = "No results from the API."

// ChatResponse is the end-to-end answer for one question.
type ChatResponse struct {
	Answer    string            `json:"answer"`
	Citations []model.Citation  `json:"citations,omitempty"`
	Hidden    []model.HiddenDoc `json:"hidden,omitempty"`
}

// ChatOrchestrator wires retrieval, context assembly and the chat model into
// the question-answering flow.
type ChatOrchestrator struct {
	retriever *DualRetriever
	assembler *ContextAssembler
	chat      registryllm.ChatModel
}

func NewChatOrchestrator(retriever *DualRetriever, assembler *ContextAssembler, chat registryllm.ChatModel) *ChatOrchestrator {
	return &ChatOrchestrator{retriever: retriever, assembler: assembler, chat: chat}
}

// Ask answers a question for the given identity. Unknown template names are a
// caller error reported before any retrieval work.
func (o *ChatOrchestrator) Ask(ctx context.Context, identity security.Identity, question, templateName string) (*ChatResponse, error) {
	tmpl, ok := LookupTemplate(templateName)
	if !ok {
		return nil, &UnknownTemplateError{Name: templateName}
	}

	result, err := o.retriever.Retrieve(ctx, question, identity)
	if err != nil {
		return nil, err
	}
	if result.Empty() {
		log.Debug("No retrieval results", "user", identity.Email)
		return &ChatResponse{Answer: NoResultsAnswer}, nil
	}

	contextBlock := o.assembler.BuildContext(result.Accessible)
	prompt := tmpl(contextBlock, question)

	answer, err := o.chat.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	hidden, err := o.assembler.HiddenDocs(ctx, result.HiddenDocIDs)
	if err != nil {
		return nil, err
	}
	answer += HiddenNote(hidden)

	citations, err := o.assembler.Citations(ctx, result.AccessibleDocIDs)
	if err != nil {
		return nil, err
	}

	return &ChatResponse{Answer: answer, Citations: citations, Hidden: hidden}, nil
}

// UnknownTemplateError reports a template name outside the recognized set.
type UnknownTemplateError struct {
	Name string
}

func (e *UnknownTemplateError) Error() string {
	return fmt.Sprintf("unknown template %q; valid: %s, %s", e.Name, TemplatePlain, TemplateFinancial)
}
