package rerank

import (
	"fmt"
	"strings"
)

// ModelFamily selects the prompt template and response-parser chain for a
// model. It is resolved once per rerank call, not re-matched per document.
type ModelFamily int

const (
	// FamilyGeneric is the default for unmatched model identifiers.
	FamilyGeneric ModelFamily = iota

	// FamilyBGE covers BGE-style rerankers, which answer with a bare
	// relevance number.
	FamilyBGE

	// FamilyQwen covers Qwen-style rerankers, which answer with a yes/no
	// judgment inside a thinking block.
	FamilyQwen
)

// String returns the family name for logging.
func (f ModelFamily) String() string {
	switch f {
	case FamilyBGE:
		return "bge"
	case FamilyQwen:
		return "qwen"
	default:
		return "generic"
	}
}

// ResolveFamily maps a model identifier to its family by case-insensitive
// substring match.
func ResolveFamily(model string) ModelFamily {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "bge"):
		return FamilyBGE
	case strings.Contains(m, "qwen"):
		return FamilyQwen
	default:
		return FamilyGeneric
	}
}

// FormatPrompt builds the scoring prompt for one query/document pair. This
// is a total function: every input produces exactly one prompt.
func (f ModelFamily) FormatPrompt(query, content, instruction string) string {
	switch f {
	case FamilyBGE:
		return fmt.Sprintf("Instruction: %s\nQuery: %s\nDocument: %s\nRelevance:",
			instruction, query, content)

	case FamilyQwen:
		var sb strings.Builder
		sb.WriteString("<|im_start|>system\n")
		sb.WriteString(`Judge whether the Document meets the requirements based on the Query and the Instruct provided. Note that the answer can only be "yes" or "no".`)
		sb.WriteString("<|im_end|>\n")
		sb.WriteString("<|im_start|>user\n")
		fmt.Fprintf(&sb, "<Instruct>: %s\n<Query>: %s\n<Document>: %s", instruction, query, content)
		sb.WriteString("<|im_end|>\n")
		sb.WriteString("<|im_start|>assistant\n<think>\n")
		return sb.String()

	default:
		return fmt.Sprintf("Task: %s\nQuery: %s\nDocument: %s\n\nRate the relevance of the document to the query on a scale from 0.0 to 1.0.\nScore:",
			instruction, query, content)
	}
}
