package pipeline

import (
	"DocRAG/backend/go/internal/rag_service/rag/schema"
	"fmt"
	"strings"
)

// DefaultContextBudget is the character budget for assembled context.
const DefaultContextBudget = 1000

// SystemDirective is the fixed instruction placed ahead of the retrieved context.
const SystemDirective = "You are a document assistant. Answer the user's question using only the context below. " +
	"If the context does not contain the information needed to answer, say explicitly that the provided documents do not contain the answer. " +
	"Do not use outside knowledge."

const noContextNote = "(no relevant document content was found)"

// BuildContext groups results by source and renders them after SystemDirective.
//
// Groups keep the order in which their source first appears in results, and hits keep their
// rank order inside a group. Whole groups are added while the running character total is
// below budget; the check happens before each group, so the first group is always included.
// A budget of zero or less selects DefaultContextBudget.
func BuildContext(results []schema.SearchResult, budget int) string {
	if budget <= 0 {
		budget = DefaultContextBudget
	}

	var order []string
	groups := make(map[string][]string)
	for _, r := range results {
		if _, ok := groups[r.SourceID]; !ok {
			order = append(order, r.SourceID)
		}
		groups[r.SourceID] = append(groups[r.SourceID], r.Content)
	}

	var sb strings.Builder
	sb.WriteString(SystemDirective)
	sb.WriteString("\n\nContext:\n")

	if len(order) == 0 {
		sb.WriteString(noContextNote)
		return sb.String()
	}

	used := 0
	for i, source := range order {
		if used >= budget {
			break
		}
		group := renderGroup(source, groups[source])
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(group)
		used += len([]rune(group))
	}
	return sb.String()
}

func renderGroup(source string, contents []string) string {
	return fmt.Sprintf("from source %s:\n%s", source, strings.Join(contents, "\n\n"))
}
