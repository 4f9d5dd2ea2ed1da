package conversation

import (
	"fmt"
	"strings"

	"github.com/user/pdfchat/internal/types"
)

// FormatReferences renders sources in retrieval order as the body of a
// references message.
func FormatReferences(sources []types.SourceRef) string {
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = fmt.Sprintf("• Source %d (%s):\n%s", i+1, s.Document, s.Excerpt)
	}
	return "References:\n\n" + strings.Join(parts, "\n\n")
}
