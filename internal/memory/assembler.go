package memory

import (
	"fmt"
	"strings"

	"context"

	"github.com/folioworks/portfolio-assistant/internal/model"
	"github.com/folioworks/portfolio-assistant/pkg/logger"
)

const (
	personalHeader = "## Relevant Past Conversations"
	globalHeader   = "## Relevant Conversations From Other Learners"
	promptDivider  = "---"
)

// Assembler builds the grounded prompt for one turn from memory search
// results.
type Assembler struct {
	index         *Index
	globalEnabled bool
	log           *logger.Logger
}

// NewAssembler creates a context assembler over the index.
func NewAssembler(index *Index, globalEnabled bool, log *logger.Logger) *Assembler {
	return &Assembler{
		index:         index,
		globalEnabled: globalEnabled,
		log:           log.With("component", "context_assembler"),
	}
}

// Assemble prepends retrieved memory to userText. Search failures degrade
// to no context; when nothing is retrieved the original text passes
// through unchanged with hadContext=false.
func (a *Assembler) Assemble(ctx context.Context, userText string, scope model.OwnerScope, chatID string) (prompt string, hadContext bool) {
	opts := QueryOptions{ExcludeChatID: chatID}

	personal, err := a.index.Query(ctx, userText, scope, opts)
	if err != nil {
		a.log.Warn("personal memory search failed, continuing without context", "user_id", scope.UserID, "error", err)
		personal = nil
	}

	var global []model.MemoryRecord
	if a.globalEnabled {
		global, err = a.index.QueryGlobal(ctx, userText, opts)
		if err != nil {
			a.log.Warn("global memory search failed, continuing without context", "user_id", scope.UserID, "error", err)
			global = nil
		}
	}

	if len(personal) == 0 && len(global) == 0 {
		return userText, false
	}

	var b strings.Builder
	writeSection(&b, personalHeader, personal)
	writeSection(&b, globalHeader, global)
	b.WriteString(promptDivider)
	b.WriteString("\n\n")
	b.WriteString(userText)

	return b.String(), true
}

// writeSection renders one numbered "[role]: content" list. Empty
// sections emit nothing, headers included.
func writeSection(b *strings.Builder, header string, records []model.MemoryRecord) {
	if len(records) == 0 {
		return
	}
	b.WriteString(header)
	b.WriteString("\n")
	for i, rec := range records {
		fmt.Fprintf(b, "%d. [%s]: %s\n", i+1, rec.Role, rec.Text)
	}
	b.WriteString("\n")
}
