package domain

import "strings"

// viewNameReplacer normalizes separator characters so the derived name is a
// valid identifier in the storage engine.
var viewNameReplacer = strings.NewReplacer("-", "_", ".", "_", ":", "_")

// ViewNameFor derives the view name for a parent id. The mapping is
// deterministic and reversible for uuid-shaped ids: every non-alphanumeric
// separator becomes an underscore.
func ViewNameFor(parentID string) string {
	return viewNameReplacer.Replace(parentID)
}
