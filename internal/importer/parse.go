package importer

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/dagaz/internal/models"
)

var (
	bulletLineRe = regexp.MustCompile(`^(\s*)-\s+(.*)$`)
	checkboxRe   = regexp.MustCompile(`^\[([ x])\]\s*(?:\(([^)]+)\))?\s*(.*)$`)
)

// Block is one parsed outline line: the bullet payload plus an optional task
// state carried by checkbox syntax.
type Block struct {
	Payload   models.BulletPayload
	TaskState string
}

// ParseOutline converts a markdown outline into bullet payloads in document
// order. Only `- ` list lines are considered; two spaces (or one tab) of
// indentation nest one level. Depth is normalized against the enclosing
// bullet, so a file that jumps indentation still yields a consistent tree.
// Checkbox prefixes map to task states: `[x]` is done, `[ ] (Doing)` is
// doing, plain `[ ]` is open. Ids are generated here; span extraction is left
// to the materializer.
func ParseOutline(data []byte) []Block {
	var blocks []Block

	// raw tracks the indentation level seen in the file, depth the normalized
	// tree depth actually assigned; siblings at equal raw indentation share a
	// parent even when the file over-indents.
	type frame struct {
		id    string
		raw   int
		depth int
	}
	var stack []frame

	for _, line := range strings.Split(string(data), "\n") {
		m := bulletLineRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		indent := strings.ReplaceAll(m[1], "\t", "  ")
		rawDepth := len(indent) / 2
		rest := m[2]

		for len(stack) > 0 && stack[len(stack)-1].raw >= rawDepth {
			stack = stack[:len(stack)-1]
		}

		var parentID string
		depth := 0
		if len(stack) > 0 {
			parentID = stack[len(stack)-1].id
			depth = stack[len(stack)-1].depth + 1
		}

		text := rest
		taskState := ""
		if cm := checkboxRe.FindStringSubmatch(rest); cm != nil {
			switch {
			case cm[1] == "x":
				taskState = models.TaskDone
			case strings.EqualFold(cm[2], "doing"):
				taskState = models.TaskDoing
			default:
				taskState = models.TaskOpen
			}
			text = cm[3]
		}
		if text == "" {
			continue
		}

		id := uuid.NewString()
		blocks = append(blocks, Block{
			Payload: models.BulletPayload{
				BulletID: id,
				ParentID: parentID,
				Depth:    depth,
				Text:     text,
			},
			TaskState: taskState,
		})
		stack = append(stack, frame{id: id, raw: rawDepth, depth: depth})
	}

	return blocks
}
