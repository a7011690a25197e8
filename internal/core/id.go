package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewTaskID returns a fresh opaque task identifier of the form
// "taskid-xxxx-xxxx". Identifiers are never reused.
func NewTaskID() string {
	hexid := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("taskid-%s-%s", hexid[:4], hexid[4:8])
}
