package checkpointer

import (
	"fmt"
	"time"
)

// timeLayout sorts lexically in time order and is safe in filenames
const timeLayout = "20060102T150405.000000000Z"

// FileTimer returns a function which appends to filename the UTC time
// of the call as read from now, or from the wall clock if now is nil
func FileTimer(filename, extension string, now func() time.Time) func() string {
	extension = dotted(extension)
	if now == nil {
		now = time.Now
	}
	return func() string {
		return fmt.Sprintf("%v-%v%v", filename, now().UTC().Format(timeLayout),
			extension)
	}
}
