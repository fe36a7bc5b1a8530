package progressbar

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressBar(t *testing.T) {
	var out bytes.Buffer
	p := New(&out, 10, 4)
	assert.Equal(t, 0.0, p.Progress())

	p.Increment()
	p.Increment()
	assert.Equal(t, 0.5, p.Progress())
	assert.Equal(t, 5, strings.Count(p.String(), "█"))
	assert.Contains(t, p.String(), "50.00%")

	p.Set(10)
	assert.Equal(t, 1.0, p.Progress())
	p.Set(-1)
	assert.Equal(t, 0.0, p.Progress())

	p.SetLabel("level 2")
	p.Display()
	assert.Contains(t, out.String(), "level 2")
}
