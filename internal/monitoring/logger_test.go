package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	orig := Logf
	defer func() { Logf = orig }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	Logf("stage %s done", "ratio")
	assert.Equal(t, "stage ratio done", got)

	SetLogger(nil)
	got = ""
	Logf("muted")
	assert.Empty(t, got)
}
