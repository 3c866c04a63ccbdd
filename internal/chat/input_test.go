package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInputBufferAppendTranscript(t *testing.T) {
	var buf InputBuffer

	buf.AppendTranscript("note to self")
	assert.Equal(t, "note to self", buf.Text())

	// A second transcript lands after a single separating space
	buf.AppendTranscript("and another thing")
	assert.Equal(t, "note to self and another thing", buf.Text())
}

func TestInputBufferAppendTranscriptKeepsTypedText(t *testing.T) {
	var buf InputBuffer

	buf.Set("typed so far")
	buf.AppendTranscript("spoken part")
	assert.Equal(t, "typed so far spoken part", buf.Text())
}

func TestInputBufferEmptyTranscriptIsIgnored(t *testing.T) {
	var buf InputBuffer

	buf.Set("typed")
	buf.AppendTranscript("")
	assert.Equal(t, "typed", buf.Text())
}

func TestInputBufferClear(t *testing.T) {
	var buf InputBuffer

	buf.Set("pending")
	buf.Clear()
	assert.Empty(t, buf.Text())
}
