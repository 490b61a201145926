package handlers

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/branch-queue/internal/events"
)

func TestWriteEventFraming(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	event := events.Event{ID: "e1", Seq: 42, Type: events.EventTicketCalled, BranchID: "b1", TicketID: "t1"}

	require.NoError(t, writeEvent(w, event))
	require.NoError(t, w.Flush())

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "id: 42\nevent: ticket.called\ndata: {"), out)
	assert.True(t, strings.HasSuffix(out, "}\n\n"), out)
	assert.Contains(t, out, `"ticket_id":"t1"`)
	assert.Equal(t, 1, strings.Count(out, "\ndata: "))
}

func TestSplitListAndOptional(t *testing.T) {
	assert.Equal(t, []string{"WAITING", "CALLED"}, splitList(" WAITING, ,CALLED "))
	assert.Empty(t, splitList(""))
	assert.Nil(t, optional(""))
	require.NotNil(t, optional("b1"))
	assert.Equal(t, "b1", *optional("b1"))
}
