package render

import (
	"testing"

	"agentchat/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delta(s string) core.ServerMessage {
	return core.ServerMessage{Type: core.MessageDelta, Content: s}
}

func TestDeltaReRendersWholeBuffer(t *testing.T) {
	r := New()
	_, err := r.Submit("hi")
	require.NoError(t, err)

	first := r.Apply(delta("**bo"))
	assert.Equal(t, UpdateEntryAdded, first.Kind)
	assert.Equal(t, "**bo", first.Entry.Raw)

	second := r.Apply(delta("ld**"))
	assert.Equal(t, UpdateEntryAppended, second.Kind)
	assert.Equal(t, "ld**", second.Text)
	assert.Equal(t, "**bold**", second.Entry.Raw)
	assert.Equal(t, "<p><strong>bold</strong></p>\n", second.Entry.HTML)

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, RoleUser, entries[0].Role)
	assert.Equal(t, RoleAssistant, entries[1].Role)
	assert.True(t, r.Streaming())
}

func TestMessageReplacesCurrentTurn(t *testing.T) {
	r := New()
	_, err := r.Submit("hi")
	require.NoError(t, err)

	r.Apply(delta("draft"))
	update := r.Apply(core.ServerMessage{Type: core.MessageContent, Content: "final *answer*"})
	assert.Equal(t, UpdateEntryReplaced, update.Kind)
	assert.Equal(t, "final *answer*", update.Entry.Raw)
	assert.Equal(t, "<p>final <em>answer</em></p>\n", update.Entry.HTML)
	assert.Len(t, r.Entries(), 2)
}

func TestMessageWithoutTurnAddsEntry(t *testing.T) {
	r := New()
	update := r.Apply(core.ServerMessage{Type: core.MessageContent, Content: "standalone"})
	assert.Equal(t, UpdateEntryAdded, update.Kind)
	assert.False(t, r.Streaming(), "a message alone does not open a turn")

	r.Apply(delta("next"))
	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "standalone", entries[0].Raw)
	assert.Equal(t, "next", entries[1].Raw)
}

func TestIdleAndAbortedResetTurn(t *testing.T) {
	for _, end := range []string{core.MessageIdle, core.MessageAborted} {
		t.Run(end, func(t *testing.T) {
			r := New()
			_, err := r.Submit("hi")
			require.NoError(t, err)
			r.Apply(delta("one"))

			r.Apply(core.ServerMessage{Type: end})
			assert.False(t, r.Streaming())
			assert.False(t, r.Busy())

			r.Apply(delta("two"))
			var assistant []string
			for _, e := range r.Entries() {
				if e.Role == RoleAssistant {
					assistant = append(assistant, e.Raw)
				}
			}
			assert.Equal(t, []string{"one", "two"}, assistant)
		})
	}
}

func TestBusyGating(t *testing.T) {
	r := New()
	assert.False(t, r.Busy())

	_, err := r.Submit("   ")
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	cmd, err := r.Submit(" first ")
	require.NoError(t, err)
	assert.Equal(t, core.Command{Type: core.CommandSendMessage, Prompt: "first"}, cmd)
	assert.True(t, r.Busy())

	_, err = r.Submit("second")
	assert.ErrorIs(t, err, ErrBusy)

	for _, release := range []core.ServerMessage{
		{Type: core.MessageIdle},
		{Type: core.MessageAborted},
		{Type: core.MessageError, Message: "boom"},
		{Type: core.MessageSessionCreated},
	} {
		_, err := r.Submit("again")
		require.NoError(t, err)
		require.True(t, r.Busy())

		r.Apply(release)
		assert.False(t, r.Busy(), release.Type)
	}

	_, err = r.Submit("later")
	require.NoError(t, err)
	r.Apply(delta("streaming"))
	r.Apply(core.ServerMessage{Type: core.MessageToolStart, Tool: "ls"})
	assert.True(t, r.Busy(), "progress events keep the request in flight")
}

func TestErrorKeepsTurnOpen(t *testing.T) {
	r := New()
	_, err := r.Submit("hi")
	require.NoError(t, err)
	r.Apply(delta("partial"))

	update := r.Apply(core.ServerMessage{Type: core.MessageError, Message: "model overloaded"})
	assert.Equal(t, RoleSystem, update.Entry.Role)
	assert.Equal(t, "Error: model overloaded", update.Entry.Raw)
	assert.True(t, r.Streaming())
}

func TestAttachmentsGoWithNextPrompt(t *testing.T) {
	r := New()
	ref := core.AttachmentRef{Path: "/srv/uploads/abc", Name: "notes.txt"}
	r.Attach(ref)

	cmd, err := r.Submit("read this")
	require.NoError(t, err)
	assert.Equal(t, []core.AttachmentRef{ref}, cmd.Attachments)

	r.Apply(core.ServerMessage{Type: core.MessageIdle})
	cmd, err = r.Submit("and again")
	require.NoError(t, err)
	assert.Empty(t, cmd.Attachments)
}

func TestReasoningAccumulatesPerID(t *testing.T) {
	r := New()
	r.Apply(core.ServerMessage{Type: core.MessageReasoningDelta, ReasoningID: "a", Content: "thin"})
	r.Apply(core.ServerMessage{Type: core.MessageReasoningDelta, ReasoningID: "b", Content: "other"})
	r.Apply(core.ServerMessage{Type: core.MessageReasoningDelta, ReasoningID: "a", Content: "king"})

	assert.Equal(t, []Reasoning{{ID: "a", Content: "thinking"}, {ID: "b", Content: "other"}}, r.Reasoning())

	r.Apply(core.ServerMessage{Type: core.MessageReasoning, ReasoningID: "a", Content: "thinking hard"})
	assert.Equal(t, "thinking hard", r.Reasoning()[0].Content)
}

func TestRunningTools(t *testing.T) {
	r := New()
	_, err := r.Submit("hi")
	require.NoError(t, err)
	r.Apply(delta("checking"))

	r.Apply(core.ServerMessage{Type: core.MessageToolStart, Tool: "ls"})
	r.Apply(core.ServerMessage{Type: core.MessageToolStart, Tool: "grep"})
	r.Apply(core.ServerMessage{Type: core.MessageToolStart, Tool: "ls"})
	assert.Equal(t, []string{"grep", "ls"}, r.RunningTools())

	r.Apply(core.ServerMessage{Type: core.MessageToolEnd, Tool: "ls"})
	assert.Equal(t, []string{"grep", "ls"}, r.RunningTools())
	r.Apply(core.ServerMessage{Type: core.MessageToolEnd, Tool: "ls"})
	assert.Equal(t, []string{"grep"}, r.RunningTools())

	r.Apply(core.ServerMessage{Type: core.MessageIdle})
	assert.Empty(t, r.RunningTools())

	entries := r.Entries()
	assert.Equal(t, []string{"ls", "grep", "ls"}, entries[len(entries)-1].Tools)
}

func TestSessionLifecycle(t *testing.T) {
	r := New()
	_, err := r.Submit("hi")
	require.NoError(t, err)
	r.Apply(delta("partial"))

	cmd := r.NewSession("m1", "reviewer")
	assert.Equal(t, core.Command{Type: core.CommandCreateSession, Model: "m1", Agent: "reviewer"}, cmd)
	assert.Empty(t, r.Entries())
	assert.False(t, r.Busy())
	assert.False(t, r.Streaming())

	name := "Reviewer"
	update := r.Apply(core.ServerMessage{Type: core.MessageSessionCreated, Model: "m1", Agent: &name})
	assert.Equal(t, "Session started with @Reviewer using m1", update.Text)

	update = r.Apply(core.ServerMessage{Type: core.MessageSessionCreated})
	assert.Equal(t, "Session started using default model", update.Text)

	assert.Equal(t, UpdateNone, r.Apply(core.ServerMessage{Type: "pong"}).Kind)
}

func TestTranscriptEscapesHTML(t *testing.T) {
	r := New()
	_, err := r.Submit("<b>me</b>")
	require.NoError(t, err)
	r.Apply(delta("<script>alert(1)</script>\n\nok"))

	out := r.Transcript()
	assert.Contains(t, out, `<div class="message user">&lt;b&gt;me&lt;/b&gt;</div>`)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "<p>ok</p>")
}
