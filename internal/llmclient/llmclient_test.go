package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type decision struct {
	Agents []string `json:"agents"`
}

func TestStubChat(t *testing.T) {
	stub := NewStub("hello there")

	reply, err := stub.Chat(context.Background(), "sys", "hi")
	require.NoError(t, err)
	require.Equal(t, "hello there", reply)

	require.Len(t, stub.Calls(), 1)
	require.Equal(t, "sys", stub.Calls()[0].SystemPrompt)
}

func TestStubChatJSON(t *testing.T) {
	stub := NewStub()
	stub.PushJSON(decision{Agents: []string{"security-reviewer"}})

	var d decision
	err := stub.ChatJSON(context.Background(), "sys", "prompt", &d)
	require.NoError(t, err)
	require.Equal(t, []string{"security-reviewer"}, d.Agents)
}

func TestStubChatJSONFencedReply(t *testing.T) {
	stub := NewStub("```json\n{\"agents\":[\"style-reviewer\"]}\n```")

	var d decision
	err := stub.ChatJSON(context.Background(), "sys", "prompt", &d)
	require.NoError(t, err)
	require.Equal(t, []string{"style-reviewer"}, d.Agents)
}

func TestStubExhausted(t *testing.T) {
	stub := NewStub("only one")

	_, err := stub.Chat(context.Background(), "", "a")
	require.NoError(t, err)

	_, err = stub.Chat(context.Background(), "", "b")
	require.Error(t, err)
}

func TestStubMultiTurn(t *testing.T) {
	stub := NewStub("round one", "round two")

	session, err := stub.MultiTurn(context.Background(), "sys")
	require.NoError(t, err)
	defer session.Close()

	r1, err := session.Send(context.Background(), "first")
	require.NoError(t, err)
	require.Equal(t, "round one", r1)

	r2, err := session.Send(context.Background(), "second")
	require.NoError(t, err)
	require.Equal(t, "round two", r2)
}

func TestStripFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no lang", "```\n{\"a\":1}\n```", `{"a":1}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, stripFence(tc.in))
		})
	}
}
