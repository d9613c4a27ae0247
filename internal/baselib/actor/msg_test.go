package actor

// testMsg is the generic message type shared by this package's table
// and scenario tests; individual tests only care about routing and
// lifecycle behavior, not message content.
type testMsg struct {
	BaseMessage
	data string
}

func (m *testMsg) MessageType() string { return "testMsg" }

func newTestMsg(data string) *testMsg {
	return &testMsg{data: data}
}
