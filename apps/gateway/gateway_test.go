package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mahaj/chat-core/pkg/model"
)

func TestGateway_HandleRelayRoutesForeignMessages(t *testing.T) {
	gw, _ := newTestGateway(10)
	bob := &captureConn{}
	gw.coordinator.OnConnect("bob", bob)

	msg := model.Message{ID: 1, ChatID: "c1", SenderID: "alice", RecipientID: "bob", Text: "from afar", CreatedAt: time.Now()}
	gw.handleRelay(model.RelayEnvelope{Origin: "other-gateway", Kind: model.RelayMessage, Message: &msg})

	messages := bob.byType(model.EventMessage)
	require.Len(t, messages, 1)
	require.Equal(t, "from afar", messages[0].Message.Text)
	require.Len(t, bob.byType(model.EventNotification), 1)
}

func TestGateway_HandleRelaySkipsOwnOrigin(t *testing.T) {
	gw, _ := newTestGateway(10)
	bob := &captureConn{}
	gw.coordinator.OnConnect("bob", bob)

	msg := model.Message{ID: 1, ChatID: "c1", SenderID: "alice", RecipientID: "bob", Text: "echo", CreatedAt: time.Now()}
	gw.handleRelay(model.RelayEnvelope{Origin: gw.origin, Kind: model.RelayMessage, Message: &msg})

	require.Empty(t, bob.byType(model.EventMessage), "own messages were already delivered at send time")
}

func TestGateway_HandleRelayDeliversTyping(t *testing.T) {
	gw, _ := newTestGateway(10)
	bob := &captureConn{}
	gw.coordinator.OnConnect("bob", bob)

	ev := model.TypingEvent{ChatID: "c1", UserID: "alice", RecipientID: "bob", IsTyping: true}
	gw.handleRelay(model.RelayEnvelope{Origin: "other-gateway", Kind: model.RelayTyping, Typing: &ev})

	typing := bob.byType(model.EventTyping)
	require.Len(t, typing, 1)
	require.True(t, typing[0].Typing.IsTyping)
}
