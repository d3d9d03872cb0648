package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure_messenger/internal/client"
	"secure_messenger/internal/key_exchange"
	"secure_messenger/internal/protocol"
)

func nextMessage(t *testing.T, c *client.Client) client.MessageReceived {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if msg, ok := ev.(client.MessageReceived); ok {
				return msg
			}
		case <-timeout:
			t.Fatal("no message received")
		}
	}
}

func TestChatCommands(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	alice, err := client.Dial(ctx, client.Options{URL: f.wsURL(), Username: "alice"})
	require.NoError(t, err)
	defer alice.Close()
	bob, err := client.Dial(ctx, client.Options{URL: f.wsURL(), Username: "bob"})
	require.NoError(t, err)
	defer bob.Close()

	require.Eventually(t, func() bool {
		return len(alice.Session().Roster()) == 2 && len(bob.Session().Roster()) == 2
	}, 3*time.Second, 10*time.Millisecond)

	var out bytes.Buffer
	var state chatState

	quit, err := handleLine(ctx, &out, alice, &state, "/ttl 1500")
	require.NoError(t, err)
	assert.False(t, quit)
	assert.Equal(t, 1500*time.Millisecond, state.ttl)

	_, err = handleLine(ctx, &out, alice, &state, "/ttl -1")
	assert.Error(t, err)

	_, err = handleLine(ctx, &out, alice, &state, "hello room")
	require.NoError(t, err)
	msg := nextMessage(t, bob)
	assert.Equal(t, "hello room", msg.Content.Text)
	assert.Equal(t, int64(1500), msg.Content.TTL)

	_, err = handleLine(ctx, &out, alice, &state, "/to BOB")
	require.NoError(t, err)
	self, _ := bob.Session().Self()
	assert.Equal(t, self.ID, state.to)

	_, err = handleLine(ctx, &out, alice, &state, "/to nobody")
	assert.Error(t, err)

	_, err = handleLine(ctx, &out, alice, &state, "/who")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "alice")
	assert.Contains(t, out.String(), "bob")

	_, err = handleLine(ctx, &out, alice, &state, "/dance")
	assert.Error(t, err)

	quit, err = handleLine(ctx, &out, alice, &state, "/quit")
	require.NoError(t, err)
	assert.True(t, quit)
}

func TestRunChatStopsAtEOF(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	alice, err := client.Dial(ctx, client.Options{URL: f.wsURL(), Username: "alice"})
	require.NoError(t, err)
	defer alice.Close()

	var out bytes.Buffer
	require.NoError(t, runChat(ctx, strings.NewReader("/room Annex\n"), &out, alice))
}

func TestFormatEvent(t *testing.T) {
	cases := []struct {
		name string
		ev   client.Event
		want string
	}{
		{"message", client.MessageReceived{From: "u1", Username: "alice", Content: key_exchange.MessageContent{Text: "hi all"}}, "alice: hi all"},
		{"expiring", client.MessageReceived{Username: "alice", Content: key_exchange.MessageContent{Text: "psst", TTL: 1500}}, "alice: psst [hides after 1.5s]"},
		{"notice", client.SystemNotice{Text: "bob has left."}, "* bob has left."},
		{"roster", client.RosterUpdated{Members: make([]protocol.Member, 2), Self: protocol.Member{Room: "Lobby"}}, "* 2 in Lobby"},
		{"signal", client.SignalReceived{Kind: protocol.TypeOffer, From: "u2"}, "* OFFER from u2 ignored"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line, ok := formatEvent(tc.ev)
			require.True(t, ok)
			assert.Equal(t, tc.want, line)
		})
	}

	_, ok := formatEvent(client.TypingChanged{From: "u2", IsTyping: true})
	assert.False(t, ok)
}

func TestRoomMessagesAreNotLabelledDirect(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	alice, err := client.Dial(ctx, client.Options{URL: f.wsURL(), Username: "alice"})
	require.NoError(t, err)
	defer alice.Close()
	bob, err := client.Dial(ctx, client.Options{URL: f.wsURL(), Username: "bob"})
	require.NoError(t, err)
	defer bob.Close()

	require.Eventually(t, func() bool {
		return len(alice.Session().Roster()) == 2 && len(bob.Session().Roster()) == 2
	}, 3*time.Second, 10*time.Millisecond)

	var out bytes.Buffer
	var state chatState
	_, err = handleLine(ctx, &out, alice, &state, "hello room")
	require.NoError(t, err)

	line, ok := formatEvent(nextMessage(t, bob))
	require.True(t, ok)
	assert.Equal(t, "alice: hello room", line)
	assert.NotContains(t, line, "direct")
}
