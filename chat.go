package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"secure_messenger/internal/client"
	"secure_messenger/internal/logging"
)

func newChatCommand() *cobra.Command {
	var (
		url      string
		name     string
		avatar   string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join a relay from the terminal",
		Long: `chat connects to a relay and reads lines from standard input.

Plain lines are encrypted for every other member of the current room.
Commands:
  /to <id|name>   send following lines to one peer only (/to alone resets)
  /room <name>    move to another room
  /who            list the current room
  /ttl <ms>       ask receivers to hide messages after ms (0 disables)
  /quit           leave`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Setup(logLevel, "text", cmd.ErrOrStderr()); err != nil {
				return err
			}
			c, err := client.Dial(cmd.Context(), client.Options{URL: url, Username: name, Avatar: avatar})
			if err != nil {
				return err
			}
			defer c.Close()

			go printEvents(cmd.OutOrStdout(), c)
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), c)
		},
	}
	cmd.Flags().StringVar(&url, "url", "ws://localhost:3000/ws", "relay websocket URL")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&avatar, "avatar", "👤", "avatar shown to peers")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

type chatState struct {
	to  string
	ttl time.Duration
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, c *client.Client) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var state chatState
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			fmt.Fprintln(out, "* disconnected")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleLine(ctx, out, c, &state, strings.TrimSpace(line))
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, out io.Writer, c *client.Client, state *chatState, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		if state.to != "" {
			return false, c.SendMessage(ctx, state.to, line, state.ttl)
		}
		sent, err := c.SendToRoom(ctx, line, state.ttl)
		if err == nil && sent == 0 {
			fmt.Fprintln(out, "* nobody else is in this room")
		}
		return false, err
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit":
		return true, nil
	case "/to":
		if arg == "" {
			state.to = ""
			fmt.Fprintln(out, "* sending to the room")
			return false, nil
		}
		peer, ok := c.Session().FindPeer(arg)
		if !ok {
			return false, fmt.Errorf("no peer %q in the roster", arg)
		}
		state.to = peer.ID
		fmt.Fprintf(out, "* sending to %s (%s)\n", peer.Username, peer.ID)
	case "/room":
		if arg == "" {
			return false, fmt.Errorf("usage: /room <name>")
		}
		return false, c.JoinRoom(ctx, arg)
	case "/who":
		self, _ := c.Session().Self()
		for _, m := range c.Session().Roster() {
			marker := " "
			if m.ID == self.ID {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s %s (%s) in %s\n", marker, m.Avatar, m.Username, m.ID, m.Room)
		}
	case "/ttl":
		ms, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || ms < 0 {
			return false, fmt.Errorf("usage: /ttl <milliseconds>")
		}
		state.ttl = time.Duration(ms) * time.Millisecond
	default:
		return false, fmt.Errorf("unknown command %s", cmd)
	}
	return false, nil
}

func printEvents(out io.Writer, c *client.Client) {
	for ev := range c.Events() {
		if line, ok := formatEvent(ev); ok {
			fmt.Fprintln(out, line)
		}
	}
}

// formatEvent renders one event as a terminal line. Every message arrives
// addressed to this client, room fan-out included, so none is labelled.
func formatEvent(ev client.Event) (string, bool) {
	switch e := ev.(type) {
	case client.RosterUpdated:
		return fmt.Sprintf("* %d in %s", len(e.Members), e.Self.Room), true
	case client.SystemNotice:
		return "* " + e.Text, true
	case client.MessageReceived:
		suffix := ""
		if e.Content.Expires() {
			suffix = fmt.Sprintf(" [hides after %s]", e.Content.Lifetime())
		}
		return fmt.Sprintf("%s: %s%s", e.Username, e.Content.Text, suffix), true
	case client.TypingChanged:
		// too noisy for a line terminal
	case client.SignalReceived:
		return fmt.Sprintf("* %s from %s ignored", e.Kind, e.From), true
	}
	return "", false
}
