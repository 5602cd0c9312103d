package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/LukaHietala/live/client"
	"github.com/LukaHietala/live/protocol"
)

var (
	// The relay to connect to
	serverAddr string

	// The name to join the session with
	userName string
)

func init() {
	flags := ClientCmd.Flags()

	flags.StringVar(&serverAddr, "addr", "127.0.0.1:8080", "The relay server address")
	flags.StringVarP(&userName, "name", "n", "pomeranian", "The name to join the session with")
}

var ClientCmd = &cobra.Command{
	Use:   "client",
	Short: "Join a relay session interactively",
	Long: `Join a relay session interactively

Arrow keys broadcast cursor moves, [e] broadcasts a content edit and
[f] asks the host for it's file listing. When you are the host,
incoming requests are answered with a canned listing so two terminals
are enough to watch the whole protocol at work.`,
	RunE: runClient,
}

// sessionView is everything the demo knows about the room, rebuilt
// purely from the events the server pushes.
type sessionView struct {
	session client.Session
	isHost  bool

	cursorX int
	cursorY int

	peers  map[int]string
	events []string
}

type keyPress struct {
	char rune
	key  keyboard.Key
}

func runClient(cmd *cobra.Command, args []string) error {
	conn := client.New(zap.NewNop())
	if err := conn.Connect(context.Background(), serverAddr); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", serverAddr, err)
	}
	defer conn.Disconnect()

	handshakeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := conn.Handshake(handshakeCtx, userName)
	if err != nil {
		return fmt.Errorf("handshake rejected: %w", err)
	}

	view := &sessionView{
		session: session,
		isHost:  session.IsHost,
		peers:   make(map[int]string),
	}
	view.remember(fmt.Sprintf("joined as %s", session.Name))

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if err := keyboard.Open(); err != nil {
		return fmt.Errorf("failed to initialize keyboard: %w", err)
	}
	defer keyboard.Close()

	keyCh := make(chan keyPress)
	go func() {
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			keyCh <- keyPress{char: char, key: key}
		}
	}()

	// Request answers arrive from their own goroutine
	answers := make(chan string, 1)

	printSession(view)

	for {
		select {
		case <-ticker.C:
			printSession(view)

		case msg, ok := <-conn.Events():
			if !ok {
				fmt.Println("\nServer closed the connection")
				return nil
			}

			handleEvent(conn, view, msg)
			printSession(view)

		case line := <-answers:
			view.remember(line)
			printSession(view)

		case press := <-keyCh:
			if quit := handleKey(conn, view, press, answers); quit {
				fmt.Println("\nLeaving the session")
				return nil
			}
			printSession(view)

		case <-sigCh:
			fmt.Println("\nLeaving the session")
			return nil
		}
	}
}

func handleKey(conn *client.Conn, view *sessionView, press keyPress, answers chan<- string) bool {
	switch press.key {
	case keyboard.KeyArrowUp:
		view.cursorY--
		broadcastCursor(conn, view)
		return false

	case keyboard.KeyArrowDown:
		view.cursorY++
		broadcastCursor(conn, view)
		return false

	case keyboard.KeyArrowLeft:
		view.cursorX--
		broadcastCursor(conn, view)
		return false

	case keyboard.KeyArrowRight:
		view.cursorX++
		broadcastCursor(conn, view)
		return false

	case keyboard.KeyEsc, keyboard.KeyCtrlC:
		return true
	}

	switch press.char {
	case 'e', 'E':
		content := fmt.Sprintf("edit from %s at %s", view.session.Name, time.Now().Format("15:04:05"))

		if err := conn.Broadcast(protocol.EventUpdateContent, map[string]interface{}{
			"content": content,
		}); err != nil {
			view.remember("broadcast failed: " + err.Error())
		} else {
			view.remember("you edited the content")
		}

	case 'f', 'F':
		if view.isHost {
			view.remember("you are the host, nobody to ask")
			break
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			answer, err := conn.Request(ctx, "request_files", nil)
			if err != nil {
				answers <- "request failed: " + err.Error()
				return
			}

			answers <- "host answered: " + string(answer.Raw())
		}()

		view.remember("asked the host for it's files")

	case 'l', 'L':
		if err := conn.Broadcast(protocol.EventCursorLeave, nil); err != nil {
			view.remember("broadcast failed: " + err.Error())
		} else {
			view.remember("you parked your cursor")
		}

	case 'q', 'Q':
		return true
	}

	return false
}

func broadcastCursor(conn *client.Conn, view *sessionView) {
	if view.cursorX < 0 {
		view.cursorX = 0
	}
	if view.cursorY < 0 {
		view.cursorY = 0
	}

	err := conn.Broadcast(protocol.EventCursorMove, map[string]interface{}{
		"position": []int{view.cursorX, view.cursorY},
	})
	if err != nil {
		view.remember("broadcast failed: " + err.Error())
	}
}

func handleEvent(conn *client.Conn, view *sessionView, msg protocol.Message) {
	switch msg.Event() {
	case protocol.EventUserJoined:
		id, _ := msg.ID()
		name, _ := msg.Name()
		view.peers[id] = name
		view.remember(fmt.Sprintf("%s joined", name))

	case protocol.EventNameChanged:
		id, _ := msg.ID()
		newName := gjson.GetBytes(msg.Raw(), "new_name").Str
		view.remember(fmt.Sprintf("%s is now called %s", view.peers[id], newName))
		view.peers[id] = newName

	case protocol.EventUserLeft:
		id, _ := msg.ID()
		name, _ := msg.Name()
		delete(view.peers, id)
		view.remember(fmt.Sprintf("%s left", name))

	case protocol.EventNewHost:
		name, _ := msg.Name()
		view.isHost = name == view.session.Name
		if view.isHost {
			view.remember("you are the host now")
		} else {
			view.remember(fmt.Sprintf("%s is the host now", name))
		}

	case protocol.EventError:
		errType, errMessage := msg.ErrorInfo()
		if errType != "" {
			view.remember(fmt.Sprintf("server error (%s): %s", errType, errMessage))
		} else {
			view.remember("server error: " + errMessage)
		}

	default:
		if id, ok := msg.RequestID(); ok {
			if from, forwarded := msg.FromID(); forwarded {
				// We are the host, so requests land here
				if err := conn.Reply(id, map[string]interface{}{
					"files": []string{"main.go", "README.md"},
				}); err != nil {
					view.remember("failed to answer a request: " + err.Error())
					return
				}

				view.remember(fmt.Sprintf("answered request %d from client %d", id, from))
				return
			}
		}

		name := "someone"
		if n, ok := msg.Name(); ok {
			name = n
		}

		switch msg.Event() {
		case protocol.EventCursorMove:
			view.remember(fmt.Sprintf("%s moved their cursor to %s", name, gjson.GetBytes(msg.Raw(), "position").Raw))

		case protocol.EventUpdateContent:
			view.remember(fmt.Sprintf("%s edited the content", name))

		case protocol.EventCursorLeave:
			view.remember(fmt.Sprintf("%s parked their cursor", name))

		default:
			view.remember(fmt.Sprintf("%s sent %s", name, msg.Event()))
		}
	}
}

func (v *sessionView) remember(line string) {
	v.events = append(v.events, line)
	if len(v.events) > 8 {
		v.events = v.events[len(v.events)-8:]
	}
}

func printSession(view *sessionView) {
	fmt.Print("\033[2J\033[H") // Clear screen and move cursor to top

	role := "member"
	if view.isHost {
		role = "host"
	}

	fmt.Printf("live session on %s\n", serverAddr)
	fmt.Printf("  You: %s (id %d, %s)\n", view.session.Name, view.session.ID, role)
	fmt.Printf("  Cursor: [%d, %d]\n", view.cursorX, view.cursorY)

	if len(view.peers) > 0 {
		fmt.Printf("  Peers:")
		for id, name := range view.peers {
			fmt.Printf(" %s(%d)", name, id)
		}
		fmt.Println()
	}

	fmt.Printf("\nRecent:\n")
	for _, line := range view.events {
		fmt.Printf("  %s\n", line)
	}

	fmt.Printf("\nControls:\n")
	fmt.Printf("  [arrows] Move your cursor\n")
	fmt.Printf("  [e] Edit the shared content\n")
	if !view.isHost {
		fmt.Printf("  [f] Ask the host for files\n")
	}
	fmt.Printf("  [l] Park your cursor\n")
	fmt.Printf("  [q] Quit gracefully\n")
}
