// Command sajilochat is an interactive terminal client for SajiloKaam
// messaging. It lists conversations, opens one and keeps its message thread
// in sync while the user types.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sudip6164/sajilokaam-sub003/internal/api"
	"github.com/sudip6164/sajilokaam-sub003/internal/config"
	"github.com/sudip6164/sajilokaam-sub003/internal/models"
	"github.com/sudip6164/sajilokaam-sub003/internal/session"
	"github.com/sudip6164/sajilokaam-sub003/internal/store"
	"github.com/sudip6164/sajilokaam-sub003/internal/transport"
)

var conversationID string

func main() {
	rootCmd := &cobra.Command{
		Use:   "sajilochat",
		Short: "SajiloKaam messaging client",
		Run:   runClient,
	}

	rootCmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "conversation id to open (defaults to the most recent)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runClient(cmd *cobra.Command, args []string) {
	cfg := config.Load()

	self := models.Identity{ID: cfg.UserID, Name: cfg.UserName, Avatar: cfg.UserAvatar}
	if self.ID == "" {
		log.Fatal("SAJILOKAAM_USER_ID must be set")
	}

	restClient := api.NewClient(cfg.APIBaseURL, cfg.APIToken)
	adapter := transport.NewAdapter(transport.Config{
		BaseURL: cfg.WSBaseURL,
		Token:   cfg.APIToken,
		OnStatus: func(connected bool) {
			if connected {
				fmt.Print("\r[reconnected]\n> ")
			} else {
				fmt.Print("\r[reconnecting...]\n> ")
			}
		},
	})

	st := store.New(self.ID)
	// The notify callback runs on the transport's delivery goroutine; it must
	// only learn the active conversation through sess.Active(), never through
	// the flag variable the stdin loop writes.
	var sess *session.Session
	sess = session.New(restClient, func(id string, h transport.Handler) io.Closer {
		return adapter.Subscribe(id, h)
	}, st, self,
		session.WithNotify(func(id string) { printLatest(st, self, id, sess.Active()) }),
		session.WithSendErrorHandler(func(id string, provisionalID int64, err error) {
			fmt.Printf("\r[send failed: %v]\n> ", err)
		}),
	)
	defer sess.Close()

	ctx := context.Background()
	if err := sess.Refresh(ctx); err != nil {
		log.Fatalf("Failed to load conversations: %v", err)
	}

	convs := st.Conversations()
	if len(convs) == 0 {
		log.Fatal("No conversations available")
	}

	fmt.Println("Conversations:")
	for _, c := range convs {
		marker := " "
		if c.UnreadCount > 0 {
			marker = fmt.Sprintf("(%d)", c.UnreadCount)
		}
		preview := ""
		if c.LastMessage != nil {
			preview = " — " + c.LastMessage.Content
		}
		fmt.Printf("  %s %s [%s]%s\n", marker, c.Participant.DisplayName, c.ID, preview)
	}

	if conversationID == "" {
		conversationID = convs[0].ID
	}
	if err := sess.Open(ctx, conversationID); err != nil {
		log.Printf("History load failed (retry with /open): %v", err)
	}

	for _, m := range st.Messages(conversationID) {
		printMessage(self, m)
	}

	handleStdin(ctx, sess)
}

// handleStdin reads terminal input and turns it into messaging operations.
// Plain lines are sent as messages; /edit, /del, /open and /quit are commands.
func handleStdin(ctx context.Context, sess *session.Session) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("Type a message, or /edit <id> <text>, /del <id>, /open <conversation>, /quit")
	fmt.Print("> ")

	for {
		input, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		input = strings.TrimSpace(input)

		switch {
		case input == "":
		case input == "/quit":
			return
		case strings.HasPrefix(input, "/open "):
			id := strings.TrimSpace(strings.TrimPrefix(input, "/open "))
			if err := sess.Open(ctx, id); err != nil {
				fmt.Printf("[ERROR] %v\n", err)
			} else {
				conversationID = id
			}
		case strings.HasPrefix(input, "/edit "):
			parts := strings.SplitN(input, " ", 3)
			if len(parts) < 3 {
				fmt.Println("[ERROR] Usage: /edit <id> <text>")
				break
			}
			id, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				fmt.Println("[ERROR] Invalid message id")
				break
			}
			if err := sess.Edit(ctx, conversationID, id, parts[2]); err != nil {
				fmt.Printf("[ERROR] %v\n", err)
			}
		case strings.HasPrefix(input, "/del "):
			id, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(input, "/del ")), 10, 64)
			if err != nil {
				fmt.Println("[ERROR] Invalid message id")
				break
			}
			if err := sess.Delete(ctx, conversationID, id); err != nil {
				fmt.Printf("[ERROR] %v\n", err)
			}
		default:
			if _, err := sess.Send(ctx, conversationID, input, nil); err != nil {
				fmt.Printf("[ERROR] %v\n", err)
			}
		}
		fmt.Print("> ")
	}
}

// printLatest re-renders the newest message of the conversation that changed.
// It runs on the transport's delivery goroutine, so the active conversation is
// passed in from the session rather than read from the package flag variable.
func printLatest(st *store.Store, self models.Identity, id, active string) {
	if id == "" || id != active {
		return
	}
	msgs := st.Messages(id)
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	// Own pending/confirmed messages are already on screen from the prompt
	if last.SenderID == self.ID {
		return
	}
	fmt.Print("\r")
	printMessage(self, last)
	fmt.Print("> ")
}

func printMessage(self models.Identity, m models.Message) {
	name := m.SenderName
	if m.SenderID == self.ID {
		name = "Me"
	}
	body := m.Content
	switch {
	case m.IsDeleted:
		body = "(deleted)"
	case m.Failed:
		body += " (failed)"
	case m.Pending:
		body += " (sending...)"
	case m.IsEdited:
		body += " (edited)"
	}
	fmt.Printf("[%s] #%d %s: %s\n", m.Timestamp.Local().Format("15:04:05"), m.ID, name, body)
}
