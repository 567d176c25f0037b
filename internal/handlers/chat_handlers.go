package handlers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"chatflow/internal/models"
	"chatflow/internal/services"
)

const chatHelp = `Commands:
  <text>          send a message
  /search <text>  show matching messages, /search alone clears the filter
  /list           print the conversation again
  /online         show who is online
  /retry          resend the last message that failed
  /switch <id>    open another conversation
  /quit           leave
`

// ChatHandlers is the interactive shell around one active conversation.
type ChatHandlers struct {
	chat          *services.ChatService
	conversations *services.ConversationService
	me            string
	out           *console

	mu         sync.Mutex
	activeID   string
	printed    map[string]struct{}
	peer       *models.User
	peerOnline bool
	unread     map[string]bool
	query      string
	draft      string
}

func NewChatHandlers(chat *services.ChatService, conversations *services.ConversationService, me string, out io.Writer) *ChatHandlers {
	h := &ChatHandlers{
		chat:          chat,
		conversations: conversations,
		me:            me,
		out:           newConsole(out),
		printed:       make(map[string]struct{}),
		unread:        make(map[string]bool),
	}
	chat.OnChange(h.render)
	chat.OnError(func(err error) { h.out.Printf("! %v\n", err) })
	conversations.OnChange(h.noticeUnread)
	return h
}

// Run opens conversationID and reads commands from in until /quit, end of
// input or cancellation.
func (h *ChatHandlers) Run(ctx context.Context, conversationID string, in io.Reader) error {
	if err := h.open(ctx, conversationID); err != nil {
		return err
	}
	defer h.chat.Teardown()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.out.Printf("Type /help for commands\n")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if h.handleLine(ctx, line) {
				return nil
			}
		}
	}
}

func (h *ChatHandlers) open(ctx context.Context, conversationID string) error {
	id, err := parseID(conversationID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	prev := h.activeID
	h.activeID = id
	h.mu.Unlock()

	conv, err := h.selectConversation(ctx, id)
	if err != nil {
		h.mu.Lock()
		h.activeID = prev
		h.mu.Unlock()
		return err
	}

	h.mu.Lock()
	h.printed = make(map[string]struct{})
	h.query = ""
	h.peer = nil
	h.peerOnline = false
	if peer, ok := services.Peer(conv, h.me); ok {
		h.peer = &peer
	}
	h.mu.Unlock()

	h.out.Printf("== %s ==\n", services.DisplayName(conv, h.me))

	if err := h.chat.Initialize(ctx, id); err != nil {
		return err
	}
	select {
	case <-h.chat.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (h *ChatHandlers) selectConversation(ctx context.Context, id string) (models.Conversation, error) {
	if err := h.conversations.Refresh(ctx); err != nil {
		return models.Conversation{}, fmt.Errorf("failed to load conversations: %w", err)
	}
	return h.conversations.Select(ctx, id)
}

// handleLine runs one line of input and reports whether the shell should
// exit.
func (h *ChatHandlers) handleLine(ctx context.Context, line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		h.send(line)
		return false
	}

	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		h.out.Printf("%s", chatHelp)
	case "/search":
		h.search(arg)
	case "/list":
		h.printView()
	case "/online":
		h.printOnline()
	case "/retry":
		h.retry()
	case "/switch":
		if err := h.open(ctx, arg); err != nil {
			h.out.Printf("! %v\n", err)
		}
	default:
		h.out.Printf("! unknown command %s, try /help\n", cmd)
	}
	return false
}

func (h *ChatHandlers) send(text string) {
	if err := h.chat.Send(text); err != nil {
		h.mu.Lock()
		h.draft = text
		h.mu.Unlock()
		h.out.Printf("! message not sent: %v (/retry to resend)\n", err)
		return
	}
	h.mu.Lock()
	h.draft = ""
	h.mu.Unlock()
}

func (h *ChatHandlers) retry() {
	h.mu.Lock()
	draft := h.draft
	h.mu.Unlock()

	if draft == "" {
		h.out.Printf("! nothing to resend\n")
		return
	}
	h.send(draft)
}

func (h *ChatHandlers) search(query string) {
	h.mu.Lock()
	h.query = query
	h.mu.Unlock()

	if query == "" {
		h.out.Printf("-- filter cleared --\n")
	} else {
		h.out.Printf("-- messages matching %q --\n", query)
	}
	h.printView()
}

func (h *ChatHandlers) printView() {
	h.mu.Lock()
	query := h.query
	h.mu.Unlock()

	count := 0
	for msg := range h.chat.View(query) {
		h.out.Printf("%s\n", h.formatMessage(msg))
		count++
	}
	if count == 0 {
		h.out.Printf("(no messages)\n")
	}
}

func (h *ChatHandlers) printOnline() {
	st := h.chat.State()
	if !st.Connected {
		h.out.Printf("! not connected\n")
		return
	}

	names := make(map[string]string)
	if conv, ok := h.conversations.Get(st.ConversationID); ok {
		for _, p := range conv.Participants {
			names[p.ID] = p.Username
		}
	}

	var online []string
	for _, id := range st.Online.IDs() {
		if name, ok := names[id]; ok {
			online = append(online, name)
		} else {
			online = append(online, id)
		}
	}
	if len(online) == 0 {
		h.out.Printf("Nobody is online\n")
		return
	}
	h.out.Printf("Online: %s\n", strings.Join(online, ", "))
}

// render prints messages that have not been shown yet and changes in the
// peer's presence. Nothing is printed until the conversation is live so
// history comes out in order.
func (h *ChatHandlers) render(st services.State) {
	if st.Phase != services.PhaseLive {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if st.ConversationID != h.activeID {
		return
	}

	var fresh []models.Message
	for _, msg := range st.Messages {
		if _, ok := h.printed[msg.ID]; ok {
			continue
		}
		h.printed[msg.ID] = struct{}{}
		fresh = append(fresh, msg)
	}
	for msg := range services.FilterMessages(fresh, h.query) {
		h.out.Printf("%s\n", h.formatMessage(msg))
	}

	if h.peer != nil {
		if online := st.Online.Has(h.peer.ID); online != h.peerOnline {
			h.peerOnline = online
			state := "offline"
			if online {
				state = "online"
			}
			h.out.Printf("* %s is %s\n", h.peer.Username, state)
		}
	}
}

func (h *ChatHandlers) noticeUnread(list []models.Conversation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := make(map[string]bool)
	for _, c := range list {
		if !c.HasUnread || c.ID == h.activeID {
			continue
		}
		next[c.ID] = true
		if !h.unread[c.ID] {
			h.out.Printf("* new message in %s\n", services.DisplayName(c, h.me))
		}
	}
	h.unread = next
}

func (h *ChatHandlers) formatMessage(msg models.Message) string {
	stamp := "--:--"
	if !msg.CreatedAt.IsZero() {
		stamp = msg.CreatedAt.Local().Format("15:04")
	}
	if msg.Sender.Username == h.me {
		return fmt.Sprintf("[%s] you: %s (%s)", stamp, msg.Content, msg.Status)
	}
	return fmt.Sprintf("[%s] %s: %s", stamp, msg.Sender.Username, msg.Content)
}
