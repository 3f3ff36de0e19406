package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

// Gateway is the chat-platform edge: every participant holds one
// websocket connection, identified by user and channel. Inbound frames
// carry the slash-command, form and button actions; outbound frames
// carry rendered messages. The gateway implements app.Messenger, so the
// engine stays ignorant of the wire.
type Gateway struct {
	log      *logrus.Logger
	service  *app.GameService
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[string]*client            // userID -> connection
	channels map[string]map[string]*client // channelID -> userID -> connection
	refs     map[string]string             // message ref -> channelID
}

type client struct {
	userID    string
	channelID string
	conn      *websocket.Conn

	mu     sync.Mutex
	closed bool
	send   chan frame
}

// frame is the outbound wire envelope.
type frame struct {
	Kind    string          `json:"kind"` // direct, channel, update, delete, ephemeral
	Ref     string          `json:"ref,omitempty"`
	Message *domain.Message `json:"message,omitempty"`
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func NewGateway(logger *logrus.Logger) *Gateway {
	return &Gateway{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:  make(map[string]*client),
		channels: make(map[string]map[string]*client),
		refs:     make(map[string]string),
	}
}

// Bind wires the game service in after construction; the service needs
// the gateway as its Messenger, so the two are linked in two steps.
func (g *Gateway) Bind(service *app.GameService) {
	g.service = service
}

// ServeWS upgrades HTTP requests to websockets and pumps actions into
// the game service.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	channelID := r.URL.Query().Get("channelId")
	if userID == "" || channelID == "" {
		http.Error(w, "missing userId or channelId", http.StatusBadRequest)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.WithError(err).Warn("ws upgrade failed")
		return
	}

	c := &client{
		userID:    userID,
		channelID: channelID,
		conn:      conn,
		send:      make(chan frame, 16),
	}
	g.register(c)
	defer g.unregister(c)

	go func() {
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				g.log.WithError(err).WithField("user", c.userID).Warn("ws write error")
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := g.dispatch(r.Context(), c, inbound); err != nil {
			g.log.WithError(err).WithFields(logrus.Fields{
				"user":   c.userID,
				"action": inbound.Type,
			}).Warn("action failed")
			g.push(c, frame{Kind: "ephemeral", Message: &domain.Message{Type: "error", Text: err.Error()}})
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, c *client, inbound inboundMessage) error {
	switch inbound.Type {
	case "createGame":
		var payload struct {
			Args string `json:"args"`
		}
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return fmt.Errorf("invalid createGame payload")
		}
		_, err := g.service.CreateGame(ctx, c.channelID, c.userID, parseDebugArgs(payload.Args))
		return err

	case "joinGame":
		var payload struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return fmt.Errorf("invalid joinGame payload")
		}
		return g.service.JoinGame(ctx, payload.SessionID, c.userID)

	case "submitQuestion":
		var payload struct {
			SessionID    string    `json:"sessionId"`
			IsAdmin      bool      `json:"isAdmin"`
			QuestionText string    `json:"questionText"`
			RightAnswer  string    `json:"rightAnswer"`
			WrongAnswers [3]string `json:"wrongAnswers"`
		}
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return fmt.Errorf("invalid submitQuestion payload")
		}
		return g.service.SubmitQuestion(ctx, domain.QuestionSubmission{
			SessionID:    payload.SessionID,
			UserID:       c.userID,
			IsAdmin:      payload.IsAdmin,
			QuestionText: payload.QuestionText,
			RightAnswer:  payload.RightAnswer,
			WrongAnswers: payload.WrongAnswers,
		})

	case "startGame":
		var payload struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return fmt.Errorf("invalid startGame payload")
		}
		return g.service.StartGame(ctx, payload.SessionID)

	case "cancelGame":
		var payload struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return fmt.Errorf("invalid cancelGame payload")
		}
		return g.service.CancelGame(ctx, payload.SessionID)

	case "answer":
		var payload struct {
			SessionID   string `json:"sessionId"`
			QuestionID  string `json:"questionId"`
			ChoiceIndex int    `json:"choiceIndex"`
		}
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return fmt.Errorf("invalid answer payload")
		}
		return g.service.SubmitAnswer(ctx, payload.SessionID, c.userID, payload.QuestionID, payload.ChoiceIndex)

	default:
		return fmt.Errorf("unsupported message type %q", inbound.Type)
	}
}

// parseDebugArgs reads the create command's trailing arguments: the
// word "debug" seeds five synthetic players, an explicit count overrides.
func parseDebugArgs(args string) int {
	debug := 0
	if strings.Contains(args, "debug") {
		debug = 5
	}
	fields := strings.Fields(args)
	if len(fields) > 1 {
		if n, err := strconv.Atoi(fields[1]); err == nil {
			debug = n
		}
	}
	return debug
}

// PostDirect delivers a message to one user's connection.
func (g *Gateway) PostDirect(_ context.Context, userID string, msg domain.Message) error {
	g.mu.RLock()
	c, ok := g.clients[userID]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("user %s is not connected", userID)
	}
	g.push(c, frame{Kind: "direct", Message: &msg})
	return nil
}

// PostToChannel broadcasts a message to everyone in the channel and
// returns a ref that can later be updated or deleted.
func (g *Gateway) PostToChannel(_ context.Context, channelID string, msg domain.Message) (domain.MessageRef, error) {
	ref := uuid.NewString()

	g.mu.Lock()
	g.refs[ref] = channelID
	members := g.channelMembersLocked(channelID)
	g.mu.Unlock()

	for _, c := range members {
		g.push(c, frame{Kind: "channel", Ref: ref, Message: &msg})
	}
	return domain.MessageRef(ref), nil
}

// UpdateMessage rebroadcasts new content under an existing ref.
func (g *Gateway) UpdateMessage(_ context.Context, ref domain.MessageRef, msg domain.Message) error {
	g.mu.RLock()
	channelID, ok := g.refs[string(ref)]
	var members []*client
	if ok {
		members = g.channelMembersLocked(channelID)
	}
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown message ref %s", ref)
	}
	for _, c := range members {
		g.push(c, frame{Kind: "update", Ref: string(ref), Message: &msg})
	}
	return nil
}

// DeleteMessage tells channel members to drop the referenced message.
func (g *Gateway) DeleteMessage(_ context.Context, ref domain.MessageRef) error {
	g.mu.Lock()
	channelID, ok := g.refs[string(ref)]
	var members []*client
	if ok {
		delete(g.refs, string(ref))
		members = g.channelMembersLocked(channelID)
	}
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown message ref %s", ref)
	}
	for _, c := range members {
		g.push(c, frame{Kind: "delete", Ref: string(ref)})
	}
	return nil
}

// PostEphemeral delivers a message visible only to one user in a channel.
func (g *Gateway) PostEphemeral(_ context.Context, userID, _ string, msg domain.Message) error {
	g.mu.RLock()
	c, ok := g.clients[userID]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("user %s is not connected", userID)
	}
	g.push(c, frame{Kind: "ephemeral", Message: &msg})
	return nil
}

func (g *Gateway) register(c *client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients[c.userID] = c
	if g.channels[c.channelID] == nil {
		g.channels[c.channelID] = make(map[string]*client)
	}
	g.channels[c.channelID][c.userID] = c
}

func (g *Gateway) unregister(c *client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if current, ok := g.clients[c.userID]; ok && current == c {
		delete(g.clients, c.userID)
	}
	if members, ok := g.channels[c.channelID]; ok {
		if current, ok := members[c.userID]; ok && current == c {
			delete(members, c.userID)
		}
		if len(members) == 0 {
			delete(g.channels, c.channelID)
		}
	}
	c.mu.Lock()
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	_ = c.conn.Close()
}

func (g *Gateway) channelMembersLocked(channelID string) []*client {
	members := make([]*client, 0, len(g.channels[channelID]))
	for _, c := range g.channels[channelID] {
		members = append(members, c)
	}
	return members
}

// push writes without blocking; a slow or departed client loses the
// frame rather than stalling the round.
func (g *Gateway) push(c *client, f frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- f:
	default:
		g.log.WithField("user", c.userID).Warn("dropping frame for slow client")
	}
}
