package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"trivia-service/internal/domain"
	"trivia-service/internal/game"
	"trivia-service/internal/infra/memory"
)

// mockMessenger records every outgoing message so tests can assert on
// the conversation. Direct deliveries can be made to fail per user.
type mockMessenger struct {
	mu         sync.Mutex
	directs    map[string][]domain.Message
	channel    []domain.Message
	ephemerals map[string][]domain.Message
	updates    map[domain.MessageRef][]domain.Message
	deletes    []domain.MessageRef
	failDirect map[string]error
	refSeq     int
}

func newMockMessenger() *mockMessenger {
	return &mockMessenger{
		directs:    make(map[string][]domain.Message),
		ephemerals: make(map[string][]domain.Message),
		updates:    make(map[domain.MessageRef][]domain.Message),
		failDirect: make(map[string]error),
	}
}

func (m *mockMessenger) PostDirect(_ context.Context, userID string, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failDirect[userID]; err != nil {
		return err
	}
	m.directs[userID] = append(m.directs[userID], msg)
	return nil
}

func (m *mockMessenger) PostToChannel(_ context.Context, _ string, msg domain.Message) (domain.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refSeq++
	ref := domain.MessageRef(fmt.Sprintf("msg-%d", m.refSeq))
	m.channel = append(m.channel, msg)
	return ref, nil
}

func (m *mockMessenger) UpdateMessage(_ context.Context, ref domain.MessageRef, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates[ref] = append(m.updates[ref], msg)
	return nil
}

func (m *mockMessenger) DeleteMessage(_ context.Context, ref domain.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, ref)
	return nil
}

func (m *mockMessenger) PostEphemeral(_ context.Context, userID, _ string, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ephemerals[userID] = append(m.ephemerals[userID], msg)
	return nil
}

func (m *mockMessenger) lastDirect(userID string) (domain.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.directs[userID]
	if len(msgs) == 0 {
		return domain.Message{}, false
	}
	return msgs[len(msgs)-1], true
}

func (m *mockMessenger) lastChannel() (domain.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.channel) == 0 {
		return domain.Message{}, false
	}
	return m.channel[len(m.channel)-1], true
}

func (m *mockMessenger) lastEphemeral(userID string) (domain.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.ephemerals[userID]
	if len(msgs) == 0 {
		return domain.Message{}, false
	}
	return msgs[len(msgs)-1], true
}

func (m *mockMessenger) deletedRefs() []domain.MessageRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.MessageRef(nil), m.deletes...)
}

func newTestService(t *testing.T) (*GameService, *mockMessenger, *memory.SessionRegistry, *memory.Archiver) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	loader := memory.NewStaticProfileLoader(map[string]domain.Profile{
		"u1": {UserID: "u1", DisplayName: "Alice", AvatarRef: "avatar:alice"},
		"u2": {UserID: "u2", DisplayName: "Bob", AvatarRef: "avatar:bob"},
	}, false)
	registry := memory.NewSessionRegistry()
	sender := newMockMessenger()
	archiver := memory.NewArchiver()

	service := NewGameService(registry, memory.NewProfileDirectory(loader, time.Minute), sender, logger)
	service.SetArchiver(archiver)
	return service, sender, registry, archiver
}

func submitTestQuestion(t *testing.T, service *GameService, sessionID, userID, text string, isAdmin bool) {
	t.Helper()
	err := service.SubmitQuestion(context.Background(), domain.QuestionSubmission{
		SessionID:    sessionID,
		UserID:       userID,
		IsAdmin:      isAdmin,
		QuestionText: text,
		RightAnswer:  "right",
		WrongAnswers: [3]string{"wrong 1", "wrong 2", "wrong 3"},
	})
	if err != nil {
		t.Fatalf("submit question for %s: %v", userID, err)
	}
}

// answerDelivered reads the question message last pushed to the player
// and answers it with the correct choice.
func answerDelivered(t *testing.T, service *GameService, sender *mockMessenger, session *game.Session, userID string) {
	t.Helper()
	msg, ok := sender.lastDirect(userID)
	if !ok || msg.Question == nil {
		t.Fatalf("expected a question delivery for %s, got %+v", userID, msg)
	}
	var question *domain.Question
	for _, q := range session.Questions() {
		if q.ID == msg.Question.QuestionID {
			question = q
		}
	}
	if question == nil {
		t.Fatalf("delivered question %s not in session", msg.Question.QuestionID)
	}
	idx := -1
	for i, c := range question.Choices {
		if c.IsCorrect {
			idx = i
		}
	}
	if err := service.SubmitAnswer(context.Background(), session.ID(), userID, question.ID, idx); err != nil {
		t.Fatalf("submit answer for %s: %v", userID, err)
	}
}

func TestCreateGamePostsLobbyAndPrompt(t *testing.T) {
	service, sender, registry, _ := newTestService(t)
	ctx := context.Background()

	session, err := service.CreateGame(ctx, "C1", "u1", 0)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if session.ID() != "C1_u1" {
		t.Fatalf("expected session id C1_u1, got %s", session.ID())
	}
	if _, err := registry.Get("C1_u1"); err != nil {
		t.Fatalf("session not registered: %v", err)
	}
	if session.MessageRef() == "" {
		t.Fatalf("lobby message ref not stored")
	}

	lobby, ok := sender.lastChannel()
	if !ok || lobby.Type != "lobby" || lobby.Lobby == nil {
		t.Fatalf("expected lobby channel message, got %+v", lobby)
	}
	if lobby.Lobby.AdminName != "Alice" {
		t.Fatalf("expected admin name Alice, got %q", lobby.Lobby.AdminName)
	}

	prompt, ok := sender.lastEphemeral("u1")
	if !ok || prompt.Type != "questionForm" || prompt.Form == nil || !prompt.Form.IsAdmin {
		t.Fatalf("expected admin question form prompt, got %+v", prompt)
	}
}

func TestCreateGameRejectsDuplicateChannelGame(t *testing.T) {
	service, _, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.CreateGame(ctx, "C1", "u1", 0); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := service.CreateGame(ctx, "C1", "u1", 0); !errors.Is(err, domain.ErrGameExists) {
		t.Fatalf("expected ErrGameExists, got %v", err)
	}
}

func TestCreateGameFailsOnUnknownUser(t *testing.T) {
	service, _, registry, _ := newTestService(t)

	_, err := service.CreateGame(context.Background(), "C1", "u9", 0)
	if !errors.Is(err, domain.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
	if _, err := registry.Get("C1_u9"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("failed create must not register a session")
	}
}

func TestJoinGameGuards(t *testing.T) {
	service, sender, _, _ := newTestService(t)
	ctx := context.Background()

	if err := service.JoinGame(ctx, "C1_u1", "u2"); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}

	session, err := service.CreateGame(ctx, "C1", "u1", 0)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	if err := service.JoinGame(ctx, session.ID(), "u2"); err != nil {
		t.Fatalf("join: %v", err)
	}
	prompt, ok := sender.lastEphemeral("u2")
	if !ok || prompt.Type != "questionForm" || prompt.Form == nil || prompt.Form.IsAdmin {
		t.Fatalf("expected non-admin question form prompt, got %+v", prompt)
	}

	submitTestQuestion(t, service, session.ID(), "u2", "Bob's question?", false)
	if err := service.JoinGame(ctx, session.ID(), "u2"); !errors.Is(err, domain.ErrQuestionAlreadySet) {
		t.Fatalf("expected ErrQuestionAlreadySet, got %v", err)
	}

	submitTestQuestion(t, service, session.ID(), "u1", "Alice's question?", true)
	if err := service.StartGame(ctx, session.ID()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := service.JoinGame(ctx, session.ID(), "u2"); !errors.Is(err, domain.ErrGameStarted) {
		t.Fatalf("expected ErrGameStarted after start, got %v", err)
	}
}

func TestSubmitQuestionUpdatesLobbyAndRejectsDuplicate(t *testing.T) {
	service, sender, _, _ := newTestService(t)
	ctx := context.Background()

	session, err := service.CreateGame(ctx, "C1", "u1", 0)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	submitTestQuestion(t, service, session.ID(), "u2", "Bob's question?", false)

	sender.mu.Lock()
	updates := sender.updates[session.MessageRef()]
	sender.mu.Unlock()
	if len(updates) == 0 {
		t.Fatalf("expected the lobby message to be refreshed")
	}
	if got := updates[len(updates)-1].Lobby.PlayerCount; got != 2 {
		t.Fatalf("expected lobby count 2, got %d", got)
	}

	confirm, ok := sender.lastEphemeral("u2")
	if !ok || confirm.Lobby == nil {
		t.Fatalf("expected save confirmation for Bob, got %+v", confirm)
	}

	err = service.SubmitQuestion(ctx, domain.QuestionSubmission{
		SessionID:    session.ID(),
		UserID:       "u2",
		QuestionText: "Another?",
		RightAnswer:  "right",
		WrongAnswers: [3]string{"a", "b", "c"},
	})
	if !errors.Is(err, domain.ErrQuestionAlreadySet) {
		t.Fatalf("expected ErrQuestionAlreadySet, got %v", err)
	}
}

func TestStartGameNeedsTwoPlayers(t *testing.T) {
	service, _, _, _ := newTestService(t)
	ctx := context.Background()

	session, err := service.CreateGame(ctx, "C1", "u1", 0)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if err := service.StartGame(ctx, session.ID()); !errors.Is(err, domain.ErrNotEnoughPlayers) {
		t.Fatalf("expected ErrNotEnoughPlayers, got %v", err)
	}
	if session.Phase() != game.PhaseLobby {
		t.Fatalf("failed start must leave the session in the lobby")
	}
}

func TestFullTwoPlayerGame(t *testing.T) {
	service, sender, registry, archiver := newTestService(t)
	ctx := context.Background()

	session, err := service.CreateGame(ctx, "C1", "u1", 0)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	lobbyRef := session.MessageRef()
	submitTestQuestion(t, service, session.ID(), "u1", "Alice's question?", true)
	submitTestQuestion(t, service, session.ID(), "u2", "Bob's question?", false)

	if err := service.StartGame(ctx, session.ID()); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, userID := range []string{"u1", "u2"} {
		msg, ok := sender.lastDirect(userID)
		if !ok || msg.Type != "question" {
			t.Fatalf("expected a question for %s at start, got %+v", userID, msg)
		}
		if msg.Question.Progress != "1/1" {
			t.Fatalf("expected progress 1/1, got %q", msg.Question.Progress)
		}
	}

	answerDelivered(t, service, sender, session, "u1")
	ready, ok := sender.lastDirect("u1")
	if !ok || ready.Type != "ready" || ready.Ready == nil {
		t.Fatalf("expected ready message for u1, got %+v", ready)
	}
	if ready.Ready.ScoreEarned == nil || *ready.Ready.ScoreEarned != 20 {
		t.Fatalf("expected 20 points carried on the ready message, got %+v", ready.Ready)
	}
	if ready.Ready.QuestionsKnown != 1 || ready.Ready.Total != 1 {
		t.Fatalf("expected 1/1 known, got %+v", ready.Ready)
	}

	// The game is still live until Bob finishes.
	if _, err := registry.Get(session.ID()); err != nil {
		t.Fatalf("game ended early: %v", err)
	}

	answerDelivered(t, service, sender, session, "u2")

	if _, err := registry.Get(session.ID()); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("settled game must leave the registry, got %v", err)
	}
	deleted := sender.deletedRefs()
	if len(deleted) != 1 || deleted[0] != lobbyRef {
		t.Fatalf("expected the lobby message to be deleted, got %v", deleted)
	}

	board, ok := sender.lastChannel()
	if !ok || board.Type != "scoreboard" || board.Scoreboard == nil {
		t.Fatalf("expected a scoreboard post, got %+v", board)
	}
	results := archiver.Results()
	if len(results) != 1 {
		t.Fatalf("expected 1 archived result, got %d", len(results))
	}
	// Each player: 20 for an instant correct answer, -5 for owning a
	// question its single answerer got right.
	for _, entry := range results[0].Standings {
		if entry.Score != 15 {
			t.Fatalf("expected 15 points for %s, got %d", entry.UserID, entry.Score)
		}
	}
	if len(results[0].Questions) != 2 {
		t.Fatalf("expected 2 question recaps, got %d", len(results[0].Questions))
	}
}

func TestAnswerTimeoutSettlesGame(t *testing.T) {
	service, _, registry, archiver := newTestService(t)
	service.SetAnswerTimeout(30 * time.Millisecond)
	ctx := context.Background()

	session, err := service.CreateGame(ctx, "C1", "u1", 0)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	submitTestQuestion(t, service, session.ID(), "u1", "Alice's question?", true)
	submitTestQuestion(t, service, session.ID(), "u2", "Bob's question?", false)
	if err := service.StartGame(ctx, session.ID()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Nobody answers; both timeouts fire and the game settles on its own.
	deadline := time.Now().Add(2 * time.Second)
	for len(archiver.Results()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("game did not settle via timeouts")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := registry.Get(session.ID()); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("settled game must leave the registry, got %v", err)
	}
	result := archiver.Results()[0]
	// Nobody scored; each owner pays 5 for the unanswered question.
	for _, entry := range result.Standings {
		if entry.Score != -5 {
			t.Fatalf("expected -5 for %s, got %d", entry.UserID, entry.Score)
		}
	}
}

func TestCancelGameDropsLobby(t *testing.T) {
	service, sender, registry, _ := newTestService(t)
	ctx := context.Background()

	session, err := service.CreateGame(ctx, "C1", "u1", 0)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	ref := session.MessageRef()

	if err := service.CancelGame(ctx, session.ID()); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := registry.Get(session.ID()); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("canceled game must leave the registry, got %v", err)
	}
	deleted := sender.deletedRefs()
	if len(deleted) != 1 || deleted[0] != ref {
		t.Fatalf("expected the lobby message to be deleted, got %v", deleted)
	}

	if err := service.CancelGame(ctx, session.ID()); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound on double cancel, got %v", err)
	}
}

func TestCancelGameRejectedAfterStart(t *testing.T) {
	service, _, _, _ := newTestService(t)
	ctx := context.Background()

	session, err := service.CreateGame(ctx, "C1", "u1", 0)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	submitTestQuestion(t, service, session.ID(), "u1", "Alice's question?", true)
	submitTestQuestion(t, service, session.ID(), "u2", "Bob's question?", false)
	if err := service.StartGame(ctx, session.ID()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := service.CancelGame(ctx, session.ID()); !errors.Is(err, domain.ErrGameStarted) {
		t.Fatalf("expected ErrGameStarted, got %v", err)
	}
}

func TestDeliveryFailureReportedToAdmin(t *testing.T) {
	service, sender, _, _ := newTestService(t)
	ctx := context.Background()

	session, err := service.CreateGame(ctx, "C1", "u1", 0)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	submitTestQuestion(t, service, session.ID(), "u1", "Alice's question?", true)
	submitTestQuestion(t, service, session.ID(), "u2", "Bob's question?", false)

	sender.mu.Lock()
	sender.failDirect["u2"] = errors.New("user has left the workspace")
	sender.mu.Unlock()

	if err := service.StartGame(ctx, session.ID()); err != nil {
		t.Fatalf("start: %v", err)
	}
	report, ok := sender.lastEphemeral("u1")
	if !ok || report.Type != "error" {
		t.Fatalf("expected delivery failure report to the admin, got %+v", report)
	}
}

func TestSyntheticGameSettlesFromOneRealPlayer(t *testing.T) {
	service, sender, registry, archiver := newTestService(t)
	ctx := context.Background()

	session, err := service.CreateGame(ctx, "C1", "u1", 3)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if session.PlayerCount() != 4 {
		t.Fatalf("expected admin + 3 synthetic players, got %d", session.PlayerCount())
	}
	submitTestQuestion(t, service, session.ID(), "u1", "Alice's question?", true)

	if err := service.StartGame(ctx, session.ID()); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The admin walks the three synthetic questions; each delivery also
	// advances the synthetic players, so the game settles when the
	// admin's round is done.
	for i := 0; i < 3; i++ {
		answerDelivered(t, service, sender, session, "u1")
	}

	if _, err := registry.Get(session.ID()); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("settled game must leave the registry, got %v", err)
	}
	results := archiver.Results()
	if len(results) != 1 {
		t.Fatalf("expected 1 archived result, got %d", len(results))
	}
	if len(results[0].Standings) != 4 {
		t.Fatalf("expected 4 standings, got %d", len(results[0].Standings))
	}
}
