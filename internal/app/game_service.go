package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"trivia-service/internal/domain"
	"trivia-service/internal/game"
)

// SessionRegistry is the process-wide set of live sessions, keyed by
// session id. It is injected rather than global so tests can run
// multiple independent registries.
type SessionRegistry interface {
	Create(session *game.Session) error
	Get(id string) (*game.Session, error)
	Remove(id string)
}

// UserDirectory resolves a platform user id to a display profile.
type UserDirectory interface {
	Lookup(ctx context.Context, userID string) (domain.Profile, error)
}

// Messenger delivers rendered content through the chat platform. Calls
// are fire-and-forget from the engine's perspective: failures are logged
// and reported to the admin, never retried, and never roll back session
// state that already changed.
type Messenger interface {
	PostDirect(ctx context.Context, userID string, msg domain.Message) error
	PostToChannel(ctx context.Context, channelID string, msg domain.Message) (domain.MessageRef, error)
	UpdateMessage(ctx context.Context, ref domain.MessageRef, msg domain.Message) error
	DeleteMessage(ctx context.Context, ref domain.MessageRef) error
	PostEphemeral(ctx context.Context, userID, channelID string, msg domain.Message) error
}

// GameArchiver persists finished game results. Optional.
type GameArchiver interface {
	Archive(ctx context.Context, result domain.GameResult) error
}

// GameService drives sessions through their lifecycle: it creates and
// locates them, pushes questions to players, arms response timeouts, and
// settles the game when everyone is ready.
type GameService struct {
	registry      SessionRegistry
	users         UserDirectory
	sender        Messenger
	archiver      GameArchiver
	log           *logrus.Logger
	answerTimeout time.Duration
	now           func() time.Time
}

func NewGameService(registry SessionRegistry, users UserDirectory, sender Messenger, logger *logrus.Logger) *GameService {
	return &GameService{
		registry:      registry,
		users:         users,
		sender:        sender,
		log:           logger,
		answerTimeout: 60 * time.Second,
		now:           time.Now,
	}
}

// SetAnswerTimeout overrides the 60-second response timeout.
func (s *GameService) SetAnswerTimeout(d time.Duration) { s.answerTimeout = d }

// SetArchiver enables persistence of finished game results.
func (s *GameService) SetArchiver(a GameArchiver) { s.archiver = a }

// CreateGame opens a new session in the lobby phase with the invoking
// user as admin, posts the join message to the channel, and prompts the
// creator for their question.
func (s *GameService) CreateGame(ctx context.Context, channelID, userID string, debugCount int) (*game.Session, error) {
	profile, err := s.users.Lookup(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user %s: %w", userID, err)
	}

	session := game.New(channelID+"_"+userID, debugCount)
	admin := &domain.Player{
		ID:          profile.UserID,
		DisplayName: profile.DisplayName,
		AvatarRef:   profile.AvatarRef,
		IsAdmin:     true,
	}
	if _, err := session.AddOrGetPlayer(admin); err != nil {
		return nil, err
	}
	session.SeedSynthetic()
	if err := s.registry.Create(session); err != nil {
		return nil, err
	}
	s.log.WithField("game", session.ID()).Info("game started")

	ref, err := s.sender.PostToChannel(ctx, channelID, lobbyMessage(session, admin.DisplayName))
	if err != nil {
		s.log.WithError(err).WithField("game", session.ID()).Error("post lobby message")
	} else {
		session.SetMessageRef(ref)
	}

	if err := s.sender.PostEphemeral(ctx, userID, channelID, formPrompt(session.ID(), true)); err != nil {
		s.log.WithError(err).WithField("game", session.ID()).Error("prompt creator for question")
	}
	return session, nil
}

// JoinGame validates a join action and prompts the user for their
// question. Users who already own a question are rejected instead of
// being offered the form again.
func (s *GameService) JoinGame(ctx context.Context, sessionID, userID string) error {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if session.Phase() != game.PhaseLobby {
		return domain.ErrGameStarted
	}
	if session.HasQuestionFrom(userID) {
		return domain.ErrQuestionAlreadySet
	}
	return s.sender.PostEphemeral(ctx, userID, session.ChannelID(), formPrompt(sessionID, false))
}

// SubmitQuestion consumes the question form: it adds the submitter to
// the roster (idempotently), stores their question with shuffled
// choices, and refreshes the lobby message's player count.
func (s *GameService) SubmitQuestion(ctx context.Context, sub domain.QuestionSubmission) error {
	session, err := s.registry.Get(sub.SessionID)
	if err != nil {
		return err
	}
	profile, err := s.users.Lookup(ctx, sub.UserID)
	if err != nil {
		return fmt.Errorf("lookup user %s: %w", sub.UserID, err)
	}

	player, err := session.AddOrGetPlayer(&domain.Player{
		ID:          profile.UserID,
		DisplayName: profile.DisplayName,
		AvatarRef:   profile.AvatarRef,
		IsAdmin:     sub.IsAdmin,
	})
	if err != nil {
		return err
	}

	question := &domain.Question{
		ID:    session.NewQuestionID(player.ID, sub.QuestionText),
		Owner: player,
		Text:  sub.QuestionText,
		Choices: []domain.AnswerChoice{
			{Text: sub.RightAnswer, IsCorrect: true},
			{Text: sub.WrongAnswers[0]},
			{Text: sub.WrongAnswers[1]},
			{Text: sub.WrongAnswers[2]},
		},
	}
	if err := session.AddQuestion(question); err != nil {
		return err
	}

	if ref := session.MessageRef(); ref != "" {
		admin := session.Admin()
		adminName := ""
		if admin != nil {
			adminName = admin.DisplayName
		}
		if err := s.sender.UpdateMessage(ctx, ref, lobbyMessage(session, adminName)); err != nil {
			s.log.WithError(err).WithField("game", session.ID()).Error("update lobby message")
		}
	}

	if !player.IsAdmin {
		if err := s.sender.PostEphemeral(ctx, player.ID, session.ChannelID(), domain.Message{
			Type: "lobby",
			Text: "You're in the game and your question is saved!",
			Lobby: &domain.LobbyView{
				SessionID:   session.ID(),
				PlayerCount: session.PlayerCount(),
			},
		}); err != nil {
			s.log.WithError(err).WithField("game", session.ID()).Error("confirm question saved")
		}
	}
	return nil
}

// StartGame moves the session into the answering phase and pushes the
// first question to every live player. Synthetic players are excluded
// from deliveries; they advance on their own as real answers come in.
func (s *GameService) StartGame(ctx context.Context, sessionID string) error {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if err := session.Start(); err != nil {
		return err
	}
	s.log.WithField("game", session.ID()).Info("answering phase started")
	for _, player := range session.Players() {
		if game.IsSynthetic(player.ID) {
			continue
		}
		s.deliverNext(ctx, session, player, nil)
	}
	s.checkGameEnd(ctx, session)
	return nil
}

// CancelGame discards a session that never left the lobby.
func (s *GameService) CancelGame(ctx context.Context, sessionID string) error {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	if session.Phase() != game.PhaseLobby {
		return domain.ErrGameStarted
	}
	s.registry.Remove(session.ID())
	if ref := session.MessageRef(); ref != "" {
		if err := s.sender.DeleteMessage(ctx, ref); err != nil {
			s.log.WithError(err).WithField("game", session.ID()).Error("delete lobby message")
		}
	}
	s.log.WithField("game", session.ID()).Info("game canceled")
	return nil
}

// SubmitAnswer records a player's choice for a question, then advances
// their round and checks whether the game is over. Correctness is
// re-derived from the stored choice; clients only round-trip the index.
func (s *GameService) SubmitAnswer(ctx context.Context, sessionID, userID, questionID string, choiceIndex int) error {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return err
	}
	outcome, err := session.RecordAnswer(userID, questionID, choiceIndex)
	if err != nil {
		return err
	}
	player, ok := session.Player(userID)
	if !ok {
		return domain.ErrPlayerNotFound
	}
	s.log.WithFields(logrus.Fields{
		"game":     session.ID(),
		"player":   userID,
		"question": questionID,
		"correct":  outcome.Correct,
		"awarded":  outcome.Awarded,
	}).Debug("answer recorded")

	awarded := outcome.Awarded
	s.deliverNext(ctx, session, player, &awarded)
	s.checkGameEnd(ctx, session)
	return nil
}

// deliverNext pushes the player's next unseen question, or the ready
// summary when they have exhausted the set. Each delivery arms a
// response timeout; the timeout callback no-ops if a real answer has
// already been recorded for the pair.
func (s *GameService) deliverNext(ctx context.Context, session *game.Session, player *domain.Player, scoreEarned *int) {
	session.AutoAnswerSynthetic()

	question := session.NextQuestion(player)
	if question == nil {
		total := len(session.Questions()) - 1
		msg := domain.Message{
			Type: "ready",
			Text: "That's it, you are ready!",
			Ready: &domain.ReadyView{
				QuestionsKnown: session.QuestionsKnown(player),
				Total:          total,
				ScoreEarned:    scoreEarned,
			},
		}
		if err := s.sender.PostDirect(ctx, player.ID, msg); err != nil {
			s.reportDeliveryFailure(ctx, session, player, err)
		}
		return
	}

	choices := make([]string, 0, len(question.Choices))
	for _, c := range question.Choices {
		choices = append(choices, c.Text)
	}
	msg := domain.Message{
		Type: "question",
		Text: "I sent you a question!",
		Question: &domain.QuestionView{
			SessionID:   session.ID(),
			QuestionID:  question.ID,
			Text:        question.Text,
			Choices:     choices,
			Progress:    session.Progress(player),
			ScoreEarned: scoreEarned,
		},
	}
	if err := s.sender.PostDirect(ctx, player.ID, msg); err != nil {
		// The player is stuck until they act again; there is no retry.
		s.reportDeliveryFailure(ctx, session, player, err)
		return
	}

	questionID := question.ID
	time.AfterFunc(s.answerTimeout, func() {
		s.handleTimeout(session, player, questionID)
	})
}

// handleTimeout treats an expired question as an unanswered wrong
// response. The recorded-answer set arbitrates the race with a real
// answer: if it lost, this is a no-op.
func (s *GameService) handleTimeout(session *game.Session, player *domain.Player, questionID string) {
	if !session.RecordTimeout(player.ID, questionID) {
		return
	}
	s.log.WithFields(logrus.Fields{
		"game":     session.ID(),
		"player":   player.ID,
		"question": questionID,
	}).Info("player did not answer in time")

	ctx := context.Background()
	s.deliverNext(ctx, session, player, nil)
	s.checkGameEnd(ctx, session)
}

// checkGameEnd settles the session once every player is ready: question
// owners collect their difficulty bonuses, the registry entry is
// dropped, the lobby message is replaced by the final scoreboard, and
// the result is archived when an archiver is configured.
func (s *GameService) checkGameEnd(ctx context.Context, session *game.Session) {
	if !session.AllReady() {
		return
	}
	standings, err := session.End()
	if err != nil {
		// A concurrent settlement won the race; nothing left to do.
		if errors.Is(err, domain.ErrGameEnded) {
			return
		}
		s.log.WithError(err).WithField("game", session.ID()).Error("end game")
		return
	}
	s.registry.Remove(session.ID())
	result := session.Result(s.now())

	s.log.WithFields(logrus.Fields{
		"game":   session.ID(),
		"winner": standings[0].ID,
		"score":  standings[0].Score,
	}).Info("game ended")

	if ref := session.MessageRef(); ref != "" {
		if err := s.sender.DeleteMessage(ctx, ref); err != nil {
			s.log.WithError(err).WithField("game", session.ID()).Error("delete lobby message")
		}
	}
	if _, err := s.sender.PostToChannel(ctx, session.ChannelID(), domain.Message{
		Type:       "scoreboard",
		Text:       "Game over!",
		Scoreboard: &result,
	}); err != nil {
		s.log.WithError(err).WithField("game", session.ID()).Error("post scoreboard")
	}
	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, result); err != nil {
			s.log.WithError(err).WithField("game", session.ID()).Error("archive game result")
		}
	}
}

func (s *GameService) reportDeliveryFailure(ctx context.Context, session *game.Session, player *domain.Player, cause error) {
	s.log.WithError(cause).WithFields(logrus.Fields{
		"game":   session.ID(),
		"player": player.ID,
	}).Error("message delivery failed")

	admin := session.Admin()
	if admin == nil || game.IsSynthetic(admin.ID) {
		return
	}
	msg := domain.Message{Type: "error", Text: cause.Error()}
	if err := s.sender.PostEphemeral(ctx, admin.ID, session.ChannelID(), msg); err != nil {
		s.log.WithError(err).WithField("game", session.ID()).Error("report delivery failure to admin")
	}
}

func lobbyMessage(session *game.Session, adminName string) domain.Message {
	return domain.Message{
		Type: "lobby",
		Text: adminName + " started a new game!",
		Lobby: &domain.LobbyView{
			SessionID:   session.ID(),
			AdminName:   adminName,
			PlayerCount: session.PlayerCount(),
		},
	}
}

func formPrompt(sessionID string, isAdmin bool) domain.Message {
	return domain.Message{
		Type: "questionForm",
		Text: "Set up your question!",
		Form: &domain.QuestionFormRef{SessionID: sessionID, IsAdmin: isAdmin},
	}
}
