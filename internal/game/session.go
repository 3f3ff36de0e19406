package game

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"trivia-service/internal/domain"
)

// Phase is the lifecycle stage of a session. It only ever moves forward.
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseAnswering
	PhaseEnd
)

// Session is one run of the trivia game, from lobby to final scoring.
// It owns its players and questions exclusively; nothing is shared
// across sessions. All mutating operations validate before touching
// state, so a failed call leaves the session unchanged.
type Session struct {
	mu         sync.Mutex
	id         string
	phase      Phase
	players    []*domain.Player
	questions  []*domain.Question
	messageRef domain.MessageRef
	debugCount int
	seeded     bool
	rnd        *rand.Rand
	now        func() time.Time
}

// New creates a session in the lobby phase. debugCount > 0 seeds that
// many synthetic players, each paired with a synthetic question.
func New(id string, debugCount int) *Session {
	return NewWithClock(id, debugCount, rand.New(rand.NewSource(time.Now().UnixNano())), time.Now)
}

// NewWithClock injects the randomness source and clock so tests can fix
// seeds and timestamps.
func NewWithClock(id string, debugCount int, rnd *rand.Rand, now func() time.Time) *Session {
	return &Session{
		id:         id,
		phase:      PhaseLobby,
		debugCount: debugCount,
		rnd:        rnd,
		now:        now,
	}
}

// SeedSynthetic injects the session's synthetic players, each paired
// with a generated question, directly into the lobby. Called once at
// creation, after the creator joined, so the creator stays first in
// the roster.
func (s *Session) SeedSynthetic() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debugCount > 0 && s.phase == PhaseLobby && !s.seeded {
		s.seeded = true
		s.addFakesLocked(s.debugCount)
	}
}

func (s *Session) addFakesLocked(amount int) {
	for _, p := range fakePlayers(s.rnd, amount) {
		s.players = append(s.players, p)
		q := fakeQuestion(s.rnd, p)
		q.Choices = s.mixChoices(q.Choices)
		s.questions = append(s.questions, q)
	}
}

// ID returns the session id, formatted as {channelID}_{creatorUserID}.
func (s *Session) ID() string { return s.id }

// ChannelID derives the originating channel from the session id.
func (s *Session) ChannelID() string {
	for i := 0; i < len(s.id); i++ {
		if s.id[i] == '_' {
			return s.id[:i]
		}
	}
	return s.id
}

// Phase returns the current lifecycle stage.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// DebugCount returns how many synthetic players were seeded at creation.
func (s *Session) DebugCount() int { return s.debugCount }

// MessageRef returns the handle to the lobby message, if posted.
func (s *Session) MessageRef() domain.MessageRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageRef
}

// SetMessageRef records the handle to the posted lobby message.
func (s *Session) SetMessageRef(ref domain.MessageRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageRef = ref
}

// Players returns the roster in arrival order.
func (s *Session) Players() []*domain.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Player(nil), s.players...)
}

// Questions returns the question set in submission order.
func (s *Session) Questions() []*domain.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Question(nil), s.questions...)
}

// PlayerCount returns the roster size.
func (s *Session) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

// Admin returns the session creator, or nil if the roster is empty.
func (s *Session) Admin() *domain.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if p.IsAdmin {
			return p
		}
	}
	return nil
}

// AddOrGetPlayer appends the player to the roster, or returns the
// existing record when the id is already present (re-invoking the join
// action is idempotent). Joining is only possible in the lobby.
func (s *Session) AddOrGetPlayer(player *domain.Player) (*domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseLobby {
		return nil, domain.ErrGameStarted
	}
	for _, p := range s.players {
		if p.ID == player.ID {
			return p, nil
		}
	}
	s.players = append(s.players, player)
	return player, nil
}

// HasQuestionFrom reports whether the user already owns a question here.
func (s *Session) HasQuestionFrom(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasQuestionFromLocked(playerID)
}

func (s *Session) hasQuestionFromLocked(playerID string) bool {
	for _, q := range s.questions {
		if q.Owner.ID == playerID {
			return true
		}
	}
	return false
}

// AddQuestion stores a submitted question, shuffling its choices once so
// the correct answer's position is not predictable. A stale submission
// after the lobby closes is rejected, as is a second question from the
// same owner.
func (s *Session) AddQuestion(q *domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseLobby {
		return domain.ErrGameStarted
	}
	if s.hasQuestionFromLocked(q.Owner.ID) {
		return domain.ErrQuestionAlreadySet
	}
	q.Choices = s.mixChoices(q.Choices)
	s.questions = append(s.questions, q)
	return nil
}

// mixChoices applies a uniform random permutation by repeatedly drawing
// a remaining choice without replacement.
func (s *Session) mixChoices(choices []domain.AnswerChoice) []domain.AnswerChoice {
	rest := append([]domain.AnswerChoice(nil), choices...)
	mixed := make([]domain.AnswerChoice, 0, len(choices))
	for len(rest) > 0 {
		i := s.rnd.Intn(len(rest))
		mixed = append(mixed, rest[i])
		rest = append(rest[:i], rest[i+1:]...)
	}
	return mixed
}

// Start transitions the session from lobby to answering. It takes at
// least two players to play.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseLobby {
		return domain.ErrGameStarted
	}
	if len(s.players) < 2 {
		return domain.ErrNotEnoughPlayers
	}
	s.phase = PhaseAnswering
	return nil
}

// NextQuestion selects the first question, in submission order, that the
// player does not own and has not answered yet, and stamps the delivery
// time. When nothing qualifies the player is marked ready and nil is
// returned; further calls keep returning nil.
func (s *Session) NextQuestion(player *domain.Player) *domain.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextQuestionLocked(player)
}

func (s *Session) nextQuestionLocked(player *domain.Player) *domain.Question {
	for _, q := range s.questions {
		if q.Owner.ID == player.ID || q.AnsweredBy(player.ID) {
			continue
		}
		player.LastQuestionSentAt = s.now()
		return q
	}
	player.IsReady = true
	return nil
}

// AnswerOutcome summarizes one recorded answer.
type AnswerOutcome struct {
	Correct bool
	Awarded int
}

// RecordAnswer records the player's choice for a question, re-deriving
// correctness from the stored choice rather than trusting the client.
// A correct answer earns the speed bonus for the latency since the
// question was delivered. The players-answered set is the single
// authoritative record: whichever of the answer path and the timeout
// path writes first wins, the other gets ErrAlreadyAnswered.
func (s *Session) RecordAnswer(playerID, questionID string, choiceIndex int) (AnswerOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseEnd {
		return AnswerOutcome{}, domain.ErrGameEnded
	}
	player := s.findPlayerLocked(playerID)
	if player == nil {
		return AnswerOutcome{}, domain.ErrPlayerNotFound
	}
	question := s.findQuestionLocked(questionID)
	if question == nil {
		return AnswerOutcome{}, domain.ErrQuestionNotFound
	}
	if question.AnsweredBy(playerID) {
		return AnswerOutcome{}, domain.ErrAlreadyAnswered
	}
	if choiceIndex < 0 || choiceIndex >= len(question.Choices) {
		return AnswerOutcome{}, fmt.Errorf("question %s: choice %d out of range", questionID, choiceIndex)
	}

	question.PlayersAnswered = append(question.PlayersAnswered, player)
	outcome := AnswerOutcome{}
	if question.Choices[choiceIndex].IsCorrect {
		elapsed := s.now().Sub(player.LastQuestionSentAt).Seconds()
		outcome.Correct = true
		outcome.Awarded = SpeedBonus(elapsed)
		player.Score += outcome.Awarded
		question.PlayersAnsweredCorrect = append(question.PlayersAnsweredCorrect, player)
	}
	return outcome, nil
}

// RecordTimeout marks an expired question as answered wrong with no
// bonus. It reports false, without mutating anything, when a real answer
// got there first or the session already ended.
func (s *Session) RecordTimeout(playerID, questionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseEnd {
		return false
	}
	player := s.findPlayerLocked(playerID)
	question := s.findQuestionLocked(questionID)
	if player == nil || question == nil || question.AnsweredBy(playerID) {
		return false
	}
	question.PlayersAnswered = append(question.PlayersAnswered, player)
	return true
}

// AutoAnswerSynthetic advances every synthetic player by one question,
// answering correctly with fixed probability and a fabricated latency.
// Only debug sessions have synthetic players; for others this is a no-op.
func (s *Session) AutoAnswerSynthetic() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debugCount == 0 || s.phase != PhaseAnswering {
		return
	}
	for _, p := range s.players {
		if !IsSynthetic(p.ID) {
			continue
		}
		q := s.nextQuestionLocked(p)
		if q == nil {
			continue
		}
		q.PlayersAnswered = append(q.PlayersAnswered, p)
		if s.rnd.Float64() < 0.65 {
			q.PlayersAnsweredCorrect = append(q.PlayersAnsweredCorrect, p)
			p.Score += SpeedBonus(float64(s.rnd.Intn(48)))
		}
	}
}

// AllReady reports whether every player has seen everything.
func (s *Session) AllReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.players {
		if !p.IsReady {
			return false
		}
	}
	return len(s.players) > 0
}

// End finalizes the session: each question's difficulty bonus is
// computed once, stored, and added to its owner's score, and the roster
// is sorted by descending final score (arrival order breaks ties). This
// runs exactly once; repeat calls fail and never double-apply bonuses.
func (s *Session) End() ([]*domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseEnd {
		return nil, domain.ErrGameEnded
	}
	s.phase = PhaseEnd
	for _, q := range s.questions {
		extra := DifficultyBonus(len(q.PlayersAnsweredCorrect), len(q.PlayersAnswered))
		q.ExtraPoints = extra
		q.Owner.Score += extra
	}
	sort.SliceStable(s.players, func(i, j int) bool {
		return s.players[i].Score > s.players[j].Score
	})
	return append([]*domain.Player(nil), s.players...), nil
}

// Progress renders the player's position in the round, counting the
// question being delivered against the total they will be asked.
func (s *Session) Progress(player *domain.Player) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	answered := 0
	for _, q := range s.questions {
		if q.AnsweredBy(player.ID) {
			answered++
		}
	}
	return fmt.Sprintf("%d/%d", answered+1, len(s.questions)-1)
}

// QuestionsKnown counts the questions the player answered correctly.
func (s *Session) QuestionsKnown(player *domain.Player) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	known := 0
	for _, q := range s.questions {
		if q.AnsweredCorrectBy(player.ID) {
			known++
		}
	}
	return known
}

// Result snapshots the final standings and question recap. Call after End.
func (s *Session) Result(endedAt time.Time) domain.GameResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := domain.GameResult{
		SessionID: s.id,
		ChannelID: s.ChannelID(),
		EndedAt:   endedAt,
	}
	for _, p := range s.players {
		result.Standings = append(result.Standings, domain.StandingEntry{
			UserID:      p.ID,
			DisplayName: p.DisplayName,
			AvatarRef:   p.AvatarRef,
			Score:       p.Score,
		})
	}
	for _, q := range s.questions {
		result.Questions = append(result.Questions, domain.QuestionRecap{
			Text:          q.Text,
			OwnerName:     q.Owner.DisplayName,
			ExtraPoints:   q.ExtraPoints,
			CorrectCount:  len(q.PlayersAnsweredCorrect),
			AnsweredCount: len(q.PlayersAnswered),
		})
	}
	return result
}

// NewQuestionID draws a question id from the session's randomness source.
func (s *Session) NewQuestionID(ownerID, questionText string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return QuestionID(s.rnd, ownerID, questionText)
}

// Player looks up a roster entry by id.
func (s *Session) Player(id string) (*domain.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findPlayerLocked(id)
	return p, p != nil
}

func (s *Session) findPlayerLocked(id string) *domain.Player {
	for _, p := range s.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *Session) findQuestionLocked(id string) *domain.Question {
	for _, q := range s.questions {
		if q.ID == id {
			return q
		}
	}
	return nil
}
