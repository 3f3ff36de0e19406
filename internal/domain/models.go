package domain

import "time"

// Player is a participant in one trivia session. Score and readiness
// mutate during the answering phase; the record dies with the session.
type Player struct {
	ID                 string
	DisplayName        string
	AvatarRef          string
	Score              int
	IsAdmin            bool
	IsReady            bool
	LastQuestionSentAt time.Time
}

// AnswerChoice is one of a question's four options. Exactly one choice
// per question carries IsCorrect=true. The order is randomized once when
// the question is submitted and never reordered again.
type AnswerChoice struct {
	Text      string
	IsCorrect bool
}

// Question is a player-submitted question plus the running record of who
// answered it. PlayersAnsweredCorrect is always a subset of
// PlayersAnswered. ExtraPoints is computed once, at session end.
type Question struct {
	ID                     string
	Owner                  *Player
	Text                   string
	Choices                []AnswerChoice
	PlayersAnswered        []*Player
	PlayersAnsweredCorrect []*Player
	ExtraPoints            int
}

// AnsweredBy reports whether the player already answered this question.
func (q *Question) AnsweredBy(playerID string) bool {
	for _, p := range q.PlayersAnswered {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

// AnsweredCorrectBy reports whether the player answered this question correctly.
func (q *Question) AnsweredCorrectBy(playerID string) bool {
	for _, p := range q.PlayersAnsweredCorrect {
		if p.ID == playerID {
			return true
		}
	}
	return false
}

// Profile is a user directory entry.
type Profile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef"`
}

// QuestionSubmission is the structural form payload for submitting a question.
type QuestionSubmission struct {
	SessionID    string
	UserID       string
	IsAdmin      bool
	QuestionText string
	RightAnswer  string
	WrongAnswers [3]string
}

// MessageRef is an opaque handle to a posted channel message.
type MessageRef string

// StandingEntry is one row of the final scoreboard.
type StandingEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef"`
	Score       int    `json:"score"`
}

// QuestionRecap summarizes one question for the end-of-game view.
type QuestionRecap struct {
	Text          string `json:"text"`
	OwnerName     string `json:"ownerName"`
	ExtraPoints   int    `json:"extraPoints"`
	CorrectCount  int    `json:"correctCount"`
	AnsweredCount int    `json:"answeredCount"`
}

// GameResult is the finalized outcome of a session, as archived and as
// rendered into the channel summary.
type GameResult struct {
	SessionID string          `json:"sessionId"`
	ChannelID string          `json:"channelId"`
	EndedAt   time.Time       `json:"endedAt"`
	Standings []StandingEntry `json:"standings"`
	Questions []QuestionRecap `json:"questions"`
}
