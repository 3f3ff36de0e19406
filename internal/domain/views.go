package domain

// Message is the renderable content handed to the Messenger. Exactly one
// of the payload fields is set, discriminated by Type; the transport
// serializes it as-is and leaves rendering to the client.
type Message struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	Lobby      *LobbyView      `json:"lobby,omitempty"`
	Question   *QuestionView   `json:"question,omitempty"`
	Ready      *ReadyView      `json:"ready,omitempty"`
	Scoreboard *GameResult     `json:"scoreboard,omitempty"`
	Form       *QuestionFormRef `json:"form,omitempty"`
}

// LobbyView is the join message posted to the channel and kept up to
// date with the player count while the lobby is open.
type LobbyView struct {
	SessionID   string `json:"sessionId"`
	AdminName   string `json:"adminName"`
	PlayerCount int    `json:"playerCount"`
}

// QuestionView is a question delivery to a single player. Choices carry
// only text; the answer reference round-trips the choice index, never
// the correctness flag.
type QuestionView struct {
	SessionID   string   `json:"sessionId"`
	QuestionID  string   `json:"questionId"`
	Text        string   `json:"text"`
	Choices     []string `json:"choices"`
	Progress    string   `json:"progress"`
	ScoreEarned *int     `json:"scoreEarned,omitempty"`
}

// ReadyView tells a player they have answered everything.
type ReadyView struct {
	QuestionsKnown int  `json:"questionsKnown"`
	Total          int  `json:"total"`
	ScoreEarned    *int `json:"scoreEarned,omitempty"`
}

// QuestionFormRef asks the client to open the question form for a session.
type QuestionFormRef struct {
	SessionID string `json:"sessionId"`
	IsAdmin   bool   `json:"isAdmin"`
}
