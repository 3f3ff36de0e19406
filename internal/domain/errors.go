package domain

import "errors"

var (
	// ErrGameExists is returned when a session id is already registered.
	ErrGameExists = errors.New("game already exists")
	// ErrGameNotFound is returned when no session is registered under the id.
	ErrGameNotFound = errors.New("game not found")
	// ErrGameStarted is returned for lobby-only operations after the game started.
	ErrGameStarted = errors.New("game already started")
	// ErrGameEnded is returned when acting on a session that already ended.
	ErrGameEnded = errors.New("game already ended")
	// ErrQuestionAlreadySet is returned when a player submits a second question.
	ErrQuestionAlreadySet = errors.New("player has already set a question")
	// ErrAlreadyAnswered guards double-submission for one player/question pair.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrNotEnoughPlayers is returned when starting with fewer than two players.
	ErrNotEnoughPlayers = errors.New("not enough players to start")
	// ErrPlayerNotFound is returned when the acting user is not in the roster.
	ErrPlayerNotFound = errors.New("player not found in game")
	// ErrQuestionNotFound indicates a submitted question id is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrProfileNotFound indicates the user directory has no such user.
	ErrProfileNotFound = errors.New("profile not found")
)
