package game

import (
	"fmt"
	"math/rand"
	"strings"

	"trivia-service/internal/domain"
)

// syntheticIDPrefix marks roster entries injected for debug sessions.
// Synthetic players never receive real message deliveries.
const syntheticIDPrefix = "debug"

const syntheticAvatarRef = "avatar:synthetic"

var fakeFirstNames = []string{
	"Alma", "Bruno", "Celia", "Dmitri",
	"Edith", "Ferdinand", "Greta", "Hugo",
}

var fakeSurnames = []string{
	"Applewood", "Birchall", "Cromwell",
	"Dunmore", "Eastgate", "Fairbanks",
}

var fakeQuestions = []string{
	"Where did everybody go?",
	"To be or not to be?",
	"Is this bot any good?",
	"Who came up with these questions?",
	"Do we really need this many?",
	"What if someone asks the same thing twice?",
	"Is it broken yet?",
	"Does this thing even work?",
	"Where is this running from?",
	"How long is a piece of string?",
}

var fakeAnswers = []string{
	"It depends", "Doesn't really matter", "Sort of",
	"Well", "No", "Blanks", "Away",
	"At seven", "Could be", "Canada", "No way",
	"Whenever", "A pike", "A samovar",
}

// IsSynthetic reports whether a player id belongs to a debug-injected player.
func IsSynthetic(playerID string) bool {
	return strings.HasPrefix(playerID, syntheticIDPrefix)
}

// pickUnique draws a random item from stack that is not yet in used,
// advancing linearly (with wrap-around) from the initial random index
// until a fresh one is found. The caller must leave at least one
// candidate unused.
func pickUnique(rnd *rand.Rand, stack, used []string) string {
	idx := rnd.Intn(len(stack))
	for {
		candidate := stack[idx]
		taken := false
		for _, u := range used {
			if u == candidate {
				taken = true
				break
			}
		}
		if !taken {
			return candidate
		}
		idx = (idx + 1) % len(stack)
	}
}

func fakePlayers(rnd *rand.Rand, amount int) []*domain.Player {
	players := make([]*domain.Player, 0, amount)
	for i := 0; i < amount; i++ {
		players = append(players, &domain.Player{
			ID:          fmt.Sprintf("%s%d", syntheticIDPrefix, i),
			DisplayName: fakeFirstNames[rnd.Intn(len(fakeFirstNames))] + " " + fakeSurnames[rnd.Intn(len(fakeSurnames))],
			AvatarRef:   syntheticAvatarRef,
		})
	}
	return players
}

func fakeQuestion(rnd *rand.Rand, owner *domain.Player) *domain.Question {
	choices := make([]domain.AnswerChoice, 0, 4)
	used := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		text := pickUnique(rnd, fakeAnswers, used)
		used = append(used, text)
		choices = append(choices, domain.AnswerChoice{
			Text:      text,
			IsCorrect: i == 0,
		})
	}
	text := fakeQuestions[rnd.Intn(len(fakeQuestions))]
	return &domain.Question{
		ID:      QuestionID(rnd, owner.ID, text),
		Owner:   owner,
		Text:    text,
		Choices: choices,
	}
}
