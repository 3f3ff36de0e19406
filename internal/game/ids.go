package game

import (
	"math/rand"
	"strconv"
	"strings"
)

// QuestionID builds a short, human-debuggable question id from a prefix
// of the owner id and question text plus a random suffix. It is not
// guaranteed collision-free; ids are only used for lookup within a
// single session, where the roster is small.
func QuestionID(rnd *rand.Rand, ownerID, questionText string) string {
	suffix := rnd.Intn(512)
	shortID := ownerID
	if len(ownerID) > 7 {
		shortID = ownerID[:6]
	}
	shortText := questionText
	if runes := []rune(questionText); len(runes) > 10 {
		shortText = string(runes[:9])
	}
	return strings.ReplaceAll(shortID+shortText+strconv.Itoa(suffix), " ", "_")
}
