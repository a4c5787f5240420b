package domain

import (
	"math/rand"
	"strings"
)

// Round identifies the quiz phase. Admins may jump between rounds freely;
// the ordinals match what clients render.
type Round int

const (
	RoundLobby Round = iota
	RoundPass
	RoundBuzzer
	RoundRapidFire
)

func (r Round) String() string {
	switch r {
	case RoundLobby:
		return "lobby"
	case RoundPass:
		return "pass"
	case RoundBuzzer:
		return "buzzer"
	case RoundRapidFire:
		return "rapid-fire"
	}
	return "unknown"
}

// Valid reports whether r is one of the four known rounds.
func (r Round) Valid() bool {
	return r >= RoundLobby && r <= RoundRapidFire
}

// Team is a registered competitor. Score is the cumulative total; the three
// round buckets hold per-round subtotals for the post-quiz breakdown.
// SessionID is the websocket connection currently representing the team.
type Team struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	SessionID   string  `json:"sessionId"`
	Round1Score float64 `json:"round1Score"`
	Round2Score float64 `json:"round2Score"`
	Round3Score float64 `json:"round3Score"`
}

// TeamID derives the stable identity for a display name: lowercased, with
// whitespace runs collapsed to a single dash. The same name always maps to
// the same id, so re-registration updates instead of duplicating.
func TeamID(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// Question is an immutable bank entry. Pass and buzzer questions carry no
// options (free verbal response); rapid-fire questions are multiple choice.
type Question struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// QuestionBank holds the three per-round sequences.
type QuestionBank struct {
	PassRound      []Question `json:"passRound"`
	BuzzerRound    []Question `json:"buzzerRound"`
	RapidFireRound []Question `json:"rapidFireRound"`
}

// Shuffle randomizes each round's order in place using the supplied source.
// Called once at process start; a quiz reset does not reshuffle.
func (b *QuestionBank) Shuffle(rnd *rand.Rand) {
	for _, qs := range [][]Question{b.PassRound, b.BuzzerRound, b.RapidFireRound} {
		qs := qs
		rnd.Shuffle(len(qs), func(i, j int) {
			qs[i], qs[j] = qs[j], qs[i]
		})
	}
}

// ForRound returns the question sequence for a round, or nil outside the
// three playing rounds.
func (b QuestionBank) ForRound(r Round) []Question {
	switch r {
	case RoundPass:
		return b.PassRound
	case RoundBuzzer:
		return b.BuzzerRound
	case RoundRapidFire:
		return b.RapidFireRound
	}
	return nil
}

// BuzzerBuzz records one team's attempt on the current buzzer question.
// Every attempt is kept for the on-screen reaction-time ranking, not just
// the winning one.
type BuzzerBuzz struct {
	TeamID       string `json:"teamId"`
	ReactionTime int64  `json:"reactionTime"`
}

// BuzzerEffect is the transient cue emitted when a buzz wins the question.
// It is fired once and never replayed to late joiners.
type BuzzerEffect struct {
	TeamID       string `json:"teamId"`
	ReactionTime int64  `json:"reactionTime"`
}

// QuizState is the full snapshot broadcast to every client after each
// mutation. Timestamps are unix milliseconds; nullable fields are pointers
// so clients see explicit nulls.
type QuizState struct {
	Teams                  map[string]Team     `json:"teams"`
	Roster                 []string            `json:"roster"`
	CurrentRound           Round               `json:"currentRound"`
	CurrentQuestionIndex   int                 `json:"currentQuestionIndex"`
	ActiveTeamID           *string             `json:"activeTeamId"`
	BuzzerLocked           bool                `json:"buzzerLocked"`
	BuzzerWinner           *string             `json:"buzzerWinner"`
	BuzzerReactionTime     *int64              `json:"buzzerReactionTime"`
	BuzzerBuzzes           []BuzzerBuzz        `json:"buzzerBuzzes"`
	BuzzerWindowEndTime    *int64              `json:"buzzerWindowEndTime"`
	QuestionStartTime      *int64              `json:"questionStartTime"`
	RapidFireTimer         int                 `json:"rapidFireTimer"`
	IsRapidFireRunning     bool                `json:"isRapidFireRunning"`
	RapidFireAnsweredTeams map[string][]string `json:"rapidFireAnsweredTeams"`
	LocalIP                string              `json:"localIp"`
	Questions              QuestionBank        `json:"questions"`
}
