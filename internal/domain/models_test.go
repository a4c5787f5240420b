package domain

import (
	"math/rand"
	"testing"
)

func TestTeamIDNormalization(t *testing.T) {
	cases := map[string]string{
		"Team Alpha":      "team-alpha",
		"team alpha":      "team-alpha",
		"  Team   Alpha ": "team-alpha",
		"QUIZ\tWizards":   "quiz-wizards",
		"solo":            "solo",
		"   ":             "",
	}
	for name, want := range cases {
		if got := TeamID(name); got != want {
			t.Errorf("TeamID(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestShuffleIsSeedReproducible(t *testing.T) {
	build := func() QuestionBank {
		return QuestionBank{
			PassRound: []Question{
				{ID: "p1"}, {ID: "p2"}, {ID: "p3"}, {ID: "p4"}, {ID: "p5"},
			},
		}
	}

	a := build()
	a.Shuffle(rand.New(rand.NewSource(42)))
	b := build()
	b.Shuffle(rand.New(rand.NewSource(42)))

	for i := range a.PassRound {
		if a.PassRound[i].ID != b.PassRound[i].ID {
			t.Fatalf("same seed produced different orders: %v vs %v", a.PassRound, b.PassRound)
		}
	}
}

func TestForRound(t *testing.T) {
	bank := QuestionBank{
		PassRound:      []Question{{ID: "p1"}},
		BuzzerRound:    []Question{{ID: "b1"}},
		RapidFireRound: []Question{{ID: "r1"}},
	}
	if got := bank.ForRound(RoundPass); len(got) != 1 || got[0].ID != "p1" {
		t.Fatalf("pass round: %+v", got)
	}
	if got := bank.ForRound(RoundBuzzer); got[0].ID != "b1" {
		t.Fatalf("buzzer round: %+v", got)
	}
	if got := bank.ForRound(RoundRapidFire); got[0].ID != "r1" {
		t.Fatalf("rapid fire round: %+v", got)
	}
	if got := bank.ForRound(RoundLobby); got != nil {
		t.Fatalf("lobby should have no questions, got %+v", got)
	}
}
