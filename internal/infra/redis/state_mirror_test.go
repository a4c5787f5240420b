package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"neonquiz/internal/app"
	"neonquiz/internal/domain"
)

func newMirror(t *testing.T) (*StateMirror, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStateMirror(client, time.Minute), mr, client
}

func sampleState() domain.QuizState {
	return domain.QuizState{
		Teams: map[string]domain.Team{
			"team-a": {ID: "team-a", Name: "Team A", Score: 3.5},
			"team-b": {ID: "team-b", Name: "Team B", Score: 2},
		},
		CurrentRound: domain.RoundBuzzer,
	}
}

func TestPublishMirrorsSnapshotAndScoreboard(t *testing.T) {
	mirror, mr, client := newMirror(t)
	ctx := context.Background()

	mirror.Publish(ctx, sampleState())

	if !mr.Exists("quiz:state") {
		t.Fatalf("expected quiz:state key to be set")
	}
	raw, err := client.Get(ctx, "quiz:state").Result()
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	var state domain.QuizState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		t.Fatalf("unmarshal mirrored state: %v", err)
	}
	if state.CurrentRound != domain.RoundBuzzer || len(state.Teams) != 2 {
		t.Fatalf("unexpected mirrored state: %+v", state)
	}

	score, err := client.ZScore(ctx, "quiz:scoreboard", "team-a").Result()
	if err != nil {
		t.Fatalf("zscore: %v", err)
	}
	if score != 3.5 {
		t.Fatalf("expected team-a score 3.5, got %v", score)
	}
}

func TestPublishAfterResetClearsScoreboard(t *testing.T) {
	mirror, mr, _ := newMirror(t)
	ctx := context.Background()

	mirror.Publish(ctx, sampleState())
	mirror.Publish(ctx, domain.QuizState{Teams: map[string]domain.Team{}})

	if mr.Exists("quiz:scoreboard") {
		t.Fatalf("expected scoreboard cleared after reset snapshot")
	}
}

func TestRunMirrorsQuizBroadcasts(t *testing.T) {
	mirror, mr, _ := newMirror(t)

	quiz := app.NewQuiz(domain.QuestionBank{})
	events, cancel := quiz.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	done := make(chan struct{})
	go func() {
		defer close(done)
		mirror.Run(ctx, events)
	}()

	if _, err := quiz.RegisterTeam("Team A", "sess-1"); err != nil {
		t.Fatalf("register: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for !mr.Exists("quiz:state") {
		select {
		case <-deadline:
			t.Fatalf("mirror never wrote quiz:state")
		case <-time.After(10 * time.Millisecond):
		}
	}

	stop()
	<-done
}
