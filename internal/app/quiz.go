package app

import (
	"sync"
	"time"

	"neonquiz/internal/domain"
)

const (
	// rapidFireSeconds is the per-question countdown in the rapid-fire round.
	rapidFireSeconds = 8
	// buzzerWindow is how long after the first buzz other teams may still
	// buzz to appear in the reaction-time ranking.
	buzzerWindow = 2500 * time.Millisecond

	passPoints      = 1
	buzzerPoints    = 1.5
	rapidFirePoints = 2
)

// Event is what subscribers receive: either a full state snapshot or a
// transient buzzer cue. Exactly one field is set.
type Event struct {
	State  *domain.QuizState
	Effect *domain.BuzzerEffect
}

// Quiz is the authoritative state for one competition. One process hosts one
// quiz; every mutation happens under the mutex and ends with a broadcast to
// all subscribers, so connected clients converge on the same snapshot.
type Quiz struct {
	mu   sync.Mutex
	now  func() time.Time
	bank domain.QuestionBank

	teams  map[string]*domain.Team
	roster []string // team ids in registration order; defines "next team"

	round         domain.Round
	questionIndex int
	activeTeam    string

	buzzerLocked   bool
	buzzerWinner   string
	buzzerReaction *int64
	buzzes         []domain.BuzzerBuzz
	windowEnd      time.Time // zero when no window is open
	questionStart  time.Time // zero when no reaction baseline is set

	rapidTimer    int
	rapidRunning  bool
	rapidAnswered map[string][]string // question id -> team ids that scored

	localIP string

	subscribers map[chan Event]struct{}
}

// NewQuiz creates an empty lobby over an already-shuffled bank.
func NewQuiz(bank domain.QuestionBank) *Quiz {
	return NewQuizWithClock(bank, time.Now)
}

// NewQuizWithClock allows deterministic timestamps in tests.
func NewQuizWithClock(bank domain.QuestionBank, now func() time.Time) *Quiz {
	return &Quiz{
		now:           now,
		bank:          bank,
		teams:         make(map[string]*domain.Team),
		rapidTimer:    rapidFireSeconds,
		rapidAnswered: make(map[string][]string),
		subscribers:   make(map[chan Event]struct{}),
	}
}

// RegisterTeam creates a team on first registration or re-binds the session
// on repeat registration of the same normalized name. Scores and the
// display name survive re-registration; only the connection changes.
func (q *Quiz) RegisterTeam(name, sessionID string) (domain.Team, error) {
	id := domain.TeamID(name)
	if id == "" {
		return domain.Team{}, domain.ErrEmptyTeamName
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	team, ok := q.teams[id]
	if ok {
		team.SessionID = sessionID
	} else {
		team = &domain.Team{ID: id, Name: name, SessionID: sessionID}
		q.teams[id] = team
		q.roster = append(q.roster, id)
	}
	q.broadcastLocked()
	return *team, nil
}

// Buzz handles a buzzer press. Outside the buzzer round, after lock, or on a
// repeat press from the same team it is silently ignored; those are expected
// races, not faults.
func (q *Quiz) Buzz(teamID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.round != domain.RoundBuzzer || q.buzzerLocked {
		return
	}
	for _, b := range q.buzzes {
		if b.TeamID == teamID {
			return
		}
	}

	now := q.now()
	var reaction int64
	if !q.questionStart.IsZero() {
		reaction = now.Sub(q.questionStart).Milliseconds()
	}

	// Every attempt is recorded for the ranking display.
	q.buzzes = append(q.buzzes, domain.BuzzerBuzz{TeamID: teamID, ReactionTime: reaction})

	// First buzz wins the question and opens the grace window; later buzzes
	// only populate the ranking.
	if q.buzzerWinner == "" {
		q.buzzerWinner = teamID
		r := reaction
		q.buzzerReaction = &r
		q.windowEnd = now.Add(buzzerWindow)
		q.emitLocked(Event{Effect: &domain.BuzzerEffect{TeamID: teamID, ReactionTime: reaction}})
	}

	q.broadcastLocked()
}

// SubmitAnswer scores an answer according to the active round's eligibility
// rules. Ineligible submissions and submissions past the end of the question
// sequence change nothing.
func (q *Quiz) SubmitAnswer(teamID, answer string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	questions := q.bank.ForRound(q.round)
	if q.questionIndex < 0 || q.questionIndex >= len(questions) {
		return
	}
	question := questions[q.questionIndex]

	team, ok := q.teams[teamID]
	if !ok {
		return
	}

	alreadyScored := false
	for _, id := range q.rapidAnswered[question.ID] {
		if id == teamID {
			alreadyScored = true
			break
		}
	}

	allowed := (q.round == domain.RoundPass && q.activeTeam == teamID) ||
		(q.round == domain.RoundBuzzer && q.buzzerWinner == teamID) ||
		(q.round == domain.RoundRapidFire && q.rapidRunning && !alreadyScored)
	if !allowed {
		return
	}

	if answer == question.Answer {
		q.applyCorrectLocked(team, question)
	} else if q.round == domain.RoundBuzzer {
		// Wrong buzzer answer reopens the question for a second buzz. The
		// recorded attempts stay, so teams that already buzzed are out.
		q.buzzerLocked = false
		q.buzzerWinner = ""
	}

	q.broadcastLocked()
}

func (q *Quiz) applyCorrectLocked(team *domain.Team, question domain.Question) {
	var points float64
	switch q.round {
	case domain.RoundPass:
		points = passPoints
		team.Round1Score += points
	case domain.RoundBuzzer:
		points = buzzerPoints
		team.Round2Score += points
	case domain.RoundRapidFire:
		points = rapidFirePoints
		team.Round3Score += points
	}
	team.Score += points

	if q.round == domain.RoundRapidFire {
		q.rapidAnswered[question.ID] = append(q.rapidAnswered[question.ID], team.ID)
	}

	// Pass and buzzer advance immediately; rapid-fire keeps the question
	// alive for the rest of the countdown so other teams can score too.
	if q.round == domain.RoundPass || q.round == domain.RoundBuzzer {
		q.questionIndex++
		q.clearBuzzerLocked()
		q.questionStart = q.now()
	}

	if q.round == domain.RoundPass {
		q.rotateActiveLocked()
	}

	if q.round == domain.RoundRapidFire && q.questionIndex >= len(q.bank.RapidFireRound) {
		q.rapidRunning = false
		q.questionIndex = len(q.bank.RapidFireRound) - 1
	}
}

// Apply executes an admin command. Every command ends with a full-state
// broadcast, whether or not it changed anything.
func (q *Quiz) Apply(cmd domain.Command) {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch c := cmd.(type) {
	case domain.StartRound:
		q.startRoundLocked(c.Round)
	case domain.NextQuestion:
		q.questionIndex++
		q.clearBuzzerLocked()
		q.questionStart = q.now()
	case domain.AdjustScore:
		q.adjustScoreLocked(c.TeamID, c.Amount)
	case domain.ResetBuzzer:
		q.clearBuzzerLocked()
		q.questionStart = q.now()
	case domain.PassControl:
		q.rotateActiveLocked()
	case domain.ToggleRapidFire:
		q.rapidRunning = c.Running
	case domain.ResetQuiz:
		q.resetLocked()
	}

	q.broadcastLocked()
}

func (q *Quiz) startRoundLocked(round domain.Round) {
	if !round.Valid() {
		return
	}
	q.round = round
	q.questionIndex = 0
	q.clearBuzzerLocked()
	q.questionStart = time.Time{}
	q.rapidRunning = false

	switch round {
	case domain.RoundPass:
		if len(q.roster) > 0 {
			q.activeTeam = q.roster[0]
		} else {
			q.activeTeam = ""
		}
	case domain.RoundBuzzer:
		q.questionStart = q.now()
	case domain.RoundRapidFire:
		q.rapidTimer = rapidFireSeconds
		q.rapidAnswered = make(map[string][]string)
	}
}

func (q *Quiz) adjustScoreLocked(teamID string, amount float64) {
	team, ok := q.teams[teamID]
	if !ok {
		return
	}
	newTotal := team.Score + amount
	if newTotal < 0 {
		newTotal = 0
	}
	delta := newTotal - team.Score
	team.Score = newTotal
	if delta == 0 {
		return
	}
	// The applied delta, not the requested amount, lands in the active
	// round's bucket; outside any round only the total moves.
	switch q.round {
	case domain.RoundPass:
		team.Round1Score = clampZero(team.Round1Score + delta)
	case domain.RoundBuzzer:
		team.Round2Score = clampZero(team.Round2Score + delta)
	case domain.RoundRapidFire:
		team.Round3Score = clampZero(team.Round3Score + delta)
	}
}

func (q *Quiz) rotateActiveLocked() {
	if len(q.roster) == 0 {
		q.activeTeam = ""
		return
	}
	current := -1
	for i, id := range q.roster {
		if id == q.activeTeam {
			current = i
			break
		}
	}
	q.activeTeam = q.roster[(current+1)%len(q.roster)]
}

func (q *Quiz) resetLocked() {
	q.teams = make(map[string]*domain.Team)
	q.roster = nil
	q.round = domain.RoundLobby
	q.questionIndex = 0
	q.activeTeam = ""
	q.clearBuzzerLocked()
	q.questionStart = time.Time{}
	q.rapidTimer = rapidFireSeconds
	q.rapidRunning = false
	q.rapidAnswered = make(map[string][]string)
}

func (q *Quiz) clearBuzzerLocked() {
	q.buzzerLocked = false
	q.buzzerWinner = ""
	q.buzzerReaction = nil
	q.buzzes = nil
	q.windowEnd = time.Time{}
}

// Tick advances wall-clock-driven behavior: the rapid-fire countdown and the
// buzzer grace window. It runs once per second for the process lifetime and
// broadcasts only when one of its branches applied.
func (q *Quiz) Tick() {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()

	rapidActive := q.round == domain.RoundRapidFire && q.rapidRunning
	if rapidActive {
		q.rapidTimer--
		if q.rapidTimer <= 0 {
			q.questionIndex++
			q.rapidTimer = rapidFireSeconds
			if q.questionIndex >= len(q.bank.RapidFireRound) {
				q.rapidRunning = false
				q.questionIndex = len(q.bank.RapidFireRound) - 1
			}
		}
	}

	windowClosed := q.round == domain.RoundBuzzer &&
		!q.buzzerLocked &&
		q.buzzerWinner != "" &&
		!q.windowEnd.IsZero() &&
		!now.Before(q.windowEnd)
	if windowClosed {
		q.buzzerLocked = true
	}

	if rapidActive || windowClosed {
		q.broadcastLocked()
	}
}

// SetLocalIP records the address shown to clients in the join URL.
func (q *Quiz) SetLocalIP(ip string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.localIP = ip
	q.broadcastLocked()
}

// Snapshot returns the current full state.
func (q *Quiz) Snapshot() domain.QuizState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Subscribe returns a channel of events (state snapshots and buzzer cues).
// The caller must invoke the returned cancel function to avoid leaks.
func (q *Quiz) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)

	q.mu.Lock()
	q.subscribers[ch] = struct{}{}
	initial := q.snapshotLocked()
	q.mu.Unlock()

	ch <- Event{State: &initial}

	cancel := func() {
		q.mu.Lock()
		if _, ok := q.subscribers[ch]; ok {
			delete(q.subscribers, ch)
			close(ch)
		}
		q.mu.Unlock()
	}
	return ch, cancel
}

func (q *Quiz) broadcastLocked() {
	state := q.snapshotLocked()
	q.emitLocked(Event{State: &state})
}

func (q *Quiz) emitLocked(ev Event) {
	for ch := range q.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop the oldest buffered event so a slow client never blocks
			// the dispatcher.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

func (q *Quiz) snapshotLocked() domain.QuizState {
	teams := make(map[string]domain.Team, len(q.teams))
	for id, team := range q.teams {
		teams[id] = *team
	}

	roster := make([]string, len(q.roster))
	copy(roster, q.roster)

	buzzes := make([]domain.BuzzerBuzz, len(q.buzzes))
	copy(buzzes, q.buzzes)

	answered := make(map[string][]string, len(q.rapidAnswered))
	for id, teamIDs := range q.rapidAnswered {
		answered[id] = append([]string(nil), teamIDs...)
	}

	var reaction *int64
	if q.buzzerReaction != nil {
		r := *q.buzzerReaction
		reaction = &r
	}

	return domain.QuizState{
		Teams:                  teams,
		Roster:                 roster,
		CurrentRound:           q.round,
		CurrentQuestionIndex:   q.questionIndex,
		ActiveTeamID:           optionalString(q.activeTeam),
		BuzzerLocked:           q.buzzerLocked,
		BuzzerWinner:           optionalString(q.buzzerWinner),
		BuzzerReactionTime:     reaction,
		BuzzerBuzzes:           buzzes,
		BuzzerWindowEndTime:    optionalMillis(q.windowEnd),
		QuestionStartTime:      optionalMillis(q.questionStart),
		RapidFireTimer:         q.rapidTimer,
		IsRapidFireRunning:     q.rapidRunning,
		RapidFireAnsweredTeams: answered,
		LocalIP:                q.localIP,
		Questions:              q.bank,
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalMillis(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func clampZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
