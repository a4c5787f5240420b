package domain

// Command is the closed set of admin actions. Each variant carries only its
// required fields; the transport layer decodes the wire {type,payload} form
// into one of these before it reaches the state machine.
type Command interface {
	isCommand()
}

// StartRound jumps to a round and resets round-scoped transient state.
type StartRound struct {
	Round Round
}

// NextQuestion advances the question cursor manually (Pass/Buzzer rounds).
type NextQuestion struct{}

// AdjustScore applies a manual delta to a team's total, clamped at zero.
// The applied delta, not the requested amount, lands in the active round's
// bucket.
type AdjustScore struct {
	TeamID string
	Amount float64
}

// ResetBuzzer clears all buzzer state and restarts the reaction clock,
// regardless of lock state.
type ResetBuzzer struct{}

// PassControl rotates the active team to the next roster entry.
type PassControl struct{}

// ToggleRapidFire starts or stops the rapid-fire countdown.
type ToggleRapidFire struct {
	Running bool
}

// ResetQuiz returns the whole quiz to the initial empty lobby. Question
// order is kept; shuffling is a startup-only concern.
type ResetQuiz struct{}

func (StartRound) isCommand()      {}
func (NextQuestion) isCommand()    {}
func (AdjustScore) isCommand()     {}
func (ResetBuzzer) isCommand()     {}
func (PassControl) isCommand()     {}
func (ToggleRapidFire) isCommand() {}
func (ResetQuiz) isCommand()       {}
