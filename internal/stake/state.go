package stake

// Step is a state of the stake attempt state machine
type Step string

const (
	StepIdle      Step = "idle"
	StepApproving Step = "approving"
	StepStaking   Step = "staking"
	StepSuccess   Step = "success"
	StepError     Step = "error"
)

// IsLoading reports whether a chain interaction is in progress
func (s Step) IsLoading() bool {
	return s == StepApproving || s == StepStaking
}

// IsTerminal reports whether the attempt has finished
func (s Step) IsTerminal() bool {
	return s == StepSuccess || s == StepError
}

// validTransitions lists the forward edges of one attempt.
// idle is reachable only through Reset or the start of a new attempt.
var validTransitions = map[Step][]Step{
	StepIdle:      {StepApproving},
	StepApproving: {StepStaking, StepError},
	StepStaking:   {StepSuccess, StepError},
}

func canTransition(from, to Step) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// State is a snapshot of a stake attempt
type State struct {
	Step   Step
	Error  string
	Code   ErrorCode
	TxHash string
}
