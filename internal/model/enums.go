package model

// Result is the user-reported outcome of a completed focus block.
type Result string

const (
	ResultDone    Result = "done"
	ResultPartial Result = "partial"
	ResultBlocked Result = "blocked"
)

func (r Result) Valid() bool {
	switch r {
	case ResultDone, ResultPartial, ResultBlocked:
		return true
	}
	return false
}

// BlockState is the lifecycle state of the current focus block.
type BlockState string

const (
	StateIdle         BlockState = "idle"
	StateStartCheckin BlockState = "start-checkin"
	StateRunning      BlockState = "running"
	StateEndCheckin   BlockState = "end-checkin"
	StateSummary      BlockState = "summary"
)
