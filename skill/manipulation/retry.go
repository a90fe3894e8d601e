package manipulation

// RetryState counts failed attempts of one executor. It is passed into every
// Execute call and survives between calls until it is reset.
type RetryState struct {
	Attempts   int `json:"attempts"`
	MaxRetries int `json:"max_retries"`
}

func NewRetryState(maxRetries int) *RetryState {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryState{MaxRetries: maxRetries}
}

// Exhausted reports attempts > max retries.
func (r *RetryState) Exhausted() bool {
	return r.Attempts > r.MaxRetries
}

func (r *RetryState) Fail() {
	r.Attempts++
}

func (r *RetryState) Reset() {
	r.Attempts = 0
}
