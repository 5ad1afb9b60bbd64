package types

type SuccessEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type ErrorEnvelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
	Details   any    `json:"details,omitempty"`
}
