package domain

// Identity is the result of verifying an identity assertion
type Identity struct {
	Subject    string                 `json:"subject"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}
