package funding

// Request names the user the operation applies to. An empty UserID means
// the authenticated caller.
type Request struct {
	UserID string `json:"userId"`
}

// Response is returned for a confirmed deposit or withdrawal.
type Response struct {
	Message         string `json:"message"`
	TransactionHash string `json:"transactionHash"`
}
