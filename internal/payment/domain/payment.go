package domain

// Result is the structured outcome of a payment authorization. It is never
// collapsed to a bare boolean: callers need to tell a declined charge
// (Message) from a successful one (TransactionID) without reading logs.
type Result struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

func Approved(transactionID string) Result {
	return Result{Success: true, TransactionID: transactionID}
}

func Refused(message string) Result {
	return Result{Success: false, Message: message}
}
