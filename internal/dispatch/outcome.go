package dispatch

// Outcome classifies a push service response.
type Outcome int

const (
	// OutcomeDelivered means the push service accepted the message.
	OutcomeDelivered Outcome = iota
	// OutcomeGone means the endpoint no longer exists; the subscription
	// row should be deleted.
	OutcomeGone
	// OutcomeFailed covers everything else. No retry, no corrective
	// action; the next scheduled minute gets another chance.
	OutcomeFailed
)

// ClassifyStatus maps an HTTP status from a push service to an Outcome.
func ClassifyStatus(status int) Outcome {
	switch status {
	case 200, 201:
		return OutcomeDelivered
	case 404, 410:
		return OutcomeGone
	default:
		return OutcomeFailed
	}
}
