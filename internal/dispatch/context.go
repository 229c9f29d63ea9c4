package dispatch

import (
	"github.com/courierhq/sendcore/internal/service/sending"
)

// SendingContext is the per-call bundle of collaborators a matching or
// reporting operation needs: repository access and the secret keys that
// unlock outbox credentials downstream. It is owned exclusively by the call
// that creates it and is never stored by the dispatch layer.
//
// Cancellation travels separately, as the context.Context argument of each
// operation.
type SendingContext struct {
	Repo       sending.Repository
	SecretKeys []string
}
