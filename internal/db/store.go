package db

// Store bundles every repository over one DBTX. Built over a pgx.Tx it
// gives the callers of TxManager.RunInTx transaction-scoped repositories.
type Store struct {
	*UserRepository
	*SessionRepository
	*SubscriptionRepository
	*PaymentRepository
	*WebhookEventRepository
	*MessageUsageRepository
}

// NewStore creates a Store backed by db.
func NewStore(db DBTX) *Store {
	return &Store{
		UserRepository:         NewUserRepository(db),
		SessionRepository:      NewSessionRepository(db),
		SubscriptionRepository: NewSubscriptionRepository(db),
		PaymentRepository:      NewPaymentRepository(db),
		WebhookEventRepository: NewWebhookEventRepository(db),
		MessageUsageRepository: NewMessageUsageRepository(db),
	}
}
