package events

// Topic constants for domain events emitted by the register.
const (
	TopicSaleConfirmed = "sale.confirmed"
	TopicClientCreated = "client.created"
)
