package enums

// OutboxEventType identifies the domain event stored in an outbox row.
type OutboxEventType string

const (
	EventOrderCreated             OutboxEventType = "order.created"
	EventOrderCancelled           OutboxEventType = "order.cancelled"
	EventVendorOrderStatusChanged OutboxEventType = "vendor_order.status_changed"
	EventVendorOrderShipped       OutboxEventType = "vendor_order.shipped"
	EventVendorOrderCancelled     OutboxEventType = "vendor_order.cancelled"
	EventPaymentCompleted         OutboxEventType = "payment.completed"
	EventPaymentFailed            OutboxEventType = "payment.failed"
	EventReceiptRequested         OutboxEventType = "receipt.requested"
)

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateMasterOrder OutboxAggregateType = "master_order"
	AggregateVendorOrder OutboxAggregateType = "vendor_order"
	AggregatePayment     OutboxAggregateType = "payment"
)
