package orders

type Status string

const (
	StatusPending        Status = "PENDING"
	StatusConfirmed      Status = "CONFIRMED"
	StatusProcessing     Status = "PROCESSING"
	StatusReadyToShip    Status = "READY_TO_SHIP"
	StatusShipped        Status = "SHIPPED"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusCompleted      Status = "COMPLETED"
	StatusCancelled      Status = "CANCELLED"
	StatusPaymentFailed  Status = "PAYMENT_FAILED"
	StatusRefunded       Status = "REFUNDED"
	StatusReturned       Status = "RETURNED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:        {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:      {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing:     {StatusReadyToShip: true, StatusCancelled: true},
	StatusReadyToShip:    {StatusShipped: true, StatusCancelled: true},
	StatusShipped:        {StatusOutForDelivery: true, StatusDelivered: true},
	StatusOutForDelivery: {StatusDelivered: true},
	StatusDelivered:      {StatusCompleted: true, StatusReturned: true},
	StatusReturned:       {StatusRefunded: true},
	StatusCompleted:      {},
	StatusCancelled:      {},
	StatusPaymentFailed:  {},
	StatusRefunded:       {},
}

// settlementNext holds the edges only a payment settlement may take.
var settlementNext = map[Status]map[Status]bool{
	StatusPending: {StatusConfirmed: true, StatusPaymentFailed: true},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func CanSettle(from, to Status) bool {
	return settlementNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusPaymentFailed, StatusRefunded:
		return true
	}
	return false
}

// Cancellable reports whether a customer may still cancel an order in this status.
func (s Status) Cancellable() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "COD"
	PaymentOnline PaymentMethod = "ONLINE"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentCOD || m == PaymentOnline
}

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationCommitted ReservationStatus = "COMMITTED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

type LedgerReason string

const (
	ReasonStockReceived         LedgerReason = "STOCK_RECEIVED"
	ReasonOrderConfirmedOut     LedgerReason = "ORDER_CONFIRMED_OUT"
	ReasonOrderCancelledRestock LedgerReason = "ORDER_CANCELLED_RESTOCK"
	ReasonOrderRefunded         LedgerReason = "ORDER_REFUNDED"

	// ReasonPaymentFailedRelease is unused: a release never moves on-hand.
	ReasonPaymentFailedRelease LedgerReason = "PAYMENT_FAILED_RELEASE"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleSystem   Role = "system"
)
