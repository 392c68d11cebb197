package erp

type OrderState string

const (
	StateDraft     OrderState = "DRAFT"
	StateConfirmed OrderState = "CONFIRMED"
	StateCancelled OrderState = "CANCELLED"
)

var validNext = map[OrderState]map[OrderState]bool{
	StateDraft:     {StateConfirmed: true, StateCancelled: true},
	StateConfirmed: {StateCancelled: true},
	StateCancelled: {},
}

func CanTransition(from, to OrderState) bool {
	return validNext[from][to]
}
