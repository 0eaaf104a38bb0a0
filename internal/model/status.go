package model

// CanTransition reports whether an order may move from s to next.
// Orders only move forward; cancellation is allowed while pending or assigned.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
    switch s {
    case OrderPending:
        return next == OrderAssigned || next == OrderCancelled
    case OrderAssigned:
        return next == OrderDelivered || next == OrderCancelled
    default:
        return false
    }
}

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
    return s == OrderDelivered || s == OrderCancelled
}

func ParsePriority(s string) (Priority, bool) {
    switch Priority(s) {
    case PriorityHigh, PriorityMedium, PriorityLow:
        return Priority(s), true
    case "":
        return PriorityMedium, true
    }
    return "", false
}
