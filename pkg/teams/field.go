package teams

import "time"

type fieldOp uint8

const (
	opUnchanged fieldOp = iota
	opSet
	opRemove
)

// Field is one attribute of a partial update. The zero value leaves the attribute alone.
type Field[T any] struct {
	op    fieldOp
	value T
}

// Set writes v
func Set[T any](v T) Field[T] {
	return Field[T]{op: opSet, value: v}
}

// Remove deletes the attribute from the record
func Remove[T any]() Field[T] {
	return Field[T]{op: opRemove}
}

// SetOrRemove writes *v, or removes the attribute when v is nil
func SetOrRemove[T any](v *T) Field[T] {
	if v == nil {
		return Remove[T]()
	}
	return Set(*v)
}

// IsSet reports whether the field writes a value
func (f Field[T]) IsSet() bool { return f.op == opSet }

// IsRemove reports whether the field deletes the attribute
func (f Field[T]) IsRemove() bool { return f.op == opRemove }

// IsUnchanged reports whether the field leaves the attribute alone
func (f Field[T]) IsUnchanged() bool { return f.op == opUnchanged }

// Value returns the value written by Set
func (f Field[T]) Value() T { return f.value }

// Ptr returns the new value, nil for Remove. Only meaningful when !IsUnchanged().
func (f Field[T]) Ptr() *T {
	if f.op != opSet {
		return nil
	}
	v := f.value
	return &v
}

// TeamUpdate is a partial update of a team record
type TeamUpdate struct {
	Name                 Field[string]
	Plan                 Field[Plan]
	StorageLimitBytes    Field[int64]
	StorageLimitGB       Field[int64]
	SubscriptionStatus   Field[SubscriptionStatus]
	CancelAtPeriodEnd    Field[bool]
	CurrentPeriodEnd     Field[time.Time]
	CancelAt             Field[time.Time]
	PastDueSince         Field[time.Time]
	StripeCustomerID     Field[string]
	StripeSubscriptionID Field[string]
	StripePriceID        Field[string]
	LastEventAt          Field[time.Time]
	DeletedAt            Field[time.Time]
}

func applyValue[T any](f Field[T], dst *T) {
	switch f.op {
	case opSet:
		*dst = f.value
	case opRemove:
		var zero T
		*dst = zero
	}
}

func applyPtr[T any](f Field[T], dst **T) {
	if f.op != opUnchanged {
		*dst = f.Ptr()
	}
}

// Apply mutates t in place. Stores without native partial updates use it after a read.
func (u TeamUpdate) Apply(t *Team) {
	applyValue(u.Name, &t.Name)
	applyValue(u.Plan, &t.Plan)
	applyPtr(u.StorageLimitBytes, &t.StorageLimitBytes)
	applyPtr(u.StorageLimitGB, &t.StorageLimitGB)
	applyValue(u.SubscriptionStatus, &t.SubscriptionStatus)
	applyValue(u.CancelAtPeriodEnd, &t.CancelAtPeriodEnd)
	applyPtr(u.CurrentPeriodEnd, &t.CurrentPeriodEnd)
	applyPtr(u.CancelAt, &t.CancelAt)
	applyPtr(u.PastDueSince, &t.PastDueSince)
	applyValue(u.StripeCustomerID, &t.StripeCustomerID)
	applyValue(u.StripeSubscriptionID, &t.StripeSubscriptionID)
	applyValue(u.StripePriceID, &t.StripePriceID)
	applyPtr(u.LastEventAt, &t.LastEventAt)
	applyPtr(u.DeletedAt, &t.DeletedAt)
}
