package domain

import "fmt"

// CaptureOrder is the ordered queue of fields still to capture. It keeps the
// immutable template it was built from and a working copy consumed
// front-to-back; the working copy is restored to the template at the start of
// every capture attempt. Operations on an empty working order are defined
// no-ops.
//
// CaptureOrder is not safe for concurrent use; the controller is its sole
// mutator.
type CaptureOrder struct {
	template []FieldKind
	working  []FieldKind
}

// NewCaptureOrder builds an order from a non-empty template with no duplicate
// field kinds. The working order starts as a full copy of the template.
func NewCaptureOrder(template ...FieldKind) (*CaptureOrder, error) {
	if len(template) == 0 {
		return nil, fmt.Errorf("capture order template must not be empty")
	}
	seen := make(map[FieldKind]bool, len(template))
	for _, f := range template {
		if !f.Valid() {
			return nil, fmt.Errorf("unknown capture field %q", f)
		}
		if seen[f] {
			return nil, fmt.Errorf("duplicate capture field %q", f)
		}
		seen[f] = true
	}
	o := &CaptureOrder{template: append([]FieldKind(nil), template...)}
	o.Reset()
	return o, nil
}

// Reset replaces the working order with a copy of the template.
func (o *CaptureOrder) Reset() {
	o.working = append(o.working[:0:0], o.template...)
}

// PeekActive returns the field currently at the front of the working order.
// ok is false when the order has been fully consumed.
func (o *CaptureOrder) PeekActive() (field FieldKind, ok bool) {
	if len(o.working) == 0 {
		return "", false
	}
	return o.working[0], true
}

// Advance removes the front element. No-op on an empty order.
func (o *CaptureOrder) Advance() {
	if len(o.working) == 0 {
		return
	}
	o.working = o.working[1:]
}

// Prepend makes field the active (front) element, inserting it if it is not
// already there. It returns true when the order actually changed, which is
// what decides whether a reset event fires.
func (o *CaptureOrder) Prepend(field FieldKind) bool {
	if len(o.working) > 0 && o.working[0] == field {
		return false
	}
	o.working = append([]FieldKind{field}, o.working...)
	return true
}

// Contains reports whether field is anywhere in the working order.
func (o *CaptureOrder) Contains(field FieldKind) bool {
	for _, f := range o.working {
		if f == field {
			return true
		}
	}
	return false
}

// Remaining returns a copy of the working order, front first.
func (o *CaptureOrder) Remaining() []FieldKind {
	return append([]FieldKind(nil), o.working...)
}

// Template returns a copy of the immutable template.
func (o *CaptureOrder) Template() []FieldKind {
	return append([]FieldKind(nil), o.template...)
}
