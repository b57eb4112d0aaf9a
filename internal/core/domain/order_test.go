package domain

import (
	"reflect"
	"testing"
)

func defaultOrder(t *testing.T) *CaptureOrder {
	t.Helper()
	o, err := NewCaptureOrder(FieldCardNumber, FieldSecurityCode, FieldExpirationDate)
	if err != nil {
		t.Fatalf("NewCaptureOrder failed: %v", err)
	}
	return o
}

func TestNewCaptureOrder_RejectsEmptyTemplate(t *testing.T) {
	if _, err := NewCaptureOrder(); err == nil {
		t.Fatal("expected error for empty template")
	}
}

func TestNewCaptureOrder_RejectsDuplicates(t *testing.T) {
	_, err := NewCaptureOrder(FieldCardNumber, FieldCardNumber)
	if err == nil {
		t.Fatal("expected error for duplicate field")
	}
}

func TestNewCaptureOrder_RejectsUnknownField(t *testing.T) {
	_, err := NewCaptureOrder(FieldCardNumber, FieldKind("iban"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestPeekActive_ReturnsFront(t *testing.T) {
	o := defaultOrder(t)

	field, ok := o.PeekActive()
	if !ok {
		t.Fatal("expected an active field")
	}
	if field != FieldCardNumber {
		t.Errorf("active field = %q, want %q", field, FieldCardNumber)
	}
}

func TestAdvance_ConsumesFrontToBack(t *testing.T) {
	o := defaultOrder(t)

	o.Advance()
	if field, _ := o.PeekActive(); field != FieldSecurityCode {
		t.Errorf("after one advance active = %q, want %q", field, FieldSecurityCode)
	}

	o.Advance()
	o.Advance()
	if _, ok := o.PeekActive(); ok {
		t.Error("expected no active field after consuming the order")
	}

	// Advancing an empty order is a defined no-op.
	o.Advance()
	if _, ok := o.PeekActive(); ok {
		t.Error("advance on empty order must stay empty")
	}
}

func TestReset_RestoresTemplate(t *testing.T) {
	o := defaultOrder(t)
	o.Advance()
	o.Advance()

	o.Reset()

	want := []FieldKind{FieldCardNumber, FieldSecurityCode, FieldExpirationDate}
	if got := o.Remaining(); !reflect.DeepEqual(got, want) {
		t.Errorf("after reset remaining = %v, want %v", got, want)
	}
}

func TestPrepend_NoOpWhenAlreadyActive(t *testing.T) {
	o := defaultOrder(t)

	if changed := o.Prepend(FieldCardNumber); changed {
		t.Error("prepend of the active field must report no change")
	}
	want := []FieldKind{FieldCardNumber, FieldSecurityCode, FieldExpirationDate}
	if got := o.Remaining(); !reflect.DeepEqual(got, want) {
		t.Errorf("order changed on no-op prepend: %v", got)
	}
}

func TestPrepend_InsertsInFront(t *testing.T) {
	o := defaultOrder(t)
	o.Advance() // [security-code expiration-date]
	o.Advance() // [expiration-date]

	if changed := o.Prepend(FieldSecurityCode); !changed {
		t.Error("prepend must report a structural change")
	}
	want := []FieldKind{FieldSecurityCode, FieldExpirationDate}
	if got := o.Remaining(); !reflect.DeepEqual(got, want) {
		t.Errorf("remaining = %v, want %v", got, want)
	}
}

func TestPrepend_OnEmptyOrder(t *testing.T) {
	o := defaultOrder(t)
	o.Advance()
	o.Advance()
	o.Advance()

	if changed := o.Prepend(FieldExpirationDate); !changed {
		t.Error("prepend on empty order must report a change")
	}
	if field, _ := o.PeekActive(); field != FieldExpirationDate {
		t.Errorf("active = %q, want %q", field, FieldExpirationDate)
	}
}

func TestRemaining_ReturnsCopy(t *testing.T) {
	o := defaultOrder(t)

	got := o.Remaining()
	got[0] = FieldPostalCode

	if field, _ := o.PeekActive(); field != FieldCardNumber {
		t.Error("mutating Remaining() result must not affect the order")
	}
}
