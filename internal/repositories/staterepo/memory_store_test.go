package staterepo

import (
	"context"
	"testing"
	"time"
)

func TestConfirmPaymentFirstWriterWins(t *testing.T) {
	store := NewMemory(10 * time.Minute)
	ctx := context.Background()

	if err := store.InitAttempt(ctx, "0xabc", time.Now()); err != nil {
		t.Fatalf("InitAttempt failed: %v", err)
	}

	first, err := store.ConfirmPayment(ctx, "0xabc")
	if err != nil {
		t.Fatalf("ConfirmPayment failed: %v", err)
	}
	if !first {
		t.Fatal("first ConfirmPayment returned false")
	}

	again, err := store.ConfirmPayment(ctx, "0xabc")
	if err != nil {
		t.Fatalf("second ConfirmPayment failed: %v", err)
	}
	if again {
		t.Fatal("second ConfirmPayment claimed the flag again")
	}
}

func TestStatusRoundTrip(t *testing.T) {
	store := NewMemory(10 * time.Minute)
	ctx := context.Background()
	started := time.Now().Truncate(time.Second)

	confirmed, _, ok, err := store.Status(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if ok || confirmed {
		t.Fatal("expected missing status before InitAttempt")
	}

	if err := store.InitAttempt(ctx, "0xabc", started); err != nil {
		t.Fatalf("InitAttempt failed: %v", err)
	}

	confirmed, gotStarted, ok, err := store.Status(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !ok || confirmed {
		t.Fatalf("status = (confirmed=%v, ok=%v), want pending", confirmed, ok)
	}
	if !gotStarted.Equal(started) {
		t.Errorf("started = %v, want %v", gotStarted, started)
	}

	if _, err := store.ConfirmPayment(ctx, "0xabc"); err != nil {
		t.Fatalf("ConfirmPayment failed: %v", err)
	}
	confirmed, _, ok, err = store.Status(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !ok || !confirmed {
		t.Errorf("status = (confirmed=%v, ok=%v), want confirmed", confirmed, ok)
	}
}

func TestStatusExpires(t *testing.T) {
	store := NewMemory(10 * time.Millisecond)
	ctx := context.Background()

	if err := store.InitAttempt(ctx, "0xabc", time.Now()); err != nil {
		t.Fatalf("InitAttempt failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	_, _, ok, err := store.Status(ctx, "0xabc")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if ok {
		t.Error("status still present after TTL")
	}
}

func TestEmailRoundTrip(t *testing.T) {
	store := NewMemory(10 * time.Minute)
	ctx := context.Background()

	if _, ok, _ := store.GetEmail(ctx, "alice#1234"); ok {
		t.Fatal("expected no email before SetEmail")
	}
	if err := store.SetEmail(ctx, "alice#1234", "alice@example.com"); err != nil {
		t.Fatalf("SetEmail failed: %v", err)
	}
	email, ok, err := store.GetEmail(ctx, "alice#1234")
	if err != nil || !ok {
		t.Fatalf("GetEmail = (%q, %v, %v)", email, ok, err)
	}
	if email != "alice@example.com" {
		t.Errorf("email = %q, want alice@example.com", email)
	}
}
