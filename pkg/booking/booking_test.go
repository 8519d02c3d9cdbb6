package booking

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/voicebridge-ai/voicebridge/pkg/crm"
	"github.com/voicebridge-ai/voicebridge/pkg/store"
)

func newTestService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	svc := NewService(mem, crm.NewNotifier(crm.Config{}, nil), nil)
	return svc, mem
}

func TestBookAppointment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res := svc.BookAppointment(ctx, BookParams{
		CustomerName:    "Ada Lovelace",
		CustomerPhone:   "+15551234567",
		AppointmentDate: "2026-09-02",
		AppointmentTime: "10:00",
		ServiceType:     "consultation",
	}, "CA1")
	if !res.Success {
		t.Fatalf("booking failed: %q", res.Message)
	}
	if match, _ := regexp.MatchString(`^APT-[0-9A-F]{8}$`, res.ReferenceID); !match {
		t.Fatalf("reference got=%q, want APT-XXXXXXXX", res.ReferenceID)
	}
	if !strings.Contains(res.Message, res.ReferenceID) {
		t.Fatalf("spoken message must include the reference: %q", res.Message)
	}
	if !strings.Contains(res.Message, "10:00") || !strings.Contains(res.Message, "2026-09-02") {
		t.Fatalf("spoken message must include time and date: %q", res.Message)
	}
}

func TestBookAppointmentDoubleBooking(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p := BookParams{
		CustomerName:    "Ada Lovelace",
		AppointmentDate: "2026-09-02",
		AppointmentTime: "10:00",
	}
	if res := svc.BookAppointment(ctx, p, "CA1"); !res.Success {
		t.Fatalf("first booking failed: %q", res.Message)
	}

	p.CustomerName = "Grace Hopper"
	res := svc.BookAppointment(ctx, p, "CA2")
	if res.Success {
		t.Fatalf("expected double booking to be rejected")
	}
	if !strings.Contains(res.Message, "already booked") {
		t.Fatalf("message got=%q, want already-booked phrasing", res.Message)
	}
}

func TestBookAppointmentRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []BookParams{
		{CustomerName: "Ada", AppointmentDate: "tomorrow", AppointmentTime: "10:00"},
		{CustomerName: "Ada", AppointmentDate: "2026-09-02", AppointmentTime: "ten"},
		{CustomerName: "  ", AppointmentDate: "2026-09-02", AppointmentTime: "10:00"},
	}
	for _, p := range cases {
		res := svc.BookAppointment(ctx, p, "CA1")
		if res.Success {
			t.Fatalf("expected rejection for %+v", p)
		}
		if strings.Contains(res.Message, "error code") || res.Message == "" {
			t.Fatalf("message must stay conversational: %q", res.Message)
		}
	}
}

func TestGetAvailability(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res := svc.GetAvailability(ctx, "2026-09-02", "CA1")
	if !res.Success {
		t.Fatalf("availability failed: %q", res.Message)
	}
	if len(res.AvailableSlots) != len(businessHours) {
		t.Fatalf("slots=%d, want %d", len(res.AvailableSlots), len(businessHours))
	}
	// 16 open slots: six are spoken, the rest summarized.
	if !strings.Contains(res.Message, "and 10 more slots") {
		t.Fatalf("message got=%q, want overflow summary", res.Message)
	}

	svc.BookAppointment(ctx, BookParams{
		CustomerName: "Ada", AppointmentDate: "2026-09-02", AppointmentTime: "09:00",
	}, "CA1")
	res = svc.GetAvailability(ctx, "2026-09-02", "CA1")
	for _, slot := range res.AvailableSlots {
		if slot == "09:00" {
			t.Fatalf("booked slot still listed: %v", res.AvailableSlots)
		}
	}
}

func TestGetAvailabilityFullyBooked(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, slot := range businessHours {
		if res := svc.BookAppointment(ctx, BookParams{
			CustomerName: "Ada", AppointmentDate: "2026-09-02", AppointmentTime: slot,
		}, "CA1"); !res.Success {
			t.Fatalf("booking %s failed: %q", slot, res.Message)
		}
	}

	res := svc.GetAvailability(ctx, "2026-09-02", "CA1")
	if res.Success {
		t.Fatalf("expected fully booked day to fail")
	}
	if !strings.Contains(res.Message, "fully booked") {
		t.Fatalf("message got=%q", res.Message)
	}
}

func TestCancelAppointment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	booked := svc.BookAppointment(ctx, BookParams{
		CustomerName: "Ada Lovelace", AppointmentDate: "2026-09-02", AppointmentTime: "10:00",
	}, "CA1")
	if !booked.Success {
		t.Fatalf("booking failed: %q", booked.Message)
	}

	res := svc.CancelAppointment(ctx, booked.ReferenceID, "CA1")
	if !res.Success {
		t.Fatalf("cancel failed: %q", res.Message)
	}
	if !strings.Contains(res.Message, "Ada Lovelace") {
		t.Fatalf("message got=%q, want customer name", res.Message)
	}

	res = svc.CancelAppointment(ctx, booked.ReferenceID, "CA1")
	if res.Success || !strings.Contains(res.Message, "already cancelled") {
		t.Fatalf("second cancel got=%+v, want already-cancelled", res)
	}

	res = svc.CancelAppointment(ctx, "APT-NOPE1234", "CA1")
	if res.Success || !strings.Contains(res.Message, "couldn't find") {
		t.Fatalf("missing cancel got=%+v", res)
	}
}

func TestCancelledSlotIsBookableAgain(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	p := BookParams{CustomerName: "Ada", AppointmentDate: "2026-09-02", AppointmentTime: "10:00"}
	booked := svc.BookAppointment(ctx, p, "CA1")
	svc.CancelAppointment(ctx, booked.ReferenceID, "CA1")

	if res := svc.BookAppointment(ctx, p, "CA2"); !res.Success {
		t.Fatalf("rebooking cancelled slot failed: %q", res.Message)
	}
}

func TestTriggerCRMWebhook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mem := store.NewMemory()
	svc := NewService(mem, crm.NewNotifier(crm.Config{WebhookURL: srv.URL}, nil), nil)

	res := svc.TriggerCRMWebhook(context.Background(), "lead_captured",
		map[string]any{"name": "Ada"}, "CA1")
	if !res.Success {
		t.Fatalf("webhook trigger failed: %q", res.Message)
	}

	// No URL configured: honest failure with a spoken fallback.
	unconfigured := NewService(mem, crm.NewNotifier(crm.Config{}, nil), nil)
	res = unconfigured.TriggerCRMWebhook(context.Background(), "lead_captured", nil, "CA1")
	if res.Success || !strings.Contains(res.Message, "follow up manually") {
		t.Fatalf("got=%+v, want manual-followup message", res)
	}
}
