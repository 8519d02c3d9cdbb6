// Package booking implements the business functions the speech agent can
// invoke mid-call: booking, availability, cancellation, and CRM events.
// Every result carries a message written to be spoken aloud to the caller.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voicebridge-ai/voicebridge/pkg/crm"
	"github.com/voicebridge-ai/voicebridge/pkg/store"
)

// businessHours is the bookable half-hour grid, 9 AM through 4:30 PM.
var businessHours = []string{
	"09:00", "09:30", "10:00", "10:30", "11:00", "11:30",
	"12:00", "12:30", "13:00", "13:30", "14:00", "14:30",
	"15:00", "15:30", "16:00", "16:30",
}

// spokenSlotLimit bounds how many open slots are read out to the caller.
const spokenSlotLimit = 6

// Result is what a function invocation returns to the agent. Message is
// synthesized as speech verbatim, so it must stay conversational.
type Result struct {
	Success         bool     `json:"success"`
	Message         string   `json:"message"`
	ReferenceID     string   `json:"reference_id,omitempty"`
	AppointmentDate string   `json:"appointment_date,omitempty"`
	AppointmentTime string   `json:"appointment_time,omitempty"`
	AvailableSlots  []string `json:"available_slots,omitempty"`
}

type Service struct {
	appointments store.Appointments
	notifier     *crm.Notifier
	logger       *slog.Logger
	newReference func() string
}

func NewService(appointments store.Appointments, notifier *crm.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		appointments: appointments,
		notifier:     notifier,
		logger:       logger,
		newReference: newReference,
	}
}

func newReference() string {
	id := uuid.New()
	return fmt.Sprintf("APT-%X", id[:4])
}

type BookParams struct {
	CustomerName    string `json:"customer_name"`
	CustomerPhone   string `json:"customer_phone"`
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	ServiceType     string `json:"service_type"`
}

// BookAppointment books a slot if it is free and reports a spoken
// confirmation with the reference number.
func (s *Service) BookAppointment(ctx context.Context, p BookParams, callSID string) Result {
	if _, err := time.Parse("2006-01-02", p.AppointmentDate); err != nil {
		s.logger.Warn("book_appointment bad date", "date", p.AppointmentDate, "call_sid", callSID)
		return bookingError()
	}
	if _, err := time.Parse("15:04", p.AppointmentTime); err != nil {
		s.logger.Warn("book_appointment bad time", "time", p.AppointmentTime, "call_sid", callSID)
		return bookingError()
	}
	if strings.TrimSpace(p.CustomerName) == "" {
		return bookingError()
	}

	day, err := s.appointments.ListByDate(ctx, p.AppointmentDate)
	if err != nil {
		s.logger.Error("book_appointment list failed", "error", err, "call_sid", callSID)
		return bookingError()
	}
	for _, appt := range day {
		if appt.Time == p.AppointmentTime && appt.Status == store.AppointmentConfirmed {
			return Result{
				Success: false,
				Message: fmt.Sprintf("Sorry, %s on %s is already booked. Please choose a different time.",
					p.AppointmentTime, p.AppointmentDate),
			}
		}
	}

	reference := s.newReference()
	err = s.appointments.CreateAppointment(ctx, store.Appointment{
		Reference:     reference,
		CallSID:       callSID,
		CustomerName:  p.CustomerName,
		CustomerPhone: p.CustomerPhone,
		Date:          p.AppointmentDate,
		Time:          p.AppointmentTime,
		ServiceType:   p.ServiceType,
		Status:        store.AppointmentConfirmed,
	})
	if err != nil {
		s.logger.Error("book_appointment create failed", "error", err, "call_sid", callSID)
		return bookingError()
	}

	s.notifier.SendAsync("appointment_booked", map[string]any{
		"appointment_id":   reference,
		"customer_name":    p.CustomerName,
		"customer_phone":   p.CustomerPhone,
		"service_type":     p.ServiceType,
		"appointment_date": p.AppointmentDate,
		"appointment_time": p.AppointmentTime,
	}, callSID)

	return Result{
		Success: true,
		Message: fmt.Sprintf("Perfect! I've booked your appointment for %s on %s. Your reference number is %s.",
			p.AppointmentTime, p.AppointmentDate, reference),
		ReferenceID:     reference,
		AppointmentDate: p.AppointmentDate,
		AppointmentTime: p.AppointmentTime,
	}
}

// GetAvailability lists open slots for a date. Only the first few are
// spoken; the full list rides along in the structured result.
func (s *Service) GetAvailability(ctx context.Context, date, callSID string) Result {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		s.logger.Warn("get_availability bad date", "date", date, "call_sid", callSID)
		return Result{
			Success: false,
			Message: "I'm sorry, I couldn't check availability right now. Please try again.",
		}
	}

	day, err := s.appointments.ListByDate(ctx, date)
	if err != nil {
		s.logger.Error("get_availability list failed", "error", err, "call_sid", callSID)
		return Result{
			Success: false,
			Message: "I'm sorry, I couldn't check availability right now. Please try again.",
		}
	}

	booked := make(map[string]bool, len(day))
	for _, appt := range day {
		if appt.Status == store.AppointmentConfirmed {
			booked[appt.Time] = true
		}
	}
	var open []string
	for _, slot := range businessHours {
		if !booked[slot] {
			open = append(open, slot)
		}
	}

	if len(open) == 0 {
		return Result{
			Success: false,
			Message: fmt.Sprintf("I'm sorry, we're fully booked on %s. Would you like to try a different date?", date),
		}
	}

	spoken := strings.Join(open[:min(len(open), spokenSlotLimit)], ", ")
	if len(open) > spokenSlotLimit {
		spoken += fmt.Sprintf(" and %d more slots", len(open)-spokenSlotLimit)
	}
	return Result{
		Success:        true,
		Message:        fmt.Sprintf("Available times on %s: %s", date, spoken),
		AvailableSlots: open,
	}
}

// CancelAppointment cancels by reference number. Cancelling twice is
// reported, not silently accepted.
func (s *Service) CancelAppointment(ctx context.Context, referenceID, callSID string) Result {
	appt, err := s.appointments.GetByReference(ctx, referenceID)
	if err != nil {
		return Result{
			Success: false,
			Message: fmt.Sprintf("I couldn't find an appointment with reference %s. Please check the reference number.", referenceID),
		}
	}
	if appt.Status == store.AppointmentCancelled {
		return Result{
			Success: false,
			Message: fmt.Sprintf("Appointment %s is already cancelled.", referenceID),
		}
	}

	if err := s.appointments.UpdateAppointmentStatus(ctx, referenceID, store.AppointmentCancelled); err != nil {
		s.logger.Error("cancel_appointment update failed", "error", err, "call_sid", callSID)
		return Result{
			Success: false,
			Message: "I'm sorry, there was an error cancelling the appointment. Please try again.",
		}
	}

	s.notifier.SendAsync("appointment_cancelled", map[string]any{
		"appointment_id":   referenceID,
		"customer_name":    appt.CustomerName,
		"customer_phone":   appt.CustomerPhone,
		"appointment_date": appt.Date,
		"appointment_time": appt.Time,
	}, callSID)

	return Result{
		Success: true,
		Message: fmt.Sprintf("I've successfully cancelled appointment %s for %s.", referenceID, appt.CustomerName),
	}
}

// TriggerCRMWebhook ships a caller-provided event to the CRM and reports
// whether it landed.
func (s *Service) TriggerCRMWebhook(ctx context.Context, eventType string, data map[string]any, callSID string) Result {
	if err := s.notifier.Send(ctx, eventType, data, callSID); err != nil {
		s.logger.Warn("trigger_crm_webhook failed", "event", eventType, "error", err, "call_sid", callSID)
		return Result{
			Success: false,
			Message: "There was an issue sending the information. We'll follow up manually.",
		}
	}
	return Result{
		Success: true,
		Message: "Information has been sent to our system successfully.",
	}
}

func bookingError() Result {
	return Result{
		Success: false,
		Message: "I'm sorry, there was an error booking your appointment. Please try again or call back later.",
	}
}
