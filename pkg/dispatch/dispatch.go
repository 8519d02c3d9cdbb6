// Package dispatch routes the agent's function-call requests to the
// business-logic handlers and shapes their results for the wire.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/voicebridge-ai/voicebridge/pkg/agent/protocol"
	"github.com/voicebridge-ai/voicebridge/pkg/booking"
)

const (
	FuncBookAppointment   = "book_appointment"
	FuncGetAvailability   = "get_availability"
	FuncCancelAppointment = "cancel_appointment"
	FuncTriggerCRMWebhook = "trigger_crm_webhook"
)

// Context identifies the call a function invocation belongs to.
type Context struct {
	CallSID   string
	StreamSID string
}

type Config struct {
	Timeout time.Duration
}

type Dispatcher struct {
	booking *booking.Service
	logger  *slog.Logger
	timeout time.Duration
}

func New(svc *booking.Service, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{booking: svc, logger: logger, timeout: timeout}
}

// Dispatch runs one function call and always produces a speakable result.
// Unknown names and malformed arguments come back as graceful failures; a
// live audio relay has nowhere to propagate an exception to.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, arguments json.RawMessage, call Context) booking.Result {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	name = strings.TrimSpace(name)
	d.logger.Info("dispatching function call", "function", name, "call_sid", call.CallSID)

	switch name {
	case FuncBookAppointment:
		var p booking.BookParams
		if err := unmarshalArgs(arguments, &p); err != nil {
			d.logger.Warn("bad function arguments", "function", name, "error", err, "call_sid", call.CallSID)
			return cannotProcess()
		}
		return d.booking.BookAppointment(ctx, p, call.CallSID)
	case FuncGetAvailability:
		var p struct {
			Date string `json:"date"`
		}
		if err := unmarshalArgs(arguments, &p); err != nil {
			d.logger.Warn("bad function arguments", "function", name, "error", err, "call_sid", call.CallSID)
			return cannotProcess()
		}
		return d.booking.GetAvailability(ctx, p.Date, call.CallSID)
	case FuncCancelAppointment:
		var p struct {
			ReferenceID string `json:"reference_id"`
		}
		if err := unmarshalArgs(arguments, &p); err != nil {
			d.logger.Warn("bad function arguments", "function", name, "error", err, "call_sid", call.CallSID)
			return cannotProcess()
		}
		return d.booking.CancelAppointment(ctx, p.ReferenceID, call.CallSID)
	case FuncTriggerCRMWebhook:
		var p struct {
			EventType string         `json:"event_type"`
			Data      map[string]any `json:"data"`
		}
		if err := unmarshalArgs(arguments, &p); err != nil {
			d.logger.Warn("bad function arguments", "function", name, "error", err, "call_sid", call.CallSID)
			return cannotProcess()
		}
		return d.booking.TriggerCRMWebhook(ctx, p.EventType, p.Data, call.CallSID)
	default:
		d.logger.Warn("unknown function requested", "function", name, "call_sid", call.CallSID)
		return cannotProcess()
	}
}

// Output serializes a result for a FunctionCallResult message.
func Output(r booking.Result) string {
	data, err := json.Marshal(r)
	if err != nil {
		return `{"success":false,"message":"I'm sorry, I can't process that request right now."}`
	}
	return string(data)
}

func unmarshalArgs(arguments json.RawMessage, out any) error {
	if len(arguments) == 0 {
		arguments = json.RawMessage("{}")
	}
	// Some providers double-encode arguments as a JSON string.
	if arguments[0] == '"' {
		var inner string
		if err := json.Unmarshal(arguments, &inner); err != nil {
			return err
		}
		arguments = json.RawMessage(inner)
	}
	return json.Unmarshal(arguments, out)
}

func cannotProcess() booking.Result {
	return booking.Result{
		Success: false,
		Message: "I'm sorry, I can't process that request right now.",
	}
}

// Definitions is the function surface advertised to the agent in Settings.
func Definitions() []protocol.FunctionDef {
	return []protocol.FunctionDef{
		{
			Name:        FuncBookAppointment,
			Description: "Book an appointment for a customer",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"customer_name": {"type": "string", "description": "Full name of the customer"},
					"customer_phone": {"type": "string", "description": "Customer's phone number"},
					"appointment_date": {"type": "string", "description": "Date for appointment in YYYY-MM-DD format"},
					"appointment_time": {"type": "string", "description": "Time for appointment in HH:MM format (24-hour)"},
					"service_type": {"type": "string", "description": "Type of service requested"}
				},
				"required": ["customer_name", "customer_phone", "appointment_date", "appointment_time"]
			}`),
		},
		{
			Name:        FuncGetAvailability,
			Description: "Check available appointment slots for a given date",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"date": {"type": "string", "description": "Date to check availability in YYYY-MM-DD format"}
				},
				"required": ["date"]
			}`),
		},
		{
			Name:        FuncCancelAppointment,
			Description: "Cancel an existing appointment",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"reference_id": {"type": "string", "description": "Appointment reference ID"}
				},
				"required": ["reference_id"]
			}`),
		},
		{
			Name:        FuncTriggerCRMWebhook,
			Description: "Send data to CRM system",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"event_type": {"type": "string", "description": "Type of CRM event (lead, appointment, message)"},
					"data": {"type": "object", "description": "Data to send to CRM"}
				},
				"required": ["event_type", "data"]
			}`),
		},
	}
}
