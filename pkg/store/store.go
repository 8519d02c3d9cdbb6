// Package store defines the persistence contracts the bridge and the
// business-logic handlers write through. Implementations must tolerate
// being called from many call sessions at once.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Call statuses follow the telephony carrier's vocabulary.
type CallStatus string

const (
	CallInProgress CallStatus = "in-progress"
	CallCompleted  CallStatus = "completed"
	CallFailed     CallStatus = "failed"
)

const (
	SpeakerCaller = "caller"
	SpeakerAgent  = "agent"
)

type Call struct {
	CallSID   string
	StreamSID string
	Status    CallStatus
	StartedAt time.Time
	EndedAt   time.Time
}

type TranscriptFragment struct {
	CallSID    string
	Speaker    string
	Text       string
	Confidence float64
	CreatedAt  time.Time
}

// CallLog records call lifecycle and conversation transcripts. The bridge
// calls it fire-and-forget: a failure is logged, never propagated into the
// audio relay.
type CallLog interface {
	StartCall(ctx context.Context, call Call) error
	UpdateCallStatus(ctx context.Context, callSID string, status CallStatus) error
	AppendTranscript(ctx context.Context, frag TranscriptFragment) error
	Transcript(ctx context.Context, callSID string) ([]TranscriptFragment, error)
}

type AppointmentStatus string

const (
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

type Appointment struct {
	Reference     string
	CallSID       string
	CustomerName  string
	CustomerPhone string
	Date          string // YYYY-MM-DD
	Time          string // HH:MM, 24-hour
	ServiceType   string
	Status        AppointmentStatus
	CreatedAt     time.Time
}

// Appointments backs the booking handlers.
type Appointments interface {
	CreateAppointment(ctx context.Context, appt Appointment) error
	GetByReference(ctx context.Context, reference string) (Appointment, error)
	ListByDate(ctx context.Context, date string) ([]Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, reference string, status AppointmentStatus) error
}
