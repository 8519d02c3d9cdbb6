package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process store used in tests and single-node deployments
// that do not configure a database.
type Memory struct {
	mu           sync.Mutex
	calls        map[string]Call
	transcripts  map[string][]TranscriptFragment
	appointments map[string]Appointment
	now          func() time.Time
}

var _ CallLog = (*Memory)(nil)
var _ Appointments = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		calls:        make(map[string]Call),
		transcripts:  make(map[string][]TranscriptFragment),
		appointments: make(map[string]Appointment),
		now:          time.Now,
	}
}

func (m *Memory) StartCall(_ context.Context, call Call) error {
	if call.CallSID == "" {
		return fmt.Errorf("call sid is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if call.StartedAt.IsZero() {
		call.StartedAt = m.now()
	}
	if call.Status == "" {
		call.Status = CallInProgress
	}
	m.calls[call.CallSID] = call
	return nil
}

func (m *Memory) UpdateCallStatus(_ context.Context, callSID string, status CallStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.calls[callSID]
	if !ok {
		return fmt.Errorf("call %s: %w", callSID, ErrNotFound)
	}
	call.Status = status
	if status == CallCompleted || status == CallFailed {
		call.EndedAt = m.now()
	}
	m.calls[callSID] = call
	return nil
}

// GetCall is not part of the CallLog contract; tests and admin tooling use it.
func (m *Memory) GetCall(_ context.Context, callSID string) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call, ok := m.calls[callSID]
	if !ok {
		return Call{}, fmt.Errorf("call %s: %w", callSID, ErrNotFound)
	}
	return call, nil
}

func (m *Memory) AppendTranscript(_ context.Context, frag TranscriptFragment) error {
	if frag.CallSID == "" {
		return fmt.Errorf("call sid is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if frag.CreatedAt.IsZero() {
		frag.CreatedAt = m.now()
	}
	m.transcripts[frag.CallSID] = append(m.transcripts[frag.CallSID], frag)
	return nil
}

func (m *Memory) Transcript(_ context.Context, callSID string) ([]TranscriptFragment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	frags := m.transcripts[callSID]
	out := make([]TranscriptFragment, len(frags))
	copy(out, frags)
	return out, nil
}

func (m *Memory) CreateAppointment(_ context.Context, appt Appointment) error {
	if appt.Reference == "" {
		return fmt.Errorf("appointment reference is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appointments[appt.Reference]; ok {
		return fmt.Errorf("appointment %s already exists", appt.Reference)
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = m.now()
	}
	if appt.Status == "" {
		appt.Status = AppointmentConfirmed
	}
	m.appointments[appt.Reference] = appt
	return nil
}

func (m *Memory) GetByReference(_ context.Context, reference string) (Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appointments[reference]
	if !ok {
		return Appointment{}, fmt.Errorf("appointment %s: %w", reference, ErrNotFound)
	}
	return appt, nil
}

func (m *Memory) ListByDate(_ context.Context, date string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, appt := range m.appointments {
		if appt.Date == date {
			out = append(out, appt)
		}
	}
	return out, nil
}

func (m *Memory) UpdateAppointmentStatus(_ context.Context, reference string, status AppointmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appointments[reference]
	if !ok {
		return fmt.Errorf("appointment %s: %w", reference, ErrNotFound)
	}
	appt.Status = status
	m.appointments[reference] = appt
	return nil
}
