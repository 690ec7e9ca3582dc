package engine_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dojohq/crm-automation/internal/domain"
	"github.com/dojohq/crm-automation/internal/engine"
)

// memStores is an in-memory implementation of the engine's store
// interfaces, shared across the sequence/enrollment/recipient views.
type memStores struct {
	mu          sync.Mutex
	sequences   map[uuid.UUID]*domain.Sequence
	steps       map[uuid.UUID][]domain.Step // ordered by step_order, keyed by sequence
	enrollments map[uuid.UUID]*domain.Enrollment
	recipients  map[uuid.UUID]*domain.Recipient
	stepLog     []domain.StepExecutionRecord
}

func newMemStores() *memStores {
	return &memStores{
		sequences:   make(map[uuid.UUID]*domain.Sequence),
		steps:       make(map[uuid.UUID][]domain.Step),
		enrollments: make(map[uuid.UUID]*domain.Enrollment),
		recipients:  make(map[uuid.UUID]*domain.Recipient),
	}
}

func (m *memStores) addSequence(trigger domain.TriggerType, active bool, steps ...domain.Step) *domain.Sequence {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := &domain.Sequence{ID: uuid.New(), Name: "seq", TriggerType: trigger, IsActive: active}
	for i := range steps {
		steps[i].ID = uuid.New()
		steps[i].SequenceID = seq.ID
		steps[i].StepOrder = i + 1
	}
	m.sequences[seq.ID] = seq
	m.steps[seq.ID] = steps
	return seq
}

func (m *memStores) addRecipient(r domain.Recipient) *domain.Recipient {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	m.recipients[r.ID] = &r
	return &r
}

// SequenceStore

func (m *memStores) ListActiveByTrigger(_ context.Context, trigger domain.TriggerType) ([]domain.Sequence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Sequence
	for _, s := range m.sequences {
		if s.IsActive && s.TriggerType == trigger {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStores) FirstStep(_ context.Context, sequenceID uuid.UUID) (*domain.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	steps := m.steps[sequenceID]
	if len(steps) == 0 {
		return nil, nil
	}
	cp := steps[0]
	return &cp, nil
}

func (m *memStores) GetStep(_ context.Context, stepID uuid.UUID) (*domain.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, steps := range m.steps {
		for _, st := range steps {
			if st.ID == stepID {
				cp := st
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (m *memStores) NextStep(_ context.Context, sequenceID uuid.UUID, afterOrder int) (*domain.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.steps[sequenceID] {
		if st.StepOrder == afterOrder+1 {
			cp := st
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStores) RefreshCounters(_ context.Context, sequenceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sequences[sequenceID]
	if !ok {
		return nil
	}
	s.EnrollmentCount, s.CompletedCount = 0, 0
	for _, e := range m.enrollments {
		if e.SequenceID != sequenceID {
			continue
		}
		s.EnrollmentCount++
		if e.Status == domain.EnrollmentCompleted {
			s.CompletedCount++
		}
	}
	return nil
}

// EnrollmentStore

func (m *memStores) Get(_ context.Context, id uuid.UUID) (*domain.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return nil, engine.ErrEnrollmentNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memStores) Create(_ context.Context, e *domain.Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.enrollments {
		if ex.SequenceID == e.SequenceID && ex.EnrolledType == e.EnrolledType &&
			ex.EnrolledID == e.EnrolledID && ex.Status == domain.EnrollmentActive {
			return engine.ErrAlreadyEnrolled
		}
	}
	cp := *e
	m.enrollments[cp.ID] = &cp
	return nil
}

func (m *memStores) HasActive(_ context.Context, sequenceID uuid.UUID, rt domain.RecipientType, recipientID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.SequenceID == sequenceID && e.EnrolledType == rt &&
			e.EnrolledID == recipientID && e.Status == domain.EnrollmentActive {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStores) ClaimDue(_ context.Context, limit int, now time.Time, leaseFor time.Duration) ([]domain.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []domain.Enrollment
	for _, e := range m.enrollments {
		if e.Status == domain.EnrollmentActive && !e.NextExecutionAt.After(now) {
			due = append(due, *e)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextExecutionAt.Before(due[j].NextExecutionAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	for _, d := range due {
		m.enrollments[d.ID].NextExecutionAt = now.Add(leaseFor)
	}
	return due, nil
}

func (m *memStores) Advance(_ context.Context, id uuid.UUID, stepID uuid.UUID, nextExecutionAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return engine.ErrEnrollmentNotFound
	}
	sid := stepID
	e.CurrentStepID = &sid
	e.NextExecutionAt = nextExecutionAt
	e.AttemptCount = 0
	return nil
}

func (m *memStores) Complete(_ context.Context, id uuid.UUID, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return engine.ErrEnrollmentNotFound
	}
	e.Status = domain.EnrollmentCompleted
	e.CompletedAt = &completedAt
	return nil
}

func (m *memStores) RecordFailure(_ context.Context, id uuid.UUID, retryAt time.Time, maxAttempts int) (domain.EnrollmentStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return "", engine.ErrEnrollmentNotFound
	}
	e.AttemptCount++
	if e.AttemptCount >= maxAttempts {
		e.Status = domain.EnrollmentDeadLetter
	} else {
		e.NextExecutionAt = retryAt
	}
	return e.Status, nil
}

func (m *memStores) Requeue(_ context.Context, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.enrollments[id]
	if !ok {
		return engine.ErrEnrollmentNotFound
	}
	e.Status = domain.EnrollmentActive
	e.AttemptCount = 0
	e.NextExecutionAt = now
	return nil
}

func (m *memStores) LogStep(_ context.Context, rec *domain.StepExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stepLog = append(m.stepLog, *rec)
	return nil
}

// RecipientStore

func (m *memStores) GetRecipient(_ context.Context, rt domain.RecipientType, id uuid.UUID) (*domain.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recipients[id]
	if !ok || r.Type != rt {
		return nil, engine.ErrRecipientNotFound
	}
	cp := *r
	return &cp, nil
}

// recipientView adapts memStores to engine.RecipientStore (its Get would
// otherwise collide with EnrollmentStore's).
type recipientView struct{ *memStores }

func (v recipientView) Get(ctx context.Context, rt domain.RecipientType, id uuid.UUID) (*domain.Recipient, error) {
	return v.GetRecipient(ctx, rt, id)
}

// fixedSettings satisfies engine.SettingsSource.
type fixedSettings struct{ s domain.BusinessSettings }

func (f fixedSettings) Get(context.Context) (domain.BusinessSettings, error) { return f.s, nil }

// fakeDispatcher records sends and can be told to fail.
type fakeDispatcher struct {
	mu     sync.Mutex
	sms    []string // resolved bodies
	emails []string // resolved subjects
	fail   error
}

func (d *fakeDispatcher) SendSMS(_ context.Context, toPhone, body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.sms = append(d.sms, body)
	return nil
}

func (d *fakeDispatcher) SendEmail(_ context.Context, toEmail, subject, htmlBody, textBody string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.emails = append(d.emails, subject)
	return nil
}

func (d *fakeDispatcher) smsCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sms)
}

// clock is a movable test clock.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestEngine(t *testing.T, stores *memStores, d *fakeDispatcher, clk *clock, maxAttempts int) *engine.Engine {
	t.Helper()
	return engine.New(stores, stores, recipientView{stores}, fixedSettings{domain.BusinessSettings{
		BusinessName: "Acme Dojo",
		AIName:       "Mia",
		BaseURL:      "https://app.acmedojo.com",
	}}, d, engine.Options{
		BatchSize:       50,
		MaxStepAttempts: maxAttempts,
		Now:             clk.Now,
	})
}

func leadRecipient(stores *memStores) *domain.Recipient {
	return stores.addRecipient(domain.Recipient{
		Type:      domain.RecipientLead,
		FirstName: "Ann",
		LastName:  "Lee",
		Email:     "ann@example.com",
		Phone:     "+15555550123",
	})
}

func TestTriggerInactiveSequenceCreatesNothing(t *testing.T) {
	stores := newMemStores()
	stores.addSequence(domain.TriggerNewLead, false,
		domain.Step{StepType: domain.StepSendSMS, Message: "hi"})
	lead := leadRecipient(stores)
	eng := newTestEngine(t, stores, &fakeDispatcher{}, newClock(), 5)

	if err := eng.TriggerAutomation(context.Background(), domain.TriggerNewLead, domain.RecipientLead, lead.ID); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if len(stores.enrollments) != 0 {
		t.Fatalf("expected 0 enrollments, got %d", len(stores.enrollments))
	}
}

func TestTriggerIsIdempotent(t *testing.T) {
	stores := newMemStores()
	stores.addSequence(domain.TriggerNewLead, true,
		domain.Step{StepType: domain.StepWait, WaitMinutes: 60},
		domain.Step{StepType: domain.StepSendSMS, Message: "hi"})
	lead := leadRecipient(stores)
	eng := newTestEngine(t, stores, &fakeDispatcher{}, newClock(), 5)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := eng.TriggerAutomation(ctx, domain.TriggerNewLead, domain.RecipientLead, lead.ID); err != nil {
			t.Fatalf("trigger %d: %v", i, err)
		}
	}
	if len(stores.enrollments) != 1 {
		t.Fatalf("expected exactly 1 enrollment, got %d", len(stores.enrollments))
	}
}

func TestTriggerRejectsUnknownTypes(t *testing.T) {
	eng := newTestEngine(t, newMemStores(), &fakeDispatcher{}, newClock(), 5)
	ctx := context.Background()

	if err := eng.TriggerAutomation(ctx, "meteor_strike", domain.RecipientLead, uuid.New()); err == nil {
		t.Fatal("expected error for unknown trigger type")
	}
	if err := eng.TriggerAutomation(ctx, domain.TriggerNewLead, "robot", uuid.New()); err == nil {
		t.Fatal("expected error for unknown recipient type")
	}
}

func TestWaitFirstStepSchedulesAfterDelay(t *testing.T) {
	stores := newMemStores()
	clk := newClock()
	seq := stores.addSequence(domain.TriggerNewLead, true,
		domain.Step{StepType: domain.StepWait, WaitMinutes: 60},
		domain.Step{StepType: domain.StepSendSMS, Message: "hi"})
	lead := leadRecipient(stores)
	eng := newTestEngine(t, stores, &fakeDispatcher{}, clk, 5)

	if err := eng.TriggerAutomation(context.Background(), domain.TriggerNewLead, domain.RecipientLead, lead.ID); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	var enr *domain.Enrollment
	for _, e := range stores.enrollments {
		enr = e
	}
	if enr == nil {
		t.Fatal("no enrollment created")
	}
	want := clk.Now().Add(60 * time.Minute)
	if !enr.NextExecutionAt.Equal(want) {
		t.Fatalf("next_execution_at = %v, want %v", enr.NextExecutionAt, want)
	}
	if *enr.CurrentStepID != stores.steps[seq.ID][0].ID {
		t.Fatal("enrollment should point at the first step")
	}
}

func TestSendFirstStepDispatchesAtTriggerTime(t *testing.T) {
	stores := newMemStores()
	clk := newClock()
	stores.addSequence(domain.TriggerNewLead, true,
		domain.Step{StepType: domain.StepSendSMS, Message: "Hi {{firstName}}"},
		domain.Step{StepType: domain.StepSendEmail, Subject: "s", Message: "b"})
	lead := leadRecipient(stores)
	d := &fakeDispatcher{}
	eng := newTestEngine(t, stores, d, clk, 5)
	ctx := context.Background()

	eng.TriggerAutomation(ctx, domain.TriggerNewLead, domain.RecipientLead, lead.ID)

	// The non-wait first step ran synchronously at trigger time.
	if d.smsCount() != 1 {
		t.Fatalf("expected 1 sms at trigger time, got %d", d.smsCount())
	}
	if d.sms[0] != "Hi Ann" {
		t.Fatalf("resolved body = %q", d.sms[0])
	}

	var enr *domain.Enrollment
	for _, e := range stores.enrollments {
		enr = e
	}
	step, _ := stores.GetStep(ctx, *enr.CurrentStepID)
	if step.StepOrder != 2 {
		t.Fatalf("expected advance to step 2, at %d", step.StepOrder)
	}
	if enr.Status != domain.EnrollmentActive {
		t.Fatalf("status = %s", enr.Status)
	}
	if enr.NextExecutionAt.After(clk.Now()) {
		t.Fatalf("next send step should be due immediately, due at %v", enr.NextExecutionAt)
	}

	// The scheduler pass finishes the sequence.
	n, err := eng.ProcessAutomations(ctx)
	if err != nil || n != 1 {
		t.Fatalf("process: n=%d err=%v", n, err)
	}
	got, _ := stores.Get(ctx, enr.ID)
	if got.Status != domain.EnrollmentCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
}

// The three-step scenario: [wait 60, send_sms, end]. First pass past the
// wait lands on send_sms; second pass dispatches and completes.
func TestThreeStepScenario(t *testing.T) {
	stores := newMemStores()
	clk := newClock()
	seq := stores.addSequence(domain.TriggerNewLead, true,
		domain.Step{StepType: domain.StepWait, WaitMinutes: 60},
		domain.Step{StepType: domain.StepSendSMS, Message: "See you soon {{firstName}}"},
		domain.Step{StepType: domain.StepEnd})
	lead := leadRecipient(stores)
	d := &fakeDispatcher{}
	eng := newTestEngine(t, stores, d, clk, 5)
	ctx := context.Background()

	eng.TriggerAutomation(ctx, domain.TriggerNewLead, domain.RecipientLead, lead.ID)

	// Not yet due: a pass does nothing.
	if n, _ := eng.ProcessAutomations(ctx); n != 0 {
		t.Fatalf("processed %d before the wait elapsed", n)
	}

	clk.Advance(61 * time.Minute)

	if n, _ := eng.ProcessAutomations(ctx); n != 1 {
		t.Fatal("expected first pass to process the wait step")
	}
	var enr *domain.Enrollment
	for _, e := range stores.enrollments {
		enr = e
	}
	step, _ := stores.GetStep(ctx, *enr.CurrentStepID)
	if step.StepType != domain.StepSendSMS {
		t.Fatalf("after first pass current step = %s, want send_sms", step.StepType)
	}
	if enr.Status != domain.EnrollmentActive {
		t.Fatalf("after first pass status = %s", enr.Status)
	}

	if n, _ := eng.ProcessAutomations(ctx); n != 1 {
		t.Fatal("expected second pass to process the sms step")
	}
	got, _ := stores.Get(ctx, enr.ID)
	if got.Status != domain.EnrollmentCompleted {
		t.Fatalf("after second pass status = %s, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
	if d.smsCount() != 1 {
		t.Fatalf("expected exactly 1 sms, got %d", d.smsCount())
	}
	if stores.sequences[seq.ID].CompletedCount != 1 {
		t.Fatalf("completed_count = %d, want 1", stores.sequences[seq.ID].CompletedCount)
	}
}

func TestDispatchFailureRetriesThenDeadLetters(t *testing.T) {
	stores := newMemStores()
	clk := newClock()
	stores.addSequence(domain.TriggerNewLead, true,
		domain.Step{StepType: domain.StepSendSMS, Message: "hi"})
	lead := leadRecipient(stores)
	d := &fakeDispatcher{fail: errors.New("provider down")}
	eng := newTestEngine(t, stores, d, clk, 3)
	ctx := context.Background()

	// The immediate first-step execution at trigger time burns attempt 1.
	eng.TriggerAutomation(ctx, domain.TriggerNewLead, domain.RecipientLead, lead.ID)

	var enrID uuid.UUID
	for id := range stores.enrollments {
		enrID = id
	}

	for i := 0; i < 2; i++ {
		if n, _ := eng.ProcessAutomations(ctx); n != 1 {
			t.Fatalf("retry %d: processed %d", i+1, n)
		}
	}

	got, _ := stores.Get(ctx, enrID)
	if got.Status != domain.EnrollmentDeadLetter {
		t.Fatalf("status = %s, want dead_letter after 3 attempts", got.Status)
	}

	// A further pass must not touch it.
	if n, _ := eng.ProcessAutomations(ctx); n != 0 {
		t.Fatal("dead_letter enrollment was processed again")
	}

	// Requeue with a healthy provider drains it.
	d.mu.Lock()
	d.fail = nil
	d.mu.Unlock()
	if err := eng.RequeueDeadLetter(ctx, enrID); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if n, _ := eng.ProcessAutomations(ctx); n != 1 {
		t.Fatal("requeued enrollment not processed")
	}
	got, _ = stores.Get(ctx, enrID)
	if got.Status != domain.EnrollmentCompleted {
		t.Fatalf("status after requeue = %s", got.Status)
	}
}

func TestRequeueRejectsNonDeadLetter(t *testing.T) {
	stores := newMemStores()
	stores.addSequence(domain.TriggerNewLead, true,
		domain.Step{StepType: domain.StepWait, WaitMinutes: 5})
	lead := leadRecipient(stores)
	eng := newTestEngine(t, stores, &fakeDispatcher{}, newClock(), 5)
	ctx := context.Background()

	eng.TriggerAutomation(ctx, domain.TriggerNewLead, domain.RecipientLead, lead.ID)
	var enrID uuid.UUID
	for id := range stores.enrollments {
		enrID = id
	}

	if err := eng.RequeueDeadLetter(ctx, enrID); err == nil {
		t.Fatal("expected error requeueing an active enrollment")
	}
}

func TestMissingPhoneCountsAsFailure(t *testing.T) {
	stores := newMemStores()
	stores.addSequence(domain.TriggerNewLead, true,
		domain.Step{StepType: domain.StepSendSMS, Message: "hi"})
	lead := stores.addRecipient(domain.Recipient{Type: domain.RecipientLead, FirstName: "Ann"})
	d := &fakeDispatcher{}
	eng := newTestEngine(t, stores, d, newClock(), 2)
	ctx := context.Background()

	eng.TriggerAutomation(ctx, domain.TriggerNewLead, domain.RecipientLead, lead.ID)
	eng.ProcessAutomations(ctx)
	eng.ProcessAutomations(ctx)

	if d.smsCount() != 0 {
		t.Fatal("nothing should have been sent")
	}
	for _, e := range stores.enrollments {
		if e.Status != domain.EnrollmentDeadLetter {
			t.Fatalf("status = %s, want dead_letter", e.Status)
		}
	}
}

func TestSequenceWithoutStepsSkipsEnrollment(t *testing.T) {
	stores := newMemStores()
	stores.addSequence(domain.TriggerNewLead, true)
	lead := leadRecipient(stores)
	eng := newTestEngine(t, stores, &fakeDispatcher{}, newClock(), 5)

	if err := eng.TriggerAutomation(context.Background(), domain.TriggerNewLead, domain.RecipientLead, lead.ID); err != nil {
		t.Fatalf("trigger should not error: %v", err)
	}
	if len(stores.enrollments) != 0 {
		t.Fatal("no enrollment should exist for a stepless sequence")
	}
}

func TestStepOrderGapCompletesEnrollment(t *testing.T) {
	stores := newMemStores()
	seq := stores.addSequence(domain.TriggerNewLead, true,
		domain.Step{StepType: domain.StepSendSMS, Message: "a"},
		domain.Step{StepType: domain.StepSendSMS, Message: "b"})
	// A deleted middle step leaves orders [1, 3]. Advancing past step 1 must
	// complete the enrollment, not jump the gap to step 3.
	stores.steps[seq.ID][1].StepOrder = 3
	lead := leadRecipient(stores)
	d := &fakeDispatcher{}
	eng := newTestEngine(t, stores, d, newClock(), 5)

	eng.TriggerAutomation(context.Background(), domain.TriggerNewLead, domain.RecipientLead, lead.ID)

	if len(stores.enrollments) != 1 {
		t.Fatalf("expected 1 enrollment, got %d", len(stores.enrollments))
	}
	for _, e := range stores.enrollments {
		if e.Status != domain.EnrollmentCompleted {
			t.Fatalf("status = %s, want completed at the order gap", e.Status)
		}
	}
	if d.smsCount() != 1 {
		t.Fatalf("expected only the first step's sms, got %d", d.smsCount())
	}
}

func TestTriggerEnrollsIntoEveryMatchingSequence(t *testing.T) {
	stores := newMemStores()
	stores.addSequence(domain.TriggerNewLead, true,
		domain.Step{StepType: domain.StepSendSMS, Message: "a"})
	stores.addSequence(domain.TriggerNewLead, true,
		domain.Step{StepType: domain.StepSendEmail, Subject: "s", Message: "b"})
	stores.addSequence(domain.TriggerMissedClass, true,
		domain.Step{StepType: domain.StepSendSMS, Message: "c"})
	lead := leadRecipient(stores)
	eng := newTestEngine(t, stores, &fakeDispatcher{}, newClock(), 5)

	eng.TriggerAutomation(context.Background(), domain.TriggerNewLead, domain.RecipientLead, lead.ID)
	if len(stores.enrollments) != 2 {
		t.Fatalf("expected 2 enrollments (one per matching sequence), got %d", len(stores.enrollments))
	}
}

func TestStepLogRecordsAttempts(t *testing.T) {
	stores := newMemStores()
	stores.addSequence(domain.TriggerNewLead, true,
		domain.Step{StepType: domain.StepSendSMS, Message: "hi"})
	lead := leadRecipient(stores)
	eng := newTestEngine(t, stores, &fakeDispatcher{}, newClock(), 5)
	ctx := context.Background()

	eng.TriggerAutomation(ctx, domain.TriggerNewLead, domain.RecipientLead, lead.ID)

	if len(stores.stepLog) < 2 {
		t.Fatalf("expected pending and completed records, got %d", len(stores.stepLog))
	}
	if stores.stepLog[0].Status != domain.StepLogPending {
		t.Fatalf("first record status = %s, want pending", stores.stepLog[0].Status)
	}
	last := stores.stepLog[len(stores.stepLog)-1]
	if last.Status != domain.StepLogCompleted {
		t.Fatalf("last record status = %s, want completed", last.Status)
	}
}
