package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"warranty-service/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeValidator struct {
	vehicles map[string]*domain.VehicleWarrantyInfo
	err      error
}

func (f *fakeValidator) LookupVehicle(_ context.Context, vin string) (*domain.VehicleWarrantyInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	info, ok := f.vehicles[vin]
	if !ok {
		return nil, domain.ErrVehicleNotFound
	}
	return info, nil
}

type fakeRoster struct {
	technicians []domain.Technician
	err         error
}

func (f *fakeRoster) ListAvailable(context.Context) ([]domain.Technician, error) {
	return f.technicians, f.err
}

type fakeSubmitter struct {
	id        string
	err       error
	submitted []*domain.Claim
}

func (f *fakeSubmitter) Submit(_ context.Context, claim *domain.Claim) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.submitted = append(f.submitted, claim)
	return f.id, nil
}

type notification struct {
	title, message, severity string
}

type fakeNotifier struct {
	sent []notification
}

func (f *fakeNotifier) Notify(title, message, severity string) {
	f.sent = append(f.sent, notification{title, message, severity})
}

func (f *fakeNotifier) last() notification {
	if len(f.sent) == 0 {
		return notification{}
	}
	return f.sent[len(f.sent)-1]
}

func fixtureVehicle(status domain.WarrantyStatus) *domain.VehicleWarrantyInfo {
	return &domain.VehicleWarrantyInfo{
		VIN:           "1HGBH41JXMN109186",
		Model:         "Volt EJ-7",
		Year:          2023,
		WarrantyStart: time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC),
		WarrantyEnd:   time.Date(2031, 3, 1, 0, 0, 0, 0, time.UTC),
		Mileage:       18000,
		MaxMileage:    160000,
		Status:        status,
	}
}

type wizardFixture struct {
	wizard    *Wizard
	validator *fakeValidator
	roster    *fakeRoster
	submitter *fakeSubmitter
	notifier  *fakeNotifier
}

func newWizardFixture(t *testing.T) *wizardFixture {
	t.Helper()
	f := &wizardFixture{
		validator: &fakeValidator{vehicles: map[string]*domain.VehicleWarrantyInfo{
			"1HGBH41JXMN109186": fixtureVehicle(domain.WarrantyValid),
		}},
		roster:    &fakeRoster{technicians: testRoster()},
		submitter: &fakeSubmitter{id: "WC-test-1"},
		notifier:  &fakeNotifier{},
	}
	w, err := NewWizard(Config{
		Session:   SessionContext{UserID: "advisor-7", UserName: "Service Advisor"},
		Validator: f.validator,
		Roster:    f.roster,
		Submitter: f.submitter,
		Notifier:  f.notifier,
	})
	require.NoError(t, err)
	f.wizard = w
	return f
}

// driveToReview walks a wizard through the first four steps with the
// fixture data, leaving it on the review step.
func driveToReview(t *testing.T, w *Wizard) {
	t.Helper()
	ctx := context.Background()

	_, err := w.ValidateVehicle(ctx, "1HGBH41JXMN109186")
	require.NoError(t, err)
	_, err = w.Advance()
	require.NoError(t, err)

	require.NoError(t, w.DescribeIssue(domain.IssueBatteryPerformance, "Range drops 40% in cold weather"))
	_, err = w.Advance()
	require.NoError(t, err)

	ranked, err := w.RecommendTechnicians(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, ranked)
	main := ranked[0]
	require.NoError(t, w.SetAssignment(&domain.TechnicianAssignment{
		MainTechnician: &main,
		EstimatedTime:  "2 days",
	}))
	_, err = w.Advance()
	require.NoError(t, err)

	require.NoError(t, w.SetNotes("Customer waiting on loaner vehicle"))
	_, err = w.Advance()
	require.NoError(t, err)
	require.Equal(t, StepReview, w.Step())
}

func (f *wizardFixture) driveToReview(t *testing.T) {
	t.Helper()
	driveToReview(t, f.wizard)
}

func TestNewWizard_RequiresCollaborators(t *testing.T) {
	_, err := NewWizard(Config{Roster: &fakeRoster{}, Submitter: &fakeSubmitter{}})
	assert.Error(t, err)

	_, err = NewWizard(Config{Validator: &fakeValidator{}, Submitter: &fakeSubmitter{}})
	assert.Error(t, err)

	_, err = NewWizard(Config{Validator: &fakeValidator{}, Roster: &fakeRoster{}})
	assert.Error(t, err)

	w, err := NewWizard(Config{Validator: &fakeValidator{}, Roster: &fakeRoster{}, Submitter: &fakeSubmitter{}})
	require.NoError(t, err)
	assert.Equal(t, StepValidate, w.Step())
}

func TestWizard_HappyPathToSubmission(t *testing.T) {
	f := newWizardFixture(t)
	f.driveToReview(t)

	id, err := f.wizard.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "WC-test-1", id)
	assert.Equal(t, StepSubmitted, f.wizard.Step())

	require.Len(t, f.submitter.submitted, 1)
	claim := f.submitter.submitted[0]
	assert.Equal(t, "1HGBH41JXMN109186", claim.VIN)
	assert.Equal(t, domain.IssueBatteryPerformance, claim.IssueCategory)
	assert.Equal(t, "submitted", claim.Status)
	assert.Equal(t, "advisor-7", claim.SubmittedBy)
	assert.Equal(t, "Trần Minh Quân", claim.Assignment.MainTechnician.Name)
	assert.False(t, claim.SubmittedAt.IsZero())

	assert.Equal(t, "Claim submitted", f.notifier.last().title)
	assert.Equal(t, SeverityInfo, f.notifier.last().severity)
}

func TestWizard_VehicleNotFoundStaysOnFirstStep(t *testing.T) {
	f := newWizardFixture(t)

	_, err := f.wizard.ValidateVehicle(context.Background(), "5YJ3E1EA7KF000000")
	require.ErrorIs(t, err, domain.ErrVehicleNotFound)
	assert.Equal(t, StepValidate, f.wizard.Step())
	assert.Nil(t, f.wizard.Draft().VehicleInfo)
	assert.Equal(t, SeverityError, f.notifier.last().severity)

	_, err = f.wizard.Advance()
	assert.Error(t, err, "advance must stay gated until a vehicle is found")
}

func TestWizard_ExpiredWarrantyStillAdvances(t *testing.T) {
	f := newWizardFixture(t)
	f.validator.vehicles["1HGBH41JXMN109186"] = fixtureVehicle(domain.WarrantyExpiredTime)

	info, err := f.wizard.ValidateVehicle(context.Background(), "1HGBH41JXMN109186")
	require.NoError(t, err)
	assert.Equal(t, domain.WarrantyExpiredTime, info.Status)
	assert.Equal(t, SeverityWarning, f.notifier.last().severity)

	step, err := f.wizard.Advance()
	require.NoError(t, err)
	assert.Equal(t, StepDescribe, step)
}

func TestWizard_ValidateRequiresVIN(t *testing.T) {
	f := newWizardFixture(t)
	_, err := f.wizard.ValidateVehicle(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestWizard_ValidateOnlyOnFirstStep(t *testing.T) {
	f := newWizardFixture(t)
	_, err := f.wizard.ValidateVehicle(context.Background(), "1HGBH41JXMN109186")
	require.NoError(t, err)
	_, err = f.wizard.Advance()
	require.NoError(t, err)

	_, err = f.wizard.ValidateVehicle(context.Background(), "1HGBH41JXMN109186")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestWizard_RecommendationsNeedCategory(t *testing.T) {
	f := newWizardFixture(t)
	_, err := f.wizard.RecommendTechnicians(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestWizard_SubmitFailurePreservesDraftForRetry(t *testing.T) {
	f := newWizardFixture(t)
	f.driveToReview(t)

	f.submitter.err = errors.New("mongo: connection reset")
	_, err := f.wizard.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, StepReview, f.wizard.Step())

	draft := f.wizard.Draft()
	require.NotNil(t, draft.VehicleInfo)
	assert.Equal(t, domain.IssueBatteryPerformance, draft.IssueCategory)
	assert.Equal(t, "Submission failed", f.notifier.last().title)

	f.submitter.err = nil
	id, err := f.wizard.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "WC-test-1", id)
	assert.Equal(t, StepSubmitted, f.wizard.Step())
}

// blockingValidator parks LookupVehicle until released so a second call can
// be issued while the first is in flight.
type blockingValidator struct {
	entered chan struct{}
	release chan struct{}
	info    *domain.VehicleWarrantyInfo
}

func (b *blockingValidator) LookupVehicle(context.Context, string) (*domain.VehicleWarrantyInfo, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.info, nil
}

// blockingSubmitter parks Submit until released.
type blockingSubmitter struct {
	entered chan struct{}
	release chan struct{}
	id      string
}

func (b *blockingSubmitter) Submit(context.Context, *domain.Claim) (string, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.id, nil
}

func TestWizard_DuplicateLookupRejectedWhileInFlight(t *testing.T) {
	validator := &blockingValidator{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		info:    fixtureVehicle(domain.WarrantyValid),
	}
	w, err := NewWizard(Config{
		Validator: validator,
		Roster:    &fakeRoster{},
		Submitter: &fakeSubmitter{},
	})
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, err := w.ValidateVehicle(context.Background(), "1HGBH41JXMN109186")
		firstDone <- err
	}()
	<-validator.entered

	_, err = w.ValidateVehicle(context.Background(), "1HGBH41JXMN109186")
	assert.ErrorIs(t, err, domain.ErrWizardBusy)

	close(validator.release)
	require.NoError(t, <-firstDone)
	assert.NotNil(t, w.Draft().VehicleInfo, "the in-flight lookup still completes")
}

func TestWizard_DuplicateSubmitRejectedWhileInFlight(t *testing.T) {
	submitter := &blockingSubmitter{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		id:      "WC-test-1",
	}
	w, err := NewWizard(Config{
		Session: SessionContext{UserID: "advisor-7"},
		Validator: &fakeValidator{vehicles: map[string]*domain.VehicleWarrantyInfo{
			"1HGBH41JXMN109186": fixtureVehicle(domain.WarrantyValid),
		}},
		Roster:    &fakeRoster{technicians: testRoster()},
		Submitter: submitter,
	})
	require.NoError(t, err)
	driveToReview(t, w)

	firstDone := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background())
		firstDone <- err
	}()
	<-submitter.entered

	_, err = w.Submit(context.Background())
	assert.ErrorIs(t, err, domain.ErrWizardBusy)

	close(submitter.release)
	require.NoError(t, <-firstDone)
	assert.Equal(t, StepSubmitted, w.Step(), "the in-flight submission still completes")
}

func TestWizard_SubmitOnlyFromReview(t *testing.T) {
	f := newWizardFixture(t)
	_, err := f.wizard.Submit(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestWizard_BackFromFirstStepCancels(t *testing.T) {
	f := newWizardFixture(t)
	_, err := f.wizard.ValidateVehicle(context.Background(), "1HGBH41JXMN109186")
	require.NoError(t, err)

	step, err := f.wizard.Back()
	require.NoError(t, err)
	assert.Equal(t, StepCancelled, step)
	assert.Nil(t, f.wizard.Draft().VehicleInfo, "cancelling discards the draft")
}

func TestWizard_BackKeepsDraft(t *testing.T) {
	f := newWizardFixture(t)
	_, err := f.wizard.ValidateVehicle(context.Background(), "1HGBH41JXMN109186")
	require.NoError(t, err)
	_, err = f.wizard.Advance()
	require.NoError(t, err)

	step, err := f.wizard.Back()
	require.NoError(t, err)
	assert.Equal(t, StepValidate, step)
	assert.NotNil(t, f.wizard.Draft().VehicleInfo, "going back keeps entered data")
}

func TestWizard_CancelClosesSession(t *testing.T) {
	f := newWizardFixture(t)
	require.NoError(t, f.wizard.Cancel())
	assert.Equal(t, StepCancelled, f.wizard.Step())

	err := f.wizard.Cancel()
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.wizard.Advance()
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestWizard_DraftReturnsCopy(t *testing.T) {
	f := newWizardFixture(t)
	f.driveToReview(t)
	require.NoError(t, f.wizard.AddAttachment(domain.Attachment{
		Name: "dashboard.jpg", Size: 120_000, ContentType: "image/jpeg", StorageKey: "claims/tmp/dashboard.jpg",
	}))

	draft := f.wizard.Draft()
	require.Len(t, draft.Attachments, 1)
	draft.Attachments[0].Name = "tampered.jpg"
	draft.Notes = "tampered"
	draft.VehicleInfo.Model = "tampered"
	draft.Assignment.MainTechnician.Name = "tampered"
	draft.Assignment.EstimatedTime = "tampered"

	current := f.wizard.Draft()
	assert.Equal(t, "dashboard.jpg", current.Attachments[0].Name)
	assert.Equal(t, "Customer waiting on loaner vehicle", current.Notes)
	assert.Equal(t, "Volt EJ-7", current.VehicleInfo.Model)
	assert.Equal(t, "Trần Minh Quân", current.Assignment.MainTechnician.Name)
	assert.Equal(t, "2 days", current.Assignment.EstimatedTime)
}
