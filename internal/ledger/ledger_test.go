package ledger

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carevault.org/internal/events"
)

const (
	admin   Address = "admin"
	patient Address = "patient-p"
	doctor  Address = "doctor-d"
	other   Address = "doctor-o"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(evt events.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

func newTestLedger(t *testing.T) (*Ledger, *fakeClock, *recorder) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	return New(WithAdministrator(admin), WithClock(clock.Now), WithEmitter(rec)), clock, rec
}

func sampleRecord(owner Address) NewRecord {
	return NewRecord{
		Owner:          owner,
		PayloadDigest:  "payload-1",
		OwnerKeyDigest: "owner-key-1",
		Type:           RecordLabResult,
		IntegrityHash:  "hash-1",
		Description:    "Annual blood work",
	}
}

// setup registers P, registers and verifies D and adds R1.
func setup(t *testing.T) (*Ledger, *fakeClock, *recorder) {
	t.Helper()
	l, clock, rec := newTestLedger(t)
	_, err := l.RegisterPatient(l.TxFor(patient), "profile-p")
	require.NoError(t, err)
	_, err = l.RegisterDoctor(l.TxFor(doctor), "profile-d", "LIC-1")
	require.NoError(t, err)
	_, err = l.VerifyDoctor(l.TxFor(admin), doctor)
	require.NoError(t, err)
	id, err := l.AddRecord(l.TxFor(patient), sampleRecord(patient))
	require.NoError(t, err)
	require.Equal(t, RecordID(1), id)
	return l, clock, rec
}

func TestRegisterOncePerIdentity(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.RegisterPatient(l.TxFor(patient), "p")
	require.NoError(t, err)
	_, err = l.RegisterPatient(l.TxFor(patient), "p")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	_, err = l.RegisterDoctor(l.TxFor(patient), "p", "LIC")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	d, err := l.RegisterDoctor(l.TxFor(doctor), "d", "LIC")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, d.Status)
	_, err = l.RegisterPatient(l.TxFor(doctor), "d")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegisterValidation(t *testing.T) {
	l, _, _ := newTestLedger(t)

	_, err := l.RegisterPatient(l.TxFor(patient), "")
	assert.ErrorIs(t, err, ErrEmptyProfile)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = l.RegisterPatient(l.TxFor(""), "p")
	assert.ErrorIs(t, err, ErrEmptyCaller)

	_, err = l.RegisterDoctor(l.TxFor(doctor), "d", "")
	assert.ErrorIs(t, err, ErrEmptyLicenseRef)

	assert.False(t, l.IsPatient(patient))
	_, err = l.GetIdentity(doctor)
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestDoctorStatusTransitions(t *testing.T) {
	l, _, _ := newTestLedger(t)
	_, err := l.RegisterDoctor(l.TxFor(doctor), "d", "LIC")
	require.NoError(t, err)
	_, err = l.RegisterPatient(l.TxFor(patient), "p")
	require.NoError(t, err)

	_, err = l.VerifyDoctor(l.TxFor(doctor), doctor)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = l.VerifyDoctor(l.TxFor(admin), patient)
	assert.ErrorIs(t, err, ErrNotRegistered)
	_, err = l.VerifyDoctor(l.TxFor(admin), other)
	assert.ErrorIs(t, err, ErrNotRegistered)
	assert.False(t, l.IsVerifiedDoctor(doctor))

	id, err := l.VerifyDoctor(l.TxFor(admin), doctor)
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, id.Status)
	assert.False(t, id.VerifiedAt.IsZero())
	assert.True(t, l.IsVerifiedDoctor(doctor))

	_, err = l.VerifyDoctor(l.TxFor(admin), doctor)
	assert.ErrorIs(t, err, ErrNotPending)

	_, err = l.SuspendDoctor(l.TxFor(admin), doctor, "")
	assert.ErrorIs(t, err, ErrInvalidReason)
	id, err = l.SuspendDoctor(l.TxFor(admin), doctor, "license lapsed")
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, id.Status)
	assert.Equal(t, "license lapsed", id.StatusReason)
	assert.False(t, l.IsVerifiedDoctor(doctor))

	id, err = l.RejectDoctor(l.TxFor(admin), doctor, "invalid license")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, id.Status)
}

func TestUpdateProfile(t *testing.T) {
	l, _, _ := newTestLedger(t)
	_, err := l.UpdateProfile(l.TxFor(patient), "p2")
	assert.ErrorIs(t, err, ErrNotRegistered)

	_, err = l.RegisterPatient(l.TxFor(patient), "p1")
	require.NoError(t, err)
	_, err = l.UpdateProfile(l.TxFor(patient), "")
	assert.ErrorIs(t, err, ErrEmptyProfile)
	id, err := l.UpdateProfile(l.TxFor(patient), "p2")
	require.NoError(t, err)
	assert.Equal(t, Digest("p2"), id.ProfileDigest)
}

func TestScenarioA_ActiveRecords(t *testing.T) {
	l, _, _ := setup(t)
	assert.Equal(t, []RecordID{1}, l.GetActivePatientRecordIDs(patient))

	rec, err := l.GetRecord(1)
	require.NoError(t, err)
	assert.Equal(t, "Annual blood work", rec.Description)
	assert.Equal(t, RecordLabResult, rec.Type)
	assert.Equal(t, patient, rec.Author)
	assert.True(t, rec.Active)
	assert.Equal(t, uint64(1), l.GetTotalRecords())
}

func TestAddRecordRules(t *testing.T) {
	l, _, _ := setup(t)

	// A verified doctor who is not a patient cannot own a record.
	_, err := l.AddRecord(l.TxFor(doctor), sampleRecord(doctor))
	assert.ErrorIs(t, err, ErrOwnerNotPatient)

	_, err = l.RegisterDoctor(l.TxFor(other), "o", "LIC-2")
	require.NoError(t, err)
	_, err = l.AddRecord(l.TxFor(other), sampleRecord(patient))
	assert.ErrorIs(t, err, ErrUnauthorized)

	byDoctor, err := l.AddRecord(l.TxFor(doctor), sampleRecord(patient))
	require.NoError(t, err)
	rec, err := l.GetRecord(byDoctor)
	require.NoError(t, err)
	assert.Equal(t, patient, rec.Owner)
	assert.Equal(t, doctor, rec.Author)

	cases := []struct {
		name string
		edit func(*NewRecord)
		want error
	}{
		{"empty payload", func(r *NewRecord) { r.PayloadDigest = "" }, ErrEmptyDigest},
		{"empty owner key", func(r *NewRecord) { r.OwnerKeyDigest = "" }, ErrEmptyDigest},
		{"empty integrity hash", func(r *NewRecord) { r.IntegrityHash = "" }, ErrEmptyDigest},
		{"bad type", func(r *NewRecord) { r.Type = RecordType(99) }, ErrInvalidRecordType},
		{"missing type", func(r *NewRecord) { r.Type = 0 }, ErrInvalidRecordType},
		{"long description", func(r *NewRecord) { r.Description = strings.Repeat("x", 101) }, ErrDescriptionTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := sampleRecord(patient)
			tc.edit(&in)
			_, err := l.AddRecord(l.TxFor(patient), in)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	in := sampleRecord(patient)
	in.Description = strings.Repeat("x", 100)
	_, err = l.AddRecord(l.TxFor(patient), in)
	assert.NoError(t, err)
	assert.Equal(t, uint64(3), l.GetTotalRecords())
}

func TestDeactivateRecord(t *testing.T) {
	l, _, _ := setup(t)
	_, err := l.AddRecord(l.TxFor(patient), sampleRecord(patient))
	require.NoError(t, err)

	assert.ErrorIs(t, l.DeactivateRecord(l.TxFor(doctor), 1), ErrUnauthorized)
	assert.ErrorIs(t, l.DeactivateRecord(l.TxFor(patient), 0), ErrNotFound)
	assert.ErrorIs(t, l.DeactivateRecord(l.TxFor(doctor), 99), ErrNotFound)
	require.NoError(t, l.DeactivateRecord(l.TxFor(patient), 1))

	before := l.AuditLen()
	assert.ErrorIs(t, l.DeactivateRecord(l.TxFor(patient), 1), ErrAlreadyInactive)
	assert.Equal(t, before, l.AuditLen())

	first := l.GetActivePatientRecordIDs(patient)
	assert.Equal(t, []RecordID{2}, first)
	assert.Equal(t, first, l.GetActivePatientRecordIDs(patient))
	assert.Equal(t, []RecordID{1, 2}, l.GetPatientRecordIDs(patient))

	_, err = l.RequestAccess(l.TxFor(doctor), 1, "review")
	assert.ErrorIs(t, err, ErrRecordInactive)
}

func TestScenarioB_UnverifiedDoctorCannotRequest(t *testing.T) {
	l, _, _ := newTestLedger(t)
	_, err := l.RegisterPatient(l.TxFor(patient), "p")
	require.NoError(t, err)
	_, err = l.AddRecord(l.TxFor(patient), sampleRecord(patient))
	require.NoError(t, err)
	_, err = l.RegisterDoctor(l.TxFor(doctor), "d", "LIC")
	require.NoError(t, err)

	_, err = l.RequestAccess(l.TxFor(doctor), 1, "review")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, l.GetPendingRequests(patient))
}

func TestScenarioC_GrantThenLapse(t *testing.T) {
	l, clock, _ := setup(t)

	accessID, err := l.RequestAccess(l.TxFor(doctor), 1, "consult")
	require.NoError(t, err)
	pending := l.GetPendingRequests(patient)
	require.Len(t, pending, 1)
	assert.Equal(t, accessID, pending[0].ID)
	assert.Equal(t, patient, pending[0].Patient)

	g, err := l.GrantAccess(l.TxFor(patient), accessID, "key-for-d", 30)
	require.NoError(t, err)
	assert.Equal(t, g.GrantedAt.Add(30*24*time.Hour), g.ExpiresAt)
	assert.True(t, l.HasActiveAccess(1, doctor))
	assert.True(t, l.IsGranteeOf(doctor, 1))
	assert.Empty(t, l.GetPendingRequests(patient))
	assert.Equal(t, []RecordID{1}, l.GetDoctorAccessibleRecords(doctor))

	key, err := l.GetEncryptedKeyDigest(doctor, 1)
	require.NoError(t, err)
	assert.Equal(t, Digest("key-for-d"), key)

	clock.Advance(30 * 24 * time.Hour)
	assert.True(t, l.HasActiveAccess(1, doctor), "expiry instant is inclusive")

	clock.Advance(time.Second)
	assert.False(t, l.HasActiveAccess(1, doctor))
	assert.Empty(t, l.GetDoctorAccessibleRecords(doctor))
	_, err = l.GetEncryptedKeyDigest(doctor, 1)
	assert.ErrorIs(t, err, ErrExpired)

	stored, err := l.GetAccess(accessID)
	require.NoError(t, err)
	assert.Equal(t, AccessGranted, stored.Status)
	assert.Equal(t, AccessExpired, stored.EffectiveStatus(l.Now()))

	_, err = l.RevokeAccess(l.TxFor(patient), accessID)
	assert.ErrorIs(t, err, ErrAlreadyExpired)
}

func TestPolicyPredicates(t *testing.T) {
	l, _, _ := setup(t)

	assert.Equal(t, admin, l.Administrator())
	assert.True(t, l.IsOwnerOf(patient, 1))
	assert.False(t, l.IsOwnerOf(doctor, 1))
	assert.False(t, l.IsOwnerOf(patient, 99))
	assert.False(t, l.IsGranteeOf(doctor, 1))

	accessID, err := l.RequestAccess(l.TxFor(doctor), 1, "consult")
	require.NoError(t, err)
	assert.False(t, l.IsGranteeOf(doctor, 1), "pending is not access")
	_, err = l.GrantAccess(l.TxFor(patient), accessID, "key-for-d", 1)
	require.NoError(t, err)
	assert.True(t, l.IsGranteeOf(doctor, 1))
	assert.False(t, l.IsGranteeOf(other, 1))
}

func TestScenarioD_Revoke(t *testing.T) {
	l, clock, _ := setup(t)
	accessID, err := l.RequestAccess(l.TxFor(doctor), 1, "consult")
	require.NoError(t, err)
	_, err = l.GrantAccess(l.TxFor(patient), accessID, "key-for-d", 30)
	require.NoError(t, err)

	clock.Advance(24 * time.Hour)
	_, err = l.RevokeAccess(l.TxFor(doctor), accessID)
	assert.ErrorIs(t, err, ErrUnauthorized)

	g, err := l.RevokeAccess(l.TxFor(patient), accessID)
	require.NoError(t, err)
	assert.Equal(t, AccessRevoked, g.Status)
	assert.False(t, l.HasActiveAccess(1, doctor))

	_, err = l.RevokeAccess(l.TxFor(patient), accessID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = l.GetEncryptedKeyDigest(doctor, 1)
	assert.ErrorIs(t, err, ErrNotGranted)
}

func TestScenarioE_DuplicateActiveRequest(t *testing.T) {
	l, _, _ := setup(t)
	accessID, err := l.RequestAccess(l.TxFor(doctor), 1, "consult")
	require.NoError(t, err)
	_, err = l.GrantAccess(l.TxFor(patient), accessID, "key-for-d", 30)
	require.NoError(t, err)

	_, err = l.RequestAccess(l.TxFor(doctor), 1, "consult again")
	assert.ErrorIs(t, err, ErrAlreadyActive)
}

func TestGrantAccessRules(t *testing.T) {
	l, _, _ := setup(t)
	accessID, err := l.RequestAccess(l.TxFor(doctor), 1, "consult")
	require.NoError(t, err)

	_, err = l.GrantAccess(l.TxFor(patient), 99, "k", 30)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.GrantAccess(l.TxFor(doctor), accessID, "k", 30)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = l.GrantAccess(l.TxFor(patient), accessID, "", 30)
	assert.ErrorIs(t, err, ErrEmptyDigest)
	_, err = l.GrantAccess(l.TxFor(patient), accessID, "owner-key-1", 30)
	assert.ErrorIs(t, err, ErrKeyNotRewrapped)
	for _, days := range []int{0, -1, 366} {
		_, err = l.GrantAccess(l.TxFor(patient), accessID, "k", days)
		assert.ErrorIs(t, err, ErrInvalidDuration, "days=%d", days)
	}

	_, err = l.GrantAccess(l.TxFor(patient), accessID, "k", 365)
	require.NoError(t, err)
	_, err = l.GrantAccess(l.TxFor(patient), accessID, "k", 30)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestRequestAccessRules(t *testing.T) {
	l, _, _ := setup(t)

	_, err := l.RequestAccess(l.TxFor(doctor), 7, "consult")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.RequestAccess(l.TxFor(doctor), 1, "")
	assert.ErrorIs(t, err, ErrInvalidReason)
	_, err = l.RequestAccess(l.TxFor(doctor), 1, strings.Repeat("r", 201))
	assert.ErrorIs(t, err, ErrInvalidReason)
	_, err = l.RequestAccess(l.TxFor(doctor), 1, strings.Repeat("r", 200))
	assert.NoError(t, err)
}

func TestSupersededRequest(t *testing.T) {
	l, clock, _ := setup(t)

	first, err := l.RequestAccess(l.TxFor(doctor), 1, "consult")
	require.NoError(t, err)
	_, err = l.GrantAccess(l.TxFor(patient), first, "k1", 1)
	require.NoError(t, err)
	clock.Advance(48 * time.Hour)

	// Lapsed grant: a fresh request is allowed and takes over the pair.
	second, err := l.RequestAccess(l.TxFor(doctor), 1, "follow-up")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	g, err := l.GetAccessFor(1, doctor)
	require.NoError(t, err)
	assert.Equal(t, second, g.ID)

	old, err := l.GetAccess(first)
	require.NoError(t, err)
	assert.Equal(t, Digest("k1"), old.WrappedKeyDigest)

	// An unanswered request can also be superseded; only the newest is pending.
	third, err := l.RequestAccess(l.TxFor(doctor), 1, "urgent")
	require.NoError(t, err)
	pending := l.GetPendingRequests(patient)
	require.Len(t, pending, 1)
	assert.Equal(t, third, pending[0].ID)

	_, err = l.GrantAccess(l.TxFor(patient), second, "k2", 10)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.True(t, l.IsSuperseded(first))
	assert.True(t, l.IsSuperseded(second))
	assert.False(t, l.IsSuperseded(third))
	assert.False(t, l.IsSuperseded(99))
	_, err = l.GrantAccess(l.TxFor(patient), third, "k3", 10)
	require.NoError(t, err)

	assert.Equal(t, []RecordID{1}, l.GetDoctorAccessibleRecords(doctor))
	key, err := l.GetEncryptedKeyDigest(doctor, 1)
	require.NoError(t, err)
	assert.Equal(t, Digest("k3"), key)
}

func TestSuspendedDoctorLosesKeyAccess(t *testing.T) {
	l, _, _ := setup(t)
	accessID, err := l.RequestAccess(l.TxFor(doctor), 1, "consult")
	require.NoError(t, err)
	_, err = l.GrantAccess(l.TxFor(patient), accessID, "key-for-d", 30)
	require.NoError(t, err)

	_, err = l.SuspendDoctor(l.TxFor(admin), doctor, "license lapsed")
	require.NoError(t, err)
	require.False(t, l.IsVerifiedDoctor(doctor))

	_, err = l.GetEncryptedKeyDigest(doctor, 1)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, l.GetDoctorAccessibleRecords(doctor))
	// The stored grant itself is untouched; only its use is gated.
	assert.True(t, l.HasActiveAccess(1, doctor))
}

func TestGetEncryptedKeyDigestRequiresPair(t *testing.T) {
	l, _, _ := setup(t)
	_, err := l.GetEncryptedKeyDigest(doctor, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.RequestAccess(l.TxFor(doctor), 1, "consult")
	require.NoError(t, err)
	_, err = l.GetEncryptedKeyDigest(doctor, 1)
	assert.ErrorIs(t, err, ErrNotGranted)
	_, err = l.GetEncryptedKeyDigest(other, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLazyViewsReflectLaterState(t *testing.T) {
	l, _, _ := setup(t)
	seq := l.ActivePatientRecords(patient)
	assert.Equal(t, []RecordID{1}, slices.Collect(seq))

	_, err := l.AddRecord(l.TxFor(patient), sampleRecord(patient))
	require.NoError(t, err)
	require.NoError(t, l.DeactivateRecord(l.TxFor(patient), 1))

	// The same sequence value is restartable and observes current state.
	assert.Equal(t, []RecordID{2}, slices.Collect(seq))

	for id := range l.ActivePatientRecords(patient) {
		// Mutating while ranging must not deadlock.
		require.NoError(t, l.DeactivateRecord(l.TxFor(patient), id))
	}
	assert.Empty(t, l.GetActivePatientRecordIDs(patient))
}

func TestRejectedMutationHasNoSideEffects(t *testing.T) {
	l, _, rec := setup(t)
	auditBefore := l.AuditLen()
	eventsBefore := len(rec.kinds())

	_, err := l.AddRecord(l.TxFor(patient), NewRecord{Owner: patient})
	require.Error(t, err)
	_, err = l.RequestAccess(l.TxFor(patient), 1, "self")
	require.Error(t, err)

	assert.Equal(t, auditBefore, l.AuditLen())
	assert.Len(t, rec.kinds(), eventsBefore)
	assert.Equal(t, uint64(1), l.GetTotalRecords())
}

func TestAuditTrailAndEvents(t *testing.T) {
	l, _, rec := setup(t)
	accessID, err := l.RequestAccess(l.TxFor(doctor), 1, "consult")
	require.NoError(t, err)
	_, err = l.GrantAccess(l.TxFor(patient), accessID, "key-for-d", 30)
	require.NoError(t, err)

	all := l.AuditEvents(0, 0)
	require.Len(t, all, 6)
	wantActions := []AuditAction{
		AuditPatientRegistered, AuditDoctorRegistered, AuditDoctorVerified,
		AuditRecordAdded, AuditAccessRequested, AuditAccessGranted,
	}
	for i, ev := range all {
		assert.Equal(t, uint64(i+1), ev.Seq)
		assert.Equal(t, wantActions[i], ev.Action)
		assert.Len(t, string(ev.DetailsDigest), 64)
	}
	assert.Equal(t, RecordID(1), all[3].RecordID)
	assert.Equal(t, NoRecord, all[0].RecordID)

	page := l.AuditEvents(4, 1)
	require.Len(t, page, 1)
	assert.Equal(t, uint64(5), page[0].Seq)
	assert.Empty(t, l.AuditEvents(6, 10))

	kinds := rec.kinds()
	assert.Equal(t, []events.Kind{
		events.KindPatientRegistered, events.KindAudit,
		events.KindDoctorRegistered, events.KindAudit,
		events.KindDoctorStatusChanged, events.KindAudit,
		events.KindRecordAdded, events.KindAudit,
		events.KindAccessRequested, events.KindAudit,
		events.KindAccessGranted, events.KindAudit,
	}, kinds)
}

func TestConcurrentRequestsSerialize(t *testing.T) {
	l, _, _ := setup(t)
	for i := 0; i < 20; i++ {
		_, err := l.AddRecord(l.TxFor(patient), sampleRecord(patient))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	ids := make([]AccessID, 21)
	for i := 1; i <= 21; i++ {
		wg.Add(1)
		go func(id RecordID) {
			defer wg.Done()
			a, err := l.RequestAccess(l.TxFor(doctor), id, "batch")
			if err == nil {
				ids[id-1] = a
			}
		}(RecordID(i))
	}
	wg.Wait()

	seen := map[AccessID]bool{}
	for _, a := range ids {
		assert.NotZero(t, a)
		assert.False(t, seen[a], "duplicate access id %d", a)
		seen[a] = true
	}
	assert.Len(t, l.GetPendingRequests(patient), 21)
}

func TestCodes(t *testing.T) {
	assert.Equal(t, "EmptyDigest", Code(ErrEmptyDigest))
	assert.Equal(t, "Unauthorized", Code(ErrUnauthorized))
	assert.Equal(t, "", Code(context.Canceled))
	assert.Equal(t, "", Code(nil))

	for _, c := range codes {
		got, ok := FromCode(c.code)
		require.True(t, ok, c.code)
		assert.Equal(t, c.code, Code(got))
	}
	_, ok := FromCode("Bogus")
	assert.False(t, ok)
}

func TestEnumText(t *testing.T) {
	var rt RecordType
	require.NoError(t, rt.UnmarshalText([]byte("Imaging")))
	assert.Equal(t, RecordImaging, rt)
	assert.ErrorIs(t, rt.UnmarshalText([]byte("X-Ray")), ErrInvalidRecordType)
	assert.ErrorIs(t, rt.UnmarshalText([]byte("")), ErrInvalidRecordType)
	assert.False(t, RecordType(0).Valid())
	assert.Equal(t, "Unknown", RecordType(0).String())

	var in NewRecord
	require.NoError(t, json.Unmarshal([]byte(`{"owner":"p","payload_digest":"a"}`), &in))
	assert.False(t, in.Type.Valid(), "an omitted type must not default to a real type")

	var st AccessStatus
	require.NoError(t, st.UnmarshalText([]byte("Revoked")))
	assert.Equal(t, AccessRevoked, st)

	b, err := StatusVerified.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Verified", string(b))
}
