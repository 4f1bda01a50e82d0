package care

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/Rawan567/blood-diagnosis-api/internal/platform/auth"
)

type linkKey struct {
	doctorID  int64
	patientID int64
}

type mockRepo struct {
	accounts map[int64]*AccountState
	links    map[linkKey]bool
	owners   map[int64]*int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		accounts: make(map[int64]*AccountState),
		links:    make(map[linkKey]bool),
		owners:   make(map[int64]*int64),
	}
}

func (m *mockRepo) addAccount(id int64, role string, active bool, fname, lname string) {
	m.accounts[id] = &AccountState{ID: id, Role: role, Active: active, FName: fname, LName: lname}
}

func (m *mockRepo) Link(_ context.Context, doctorID, patientID int64) (bool, error) {
	k := linkKey{doctorID, patientID}
	if m.links[k] {
		return false, nil
	}
	m.links[k] = true
	return true, nil
}

func (m *mockRepo) Unlink(_ context.Context, doctorID, patientID int64) (bool, error) {
	k := linkKey{doctorID, patientID}
	if !m.links[k] {
		return false, nil
	}
	delete(m.links, k)
	return true, nil
}

func (m *mockRepo) UnlinkAll(_ context.Context, patientID int64) (int64, error) {
	var n int64
	for k := range m.links {
		if k.patientID == patientID {
			delete(m.links, k)
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) IsLinked(_ context.Context, doctorID, patientID int64) (bool, error) {
	return m.links[linkKey{doctorID, patientID}], nil
}

func (m *mockRepo) DoctorsOfPatient(_ context.Context, patientID int64) ([]*LinkedDoctor, error) {
	var ids []int64
	for k := range m.links {
		if k.patientID == patientID {
			ids = append(ids, k.doctorID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var doctors []*LinkedDoctor
	for _, id := range ids {
		d := &LinkedDoctor{ID: id, Specialization: "General", LicenseNumber: "N/A"}
		if a, ok := m.accounts[id]; ok {
			d.FName = a.FName
			d.LName = a.LName
		}
		doctors = append(doctors, d)
	}
	return doctors, nil
}

func (m *mockRepo) Roster(_ context.Context, doctorID int64, f RosterFilter) ([]*PatientCard, error) {
	var cards []*PatientCard
	for _, a := range m.accounts {
		if a.Role != "patient" {
			continue
		}
		cards = append(cards, &PatientCard{
			ID:     a.ID,
			FName:  a.FName,
			LName:  a.LName,
			Linked: m.links[linkKey{doctorID, a.ID}],
		})
	}
	return cards, nil
}

func (m *mockRepo) AccountState(_ context.Context, userID int64) (*AccountState, error) {
	return m.accounts[userID], nil
}

func (m *mockRepo) HistoryRecordOwner(_ context.Context, recordID int64) (*int64, bool, error) {
	owner, ok := m.owners[recordID]
	if !ok {
		return nil, false, nil
	}
	return owner, true, nil
}

func principal(id int64, role string, active bool) *auth.Principal {
	return &auth.Principal{ID: id, Role: role, Active: active}
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	repo.addAccount(1, "admin", true, "Ada", "Admin")
	repo.addAccount(10, "doctor", true, "Gregory", "House")
	repo.addAccount(11, "doctor", true, "James", "Wilson")
	repo.addAccount(20, "patient", true, "John", "Doe")
	repo.addAccount(21, "patient", true, "Jane", "Roe")
	return NewService(repo), repo
}

func TestLinkPatient(t *testing.T) {
	svc, repo := newTestService()

	res, err := svc.LinkPatient(context.Background(), 10, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Created {
		t.Error("expected link to be created")
	}
	if res.Patient.FullName() != "John Doe" {
		t.Errorf("expected John Doe, got %s", res.Patient.FullName())
	}
	if !repo.links[linkKey{10, 20}] {
		t.Error("expected link row")
	}
}

func TestLinkPatient_AlreadyMine(t *testing.T) {
	svc, repo := newTestService()
	repo.links[linkKey{10, 20}] = true

	res, err := svc.LinkPatient(context.Background(), 10, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.AlreadyMine {
		t.Error("expected AlreadyMine")
	}
	if res.Created {
		t.Error("expected no new link")
	}
}

func TestLinkPatient_ClaimedByOtherDoctor(t *testing.T) {
	svc, repo := newTestService()
	repo.links[linkKey{11, 20}] = true

	res, err := svc.LinkPatient(context.Background(), 10, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.OtherDoctor == nil {
		t.Fatal("expected holder to be reported")
	}
	if res.OtherDoctor.Name() != "Dr. James Wilson" {
		t.Errorf("expected Dr. James Wilson, got %s", res.OtherDoctor.Name())
	}
	if repo.links[linkKey{10, 20}] {
		t.Error("expected no link for the second doctor")
	}
}

func TestLinkPatient_NotFound(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.LinkPatient(context.Background(), 10, 999); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
	// Doctors are not linkable targets.
	if _, err := svc.LinkPatient(context.Background(), 10, 11); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound for doctor target, got %v", err)
	}
}

func TestUnlinkPatient(t *testing.T) {
	svc, repo := newTestService()
	repo.links[linkKey{10, 20}] = true

	removed, patient, err := svc.UnlinkPatient(context.Background(), 10, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !removed {
		t.Error("expected link to be removed")
	}
	if patient.FullName() != "John Doe" {
		t.Errorf("expected John Doe, got %s", patient.FullName())
	}

	removed, _, err = svc.UnlinkPatient(context.Background(), 10, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed {
		t.Error("expected second unlink to be a no-op")
	}
}

func TestUnlinkFromDoctors(t *testing.T) {
	svc, repo := newTestService()

	doctor, err := svc.UnlinkFromDoctors(context.Background(), 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doctor != nil {
		t.Error("expected nil when no link exists")
	}

	repo.links[linkKey{10, 20}] = true
	doctor, err = svc.UnlinkFromDoctors(context.Background(), 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doctor == nil || doctor.Name() != "Dr. Gregory House" {
		t.Fatalf("expected Dr. Gregory House, got %+v", doctor)
	}
	if len(repo.links) != 0 {
		t.Error("expected all links removed")
	}
}

func TestCanViewPatient(t *testing.T) {
	svc, repo := newTestService()
	repo.links[linkKey{10, 20}] = true

	cases := []struct {
		name    string
		p       *auth.Principal
		patient int64
		allowed bool
		reason  string
	}{
		{"admin sees anyone", principal(1, "admin", true), 20, true, ""},
		{"patient sees self", principal(20, "patient", true), 20, true, ""},
		{"patient blocked from others", principal(20, "patient", true), 21, false, ReasonUnauthorized},
		{"linked doctor allowed", principal(10, "doctor", true), 20, true, ""},
		{"unlinked doctor blocked", principal(11, "doctor", true), 20, false, ReasonNotLinked},
		{"deactivated requester", principal(10, "doctor", false), 20, false, ReasonDeactivated},
		{"missing patient", principal(1, "admin", true), 999, false, ReasonPatientNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := svc.CanViewPatient(context.Background(), tc.p, tc.patient)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Allowed != tc.allowed {
				t.Errorf("allowed = %v, want %v", d.Allowed, tc.allowed)
			}
			if d.Reason != tc.reason {
				t.Errorf("reason = %q, want %q", d.Reason, tc.reason)
			}
		})
	}
}

func TestCanViewPatient_DeactivatedPatient(t *testing.T) {
	svc, repo := newTestService()
	repo.addAccount(22, "patient", false, "Off", "Line")

	d, err := svc.CanViewPatient(context.Background(), principal(1, "admin", true), 22)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed || d.Reason != ReasonDeactivatedPatient {
		t.Errorf("expected deactivated_patient, got %+v", d)
	}
}

func TestCanAddDiagnosis(t *testing.T) {
	svc, repo := newTestService()
	repo.links[linkKey{10, 20}] = true

	d, _ := svc.CanAddDiagnosis(context.Background(), principal(20, "patient", true), 20)
	if d.Allowed || d.Reason != ReasonUnauthorized {
		t.Errorf("patients must not add diagnoses, got %+v", d)
	}

	d, _ = svc.CanAddDiagnosis(context.Background(), principal(1, "admin", true), 21)
	if !d.Allowed {
		t.Errorf("admin may diagnose unlinked patients, got %+v", d)
	}

	d, _ = svc.CanAddDiagnosis(context.Background(), principal(10, "doctor", true), 20)
	if !d.Allowed {
		t.Errorf("linked doctor may diagnose, got %+v", d)
	}

	d, _ = svc.CanAddDiagnosis(context.Background(), principal(11, "doctor", true), 20)
	if d.Allowed || d.Reason != ReasonNotLinked {
		t.Errorf("unlinked doctor must be blocked, got %+v", d)
	}
}

func TestCanModifyDiagnosis(t *testing.T) {
	svc, repo := newTestService()
	ten := int64(10)
	repo.owners[100] = &ten
	repo.owners[101] = nil

	d, _ := svc.CanModifyDiagnosis(context.Background(), principal(10, "doctor", true), 100)
	if !d.Allowed {
		t.Errorf("owner may modify, got %+v", d)
	}

	d, _ = svc.CanModifyDiagnosis(context.Background(), principal(11, "doctor", true), 100)
	if d.Allowed || d.Reason != ReasonNotOwner {
		t.Errorf("non-owner must be blocked, got %+v", d)
	}

	// Records whose author was removed stay admin-only.
	d, _ = svc.CanModifyDiagnosis(context.Background(), principal(10, "doctor", true), 101)
	if d.Allowed || d.Reason != ReasonNotOwner {
		t.Errorf("orphaned record must be blocked for doctors, got %+v", d)
	}

	d, _ = svc.CanModifyDiagnosis(context.Background(), principal(1, "admin", true), 101)
	if !d.Allowed {
		t.Errorf("admin may modify any record, got %+v", d)
	}

	d, _ = svc.CanModifyDiagnosis(context.Background(), principal(10, "doctor", true), 999)
	if d.Allowed || d.Reason != ReasonRecordNotFound {
		t.Errorf("missing record, got %+v", d)
	}
}

func TestCanUploadTest(t *testing.T) {
	svc, _ := newTestService()

	if d := svc.CanUploadTest(principal(10, "doctor", true)); !d.Allowed {
		t.Errorf("active doctor may upload, got %+v", d)
	}
	if d := svc.CanUploadTest(principal(20, "patient", false)); d.Allowed || d.Reason != ReasonDeactivated {
		t.Errorf("deactivated account must be blocked, got %+v", d)
	}
}

func TestCanManageUsers(t *testing.T) {
	svc, _ := newTestService()

	if d := svc.CanManageUsers(principal(1, "admin", true)); !d.Allowed {
		t.Errorf("admin manages users, got %+v", d)
	}
	if d := svc.CanManageUsers(principal(10, "doctor", true)); d.Allowed || d.Reason != ReasonUnauthorized {
		t.Errorf("doctor must be blocked, got %+v", d)
	}
}
