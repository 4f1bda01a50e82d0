package history

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Rawan567/blood-diagnosis-api/internal/domain/care"
	"github.com/Rawan567/blood-diagnosis-api/internal/platform/auth"
)

type linkKey struct {
	doctorID  int64
	patientID int64
}

// storeStub backs both the record repository and the slice of the care
// repository the policy checks read, so record ownership stays in sync.
type storeStub struct {
	care.Repository

	accounts map[int64]*care.AccountState
	links    map[linkKey]bool
	records  map[int64]*MedicalHistory
	nextID   int64
}

func newStoreStub() *storeStub {
	return &storeStub{
		accounts: make(map[int64]*care.AccountState),
		links:    make(map[linkKey]bool),
		records:  make(map[int64]*MedicalHistory),
	}
}

func (s *storeStub) addAccount(id int64, role string, active bool, fname, lname string) {
	s.accounts[id] = &care.AccountState{ID: id, Role: role, Active: active, FName: fname, LName: lname}
}

func (s *storeStub) addRecord(patientID int64, doctorID *int64, condition string) *MedicalHistory {
	s.nextID++
	rec := &MedicalHistory{
		ID:        s.nextID,
		PatientID: patientID,
		DoctorID:  doctorID,
		Condition: condition,
		CreatedAt: time.Now(),
	}
	s.records[rec.ID] = rec
	return rec
}

func (s *storeStub) AccountState(_ context.Context, userID int64) (*care.AccountState, error) {
	return s.accounts[userID], nil
}

func (s *storeStub) IsLinked(_ context.Context, doctorID, patientID int64) (bool, error) {
	return s.links[linkKey{doctorID, patientID}], nil
}

func (s *storeStub) HistoryRecordOwner(_ context.Context, recordID int64) (*int64, bool, error) {
	rec, ok := s.records[recordID]
	if !ok {
		return nil, false, nil
	}
	return rec.DoctorID, true, nil
}

func (s *storeStub) Create(_ context.Context, rec *MedicalHistory) error {
	s.nextID++
	rec.ID = s.nextID
	rec.CreatedAt = time.Now()
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *storeStub) GetByID(_ context.Context, id int64) (*MedicalHistory, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *rec
	return &cp, nil
}

func (s *storeStub) Update(_ context.Context, rec *MedicalHistory) error {
	if _, ok := s.records[rec.ID]; !ok {
		return pgx.ErrNoRows
	}
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *storeStub) Delete(_ context.Context, id int64) error {
	delete(s.records, id)
	return nil
}

func (s *storeStub) ListByPatient(_ context.Context, patientID int64) ([]*Entry, error) {
	var ids []int64
	for id, rec := range s.records {
		if rec.PatientID == patientID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	var entries []*Entry
	for _, id := range ids {
		e := &Entry{MedicalHistory: *s.records[id]}
		if e.DoctorID != nil {
			if a, ok := s.accounts[*e.DoctorID]; ok {
				e.DoctorFName = &a.FName
				e.DoctorLName = &a.LName
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// newTestService seeds an admin, two doctors and two patients, with
// Dr. House holding the link to John.
func newTestService() (*Service, *storeStub) {
	store := newStoreStub()
	store.addAccount(1, "admin", true, "Ada", "Admin")
	store.addAccount(10, "doctor", true, "Gregory", "House")
	store.addAccount(11, "doctor", true, "James", "Wilson")
	store.addAccount(20, "patient", true, "John", "Doe")
	store.addAccount(21, "patient", true, "Jane", "Roe")
	store.addAccount(22, "patient", false, "Rick", "Deckard")
	store.links[linkKey{10, 20}] = true

	svc := NewService(store, care.NewService(store))
	return svc, store
}

func principal(id int64, role string, active bool) *auth.Principal {
	return &auth.Principal{ID: id, Role: role, Active: active}
}

func ptr(v int64) *int64 { return &v }

func TestCreateDiagnosis(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	rec, err := svc.Create(ctx, principal(10, "doctor", true), 20, DiagnosisForm{
		Condition: "Iron deficiency anemia",
		Treatment: "Ferrous sulfate 325mg daily",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.ID == 0 {
		t.Fatal("expected an assigned record id")
	}
	if rec.DoctorID == nil || *rec.DoctorID != 10 {
		t.Fatalf("doctor id = %v, want 10", rec.DoctorID)
	}
	if rec.Treatment == nil || *rec.Treatment != "Ferrous sulfate 325mg daily" {
		t.Fatalf("treatment = %v", rec.Treatment)
	}
	if rec.Notes != nil {
		t.Fatalf("blank notes should store NULL, got %q", *rec.Notes)
	}
	if _, ok := store.records[rec.ID]; !ok {
		t.Fatal("record not persisted")
	}
}

func TestCreateDiagnosis_AdminWithoutLink(t *testing.T) {
	svc, _ := newTestService()

	rec, err := svc.Create(context.Background(), principal(1, "admin", true), 21, DiagnosisForm{
		Condition: "Thrombocytopenia",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.DoctorID == nil || *rec.DoctorID != 1 {
		t.Fatalf("doctor id = %v, want the admin author", rec.DoctorID)
	}
}

func TestCreateDiagnosis_Denials(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []struct {
		name      string
		principal *auth.Principal
		patientID int64
		want      error
	}{
		{"deactivated doctor", principal(10, "doctor", false), 20, ErrAccountDeactivated},
		{"deactivated patient", principal(10, "doctor", true), 22, ErrPatientDeactivated},
		{"missing patient", principal(10, "doctor", true), 99, ErrPatientNotFound},
		{"target is a doctor", principal(10, "doctor", true), 11, ErrPatientNotFound},
		{"not linked", principal(11, "doctor", true), 20, ErrNotLinked},
		{"patient author", principal(20, "patient", true), 20, ErrCannotAdd},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.principal, tc.patientID, DiagnosisForm{Condition: "Anemia"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestUpdateDiagnosis_PartialMerge(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	rec := store.addRecord(20, ptr(10), "Anemia")
	rec.Treatment = strPtr("Iron supplements")
	rec.Notes = strPtr("Follow up in two weeks")

	pid, err := svc.Update(ctx, principal(10, "doctor", true), rec.ID, DiagnosisForm{
		Condition: "Iron deficiency anemia",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pid != 20 {
		t.Fatalf("patient id = %d, want 20", pid)
	}

	got := store.records[rec.ID]
	if got.Condition != "Iron deficiency anemia" {
		t.Fatalf("condition = %q", got.Condition)
	}
	if got.Treatment == nil || *got.Treatment != "Iron supplements" {
		t.Fatalf("blank treatment must keep the stored value, got %v", got.Treatment)
	}
	if got.Notes == nil || *got.Notes != "Follow up in two weeks" {
		t.Fatalf("blank notes must keep the stored value, got %v", got.Notes)
	}
}

func TestUpdateDiagnosis_NotOwner(t *testing.T) {
	svc, store := newTestService()
	rec := store.addRecord(20, ptr(10), "Anemia")

	pid, err := svc.Update(context.Background(), principal(11, "doctor", true), rec.ID, DiagnosisForm{Condition: "Changed"})
	if !errors.Is(err, ErrUpdateNotOwner) {
		t.Fatalf("error = %v, want %v", err, ErrUpdateNotOwner)
	}
	if pid != 20 {
		t.Fatalf("denials still report the patient for the redirect, got %d", pid)
	}
	if store.records[rec.ID].Condition != "Anemia" {
		t.Fatal("record must not change on denial")
	}
}

func TestUpdateDiagnosis_OrphanedRecord(t *testing.T) {
	svc, store := newTestService()
	rec := store.addRecord(20, nil, "Anemia")

	_, err := svc.Update(context.Background(), principal(10, "doctor", true), rec.ID, DiagnosisForm{Condition: "Changed"})
	if !errors.Is(err, ErrUpdateNotOwner) {
		t.Fatalf("error = %v, want %v", err, ErrUpdateNotOwner)
	}
}

func TestUpdateDiagnosis_AdminOverride(t *testing.T) {
	svc, store := newTestService()
	rec := store.addRecord(20, ptr(10), "Anemia")

	pid, err := svc.Update(context.Background(), principal(1, "admin", true), rec.ID, DiagnosisForm{Notes: "Verified by admin"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pid != 20 {
		t.Fatalf("patient id = %d, want 20", pid)
	}
	got := store.records[rec.ID]
	if got.Notes == nil || *got.Notes != "Verified by admin" {
		t.Fatalf("notes = %v", got.Notes)
	}
}

func TestUpdateDiagnosis_Missing(t *testing.T) {
	svc, _ := newTestService()

	pid, err := svc.Update(context.Background(), principal(10, "doctor", true), 999, DiagnosisForm{Condition: "X"})
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("error = %v, want %v", err, ErrRecordNotFound)
	}
	if pid != 0 {
		t.Fatalf("patient id = %d, want 0 for a missing record", pid)
	}
}

func TestDeleteDiagnosis(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()
	rec := store.addRecord(20, ptr(10), "Anemia")

	pid, err := svc.Delete(ctx, principal(10, "doctor", true), rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pid != 20 {
		t.Fatalf("patient id = %d, want 20", pid)
	}
	if _, ok := store.records[rec.ID]; ok {
		t.Fatal("record still present after delete")
	}
}

func TestDeleteDiagnosis_NotOwner(t *testing.T) {
	svc, store := newTestService()
	rec := store.addRecord(20, ptr(10), "Anemia")

	_, err := svc.Delete(context.Background(), principal(11, "doctor", true), rec.ID)
	if !errors.Is(err, ErrDeleteNotOwner) {
		t.Fatalf("error = %v, want %v", err, ErrDeleteNotOwner)
	}
	if _, ok := store.records[rec.ID]; !ok {
		t.Fatal("record must survive a denied delete")
	}

	_, err = svc.Delete(context.Background(), principal(11, "doctor", true), 999)
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("error = %v, want %v", err, ErrRecordNotFound)
	}
}

func TestListForPatient(t *testing.T) {
	svc, store := newTestService()
	store.addRecord(20, ptr(10), "Anemia")
	store.addRecord(20, nil, "Leukocytosis")
	store.addRecord(21, ptr(10), "Thrombocytopenia")

	entries, err := svc.ListForPatient(context.Background(), 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Condition != "Leukocytosis" {
		t.Fatalf("expected newest first, got %q", entries[0].Condition)
	}
	if got := entries[0].DoctorName(); got != "Unknown" {
		t.Fatalf("orphaned record author = %q, want Unknown", got)
	}
	if got := entries[1].DoctorName(); got != "Dr. Gregory House" {
		t.Fatalf("author = %q", got)
	}
}

func strPtr(v string) *string { return &v }
