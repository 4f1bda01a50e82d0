package stats

import (
	"context"
	"strings"
	"time"

	"github.com/Rawan567/blood-diagnosis-api/internal/domain/history"
	"github.com/Rawan567/blood-diagnosis-api/internal/domain/medtest"
)

// Service composes the dashboard aggregates. It reads the other
// domains' repositories directly; dashboards are a read-only view.
type Service struct {
	stats   Repository
	tests   medtest.Repository
	records history.Repository
}

func NewService(stats Repository, tests medtest.Repository, records history.Repository) *Service {
	return &Service{stats: stats, tests: tests, records: records}
}

const recentLimit = 5

// AdminDashboard builds the system overview: totals, the 7-day
// registration trend, the three distribution charts and the recency
// cards.
func (s *Service) AdminDashboard(ctx context.Context) (*AdminOverview, error) {
	o := &AdminOverview{}

	users, err := s.stats.UserCounts(ctx)
	if err != nil {
		return nil, err
	}
	o.Users = *users

	if o.TotalTests, err = s.stats.CountTests(ctx); err != nil {
		return nil, err
	}
	if o.TotalMessages, o.UnreadMessages, err = s.stats.MessageCounts(ctx); err != nil {
		return nil, err
	}

	if o.RegistrationTrend, err = s.registrationTrend(ctx); err != nil {
		return nil, err
	}
	o.RoleDistribution = []LabelCount{
		{Label: "admin", Count: users.Admins},
		{Label: "doctor", Count: users.Doctors},
		{Label: "patient", Count: users.Patients},
	}
	if o.GenderDistribution, err = s.stats.GenderDistribution(ctx); err != nil {
		return nil, err
	}
	if o.BloodTypeDistribution, err = s.stats.BloodTypeDistribution(ctx); err != nil {
		return nil, err
	}

	recent, err := s.stats.RecentUsers(ctx, recentLimit)
	if err != nil {
		return nil, err
	}
	o.RecentUsers = make([]RecentUser, 0, len(recent))
	for _, u := range recent {
		o.RecentUsers = append(o.RecentUsers, RecentUser{
			Initials: u.Initials(),
			Name:     u.FullName(),
			Role:     capitalize(u.Role),
			Date:     u.CreatedAt.Format("2006-01-02"),
		})
	}

	if o.RecentMessages, err = s.stats.RecentMessages(ctx, recentLimit); err != nil {
		return nil, err
	}
	return o, nil
}

// registrationTrend covers the trailing seven days, oldest first, with
// zero-filled gaps so the chart always has seven points.
func (s *Service) registrationTrend(ctx context.Context) ([]TrendPoint, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -6)

	counts, err := s.stats.RegistrationsByDay(ctx, since)
	if err != nil {
		return nil, err
	}
	byDay := make(map[string]int, len(counts))
	for _, c := range counts {
		byDay[c.Day.Format("2006-01-02")] = c.Count
	}

	trend := make([]TrendPoint, 0, 7)
	for d := since; !d.After(today); d = d.AddDate(0, 0, 1) {
		trend = append(trend, TrendPoint{
			Date:  d.Format("01/02"),
			Count: byDay[d.Format("2006-01-02")],
		})
	}
	return trend, nil
}

// DoctorDashboard builds the worklist view for one doctor: linked
// patient totals, pending reviews, incoming review requests and the
// recent activity cards. CompletedToday is not tracked yet and stays
// zero.
func (s *Service) DoctorDashboard(ctx context.Context, doctorID int64) (*DoctorOverview, error) {
	o := &DoctorOverview{}
	var err error

	if o.TotalPatients, err = s.stats.CountLinkedActivePatients(ctx, doctorID); err != nil {
		return nil, err
	}
	if o.PendingReports, err = s.tests.CountPendingForDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	if o.ReviewRequests, err = s.tests.CountReviewRequestsForDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	if o.RequestList, err = s.tests.ReviewRequestsForDoctor(ctx, doctorID, recentLimit); err != nil {
		return nil, err
	}
	if o.PendingList, err = s.tests.PendingForDoctor(ctx, doctorID, recentLimit); err != nil {
		return nil, err
	}
	if o.RecentTests, err = s.tests.ReviewedByDoctor(ctx, doctorID, recentLimit); err != nil {
		return nil, err
	}

	patients, err := s.stats.RecentLinkedPatients(ctx, doctorID, recentLimit)
	if err != nil {
		return nil, err
	}
	o.RecentPatients = make([]RecentPatient, 0, len(patients))
	for _, p := range patients {
		o.RecentPatients = append(o.RecentPatients, RecentPatient{
			ID:        p.ID,
			Initials:  p.Initials(),
			Name:      p.FullName(),
			LastVisit: p.CreatedAt.Format("2006-01-02"),
			Status:    "Normal",
		})
	}
	return o, nil
}

// PatientDashboard builds the summary for one patient's landing page.
func (s *Service) PatientDashboard(ctx context.Context, patientID int64) (*PatientOverview, error) {
	o := &PatientOverview{LastTestDate: "N/A"}
	var err error

	if o.TotalTests, err = s.tests.CountByPatient(ctx, patientID); err != nil {
		return nil, err
	}
	if o.PendingResults, err = s.tests.CountPendingByPatient(ctx, patientID); err != nil {
		return nil, err
	}
	if o.RecentTests, err = s.tests.RecentByPatient(ctx, patientID, recentLimit); err != nil {
		return nil, err
	}
	if len(o.RecentTests) > 0 {
		o.LastTestDate = o.RecentTests[0].Test.CreatedAt.Format("Jan 02, 2006")
	}

	entries, err := s.records.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	o.TotalRecords = len(entries)
	if len(entries) > 3 {
		entries = entries[:3]
	}
	o.History = entries
	return o, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
