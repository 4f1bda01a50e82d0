// Package stats assembles the role dashboards: system-wide totals and
// chart series for admins, the review worklist for doctors, and the
// per-patient summary.
package stats

import (
	"github.com/Rawan567/blood-diagnosis-api/internal/domain/history"
	"github.com/Rawan567/blood-diagnosis-api/internal/domain/medtest"
	"github.com/Rawan567/blood-diagnosis-api/internal/domain/message"
)

// TrendPoint is one day of the registration chart. Date is preformatted
// "MM/DD" because the chart labels use it verbatim.
type TrendPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// LabelCount is one slice of a distribution chart.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// UserCounts carries the account totals of the admin overview.
// NewLast30Days counts registrations inside the trailing 30 days.
type UserCounts struct {
	Total         int
	Admins        int
	Doctors       int
	Patients      int
	NewLast30Days int
}

// RecentUser is one row of the latest-registrations card.
type RecentUser struct {
	Initials string
	Name     string
	Role     string
	Date     string
}

type AdminOverview struct {
	Users          UserCounts
	TotalTests     int
	TotalMessages  int
	UnreadMessages int

	RegistrationTrend     []TrendPoint
	RoleDistribution      []LabelCount
	GenderDistribution    []LabelCount
	BloodTypeDistribution []LabelCount

	RecentUsers    []RecentUser
	RecentMessages []*message.Message
}

// RecentPatient is one row of the doctor dashboard's patient card.
type RecentPatient struct {
	ID        int64
	Initials  string
	Name      string
	LastVisit string
	Status    string
}

type DoctorOverview struct {
	TotalPatients  int
	PendingReports int
	ReviewRequests int
	CompletedToday int

	RequestList    []*medtest.ReviewRequest
	PendingList    []*medtest.Report
	RecentTests    []*medtest.Report
	RecentPatients []RecentPatient
}

type PatientOverview struct {
	TotalTests     int
	TotalRecords   int
	PendingResults int
	// LastTestDate is preformatted, "N/A" when the patient has no tests.
	LastTestDate string

	RecentTests []*medtest.Report
	History     []*history.Entry
}
