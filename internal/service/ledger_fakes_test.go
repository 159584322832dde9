package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-ledger-api/internal/dto"
	"github.com/noah-isme/tuition-ledger-api/internal/models"
	"github.com/noah-isme/tuition-ledger-api/pkg/clock"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

// fakeStore keeps rows in memory and mirrors the unique indexes of the schema.
// Writes ignore the transaction handle.
type fakeStore struct {
	mu          sync.Mutex
	seq         int
	students    map[string]*models.Student
	sessions    map[string]*models.Session
	enrollments map[string]*models.Enrollment
	entries     map[string]*models.LedgerEntry
	failExpiry  map[string]error
	failInsert  map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		students:    map[string]*models.Student{},
		sessions:    map[string]*models.Session{},
		enrollments: map[string]*models.Enrollment{},
		entries:     map[string]*models.LedgerEntry{},
		failExpiry:  map[string]error{},
		failInsert:  map[string]error{},
	}
}

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s-%d", prefix, f.seq)
}

func (f *fakeStore) addStudent(s models.Student) *models.Student {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.Status == "" {
		s.Status = models.StudentStatusActive
	}
	f.students[s.ID] = &s
	return &s
}

func (f *fakeStore) addSession(s models.Session) *models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = &s
	return &s
}

func (f *fakeStore) addEnrollment(e models.Enrollment) *models.Enrollment {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrollments[e.ID] = &e
	return &e
}

func (f *fakeStore) addEntry(e models.LedgerEntry) *models.LedgerEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[e.ID] = &e
	return &e
}

func (f *fakeStore) student(id string) models.Student {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.students[id]
}

func (f *fakeStore) session(id string) models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.sessions[id]
}

func (f *fakeStore) enrollment(id string) models.Enrollment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.enrollments[id]
}

func (f *fakeStore) entriesOf(enrollmentID string) []models.LedgerEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range f.entries {
		if e.EnrollmentID == enrollmentID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (f *fakeStore) detail(e models.Enrollment) models.EnrollmentDetail {
	d := models.EnrollmentDetail{Enrollment: e}
	if st, ok := f.students[e.StudentID]; ok {
		d.StudentName = st.FullName
		d.StudentStatus = st.Status
	}
	if ss, ok := f.sessions[e.SessionID]; ok {
		d.SessionName = ss.Name
		d.SessionType = ss.Type
	}
	return d
}

func uniqueErr(constraint string) error {
	return &pq.Error{Code: "23505", Constraint: constraint}
}

type fakeStudents struct{ *fakeStore }

func (f fakeStudents) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Student
	for _, s := range f.students {
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(s.FullName), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, len(out), nil
}

func (f fakeStudents) FindByID(ctx context.Context, id string) (*models.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (f fakeStudents) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Student, error) {
	return f.FindByID(ctx, id)
}

func (f fakeStudents) Create(ctx context.Context, tx *sqlx.Tx, student *models.Student) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if student.ID == "" {
		student.ID = f.nextID("student")
	}
	cp := *student
	f.students[student.ID] = &cp
	return nil
}

func (f fakeStudents) UpdateStatus(ctx context.Context, tx *sqlx.Tx, id string, status models.StudentStatus, reason *models.InactiveReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Status = status
	s.InactiveReason = reason
	return nil
}

func (f fakeStudents) Delete(ctx context.Context, tx *sqlx.Tx, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.students[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.students, id)
	return nil
}

func (f fakeStudents) RollNoExists(ctx context.Context, tx *sqlx.Tx, rollNo string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.students {
		if s.RollNo != nil && *s.RollNo == rollNo {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeStudents) AssignRollNo(ctx context.Context, tx *sqlx.Tx, id, rollNo string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.students[id]
	if !ok || s.HasRollNo() {
		return false, nil
	}
	s.RollNo = &rollNo
	return true, nil
}

func (f fakeStudents) SetStatusMany(ctx context.Context, tx *sqlx.Tx, ids []string, status models.StudentStatus) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, id := range ids {
		if s, ok := f.students[id]; ok && s.Status != status {
			s.Status = status
			s.InactiveReason = nil
			n++
		}
	}
	return n, nil
}

func (f fakeStudents) NamesByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for _, id := range ids {
		if s, ok := f.students[id]; ok {
			out[id] = s.FullName
		}
	}
	return out, nil
}

func (f fakeStudents) CompleteExStudents(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, s := range f.students {
		if s.Status == models.StudentStatusCompleted {
			continue
		}
		count, open := 0, false
		for _, e := range f.enrollments {
			if e.StudentID != s.ID {
				continue
			}
			count++
			if f.sessions[e.SessionID].Status != models.SessionStatusCompleted {
				open = true
			}
		}
		if count > 0 && !open {
			s.Status = models.StudentStatusCompleted
			s.InactiveReason = nil
			names = append(names, s.FullName)
		}
	}
	sort.Strings(names)
	return names, nil
}

type fakeSessions struct{ *fakeStore }

func (f fakeSessions) List(ctx context.Context, status models.SessionStatus) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Session
	for _, s := range f.sessions {
		if status == "" || s.Status == status {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f fakeSessions) FindByID(ctx context.Context, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (f fakeSessions) FindByIDs(ctx context.Context, ids []string) (map[string]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]models.Session{}
	for _, id := range ids {
		if s, ok := f.sessions[id]; ok {
			out[id] = *s
		}
	}
	return out, nil
}

func (f fakeSessions) Create(ctx context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session.ID == "" {
		session.ID = f.nextID("session")
	}
	cp := *session
	f.sessions[session.ID] = &cp
	return nil
}

func (f fakeSessions) ListExpired(ctx context.Context, today time.Time) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Session
	for _, s := range f.sessions {
		if s.Status == models.SessionStatusActive && s.Expired(today) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeSessions) ListCompleted(ctx context.Context, ids []string) ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Session
	for _, s := range f.sessions {
		if s.Status != models.SessionStatusCompleted {
			continue
		}
		if len(ids) > 0 && !contains(ids, s.ID) {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeSessions) CompleteIfExpired(ctx context.Context, tx *sqlx.Tx, id string, today time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failExpiry[id]; err != nil {
		return false, err
	}
	s, ok := f.sessions[id]
	if !ok || s.Status != models.SessionStatusActive || !s.Expired(today) {
		return false, nil
	}
	s.Status = models.SessionStatusCompleted
	return true, nil
}

func (f fakeSessions) Reactivate(ctx context.Context, tx *sqlx.Tx, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Status != models.SessionStatusCompleted {
		return false, nil
	}
	s.Status = models.SessionStatusActive
	return true, nil
}

func (f fakeSessions) UpdateStatus(ctx context.Context, id string, status models.SessionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Status = status
	return nil
}

type fakeEnrollments struct{ *fakeStore }

func (f fakeEnrollments) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (f fakeEnrollments) LockByID(ctx context.Context, tx *sqlx.Tx, id string) (*models.Enrollment, error) {
	return f.FindByID(ctx, id)
}

func (f fakeEnrollments) ListByStudent(ctx context.Context, tx *sqlx.Tx, studentID string) ([]models.EnrollmentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EnrollmentDetail
	for _, e := range f.enrollments {
		if e.StudentID == studentID {
			out = append(out, f.detail(*e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].RegistrationDate, out[j].RegistrationDate
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (f fakeEnrollments) CountBySession(ctx context.Context, tx *sqlx.Tx, sessionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.enrollments {
		if e.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (f fakeEnrollments) activeConflict(e *models.Enrollment) bool {
	if e.Status != models.EnrollmentStatusActive {
		return false
	}
	for _, other := range f.enrollments {
		if other.ID != e.ID && other.StudentID == e.StudentID && other.Status == models.EnrollmentStatusActive {
			return true
		}
	}
	return false
}

func (f fakeEnrollments) Create(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if enrollment.ID == "" {
		enrollment.ID = f.nextID("enrollment")
	}
	if f.activeConflict(enrollment) {
		return uniqueErr("enrollments_one_active_per_student")
	}
	cp := *enrollment
	f.enrollments[enrollment.ID] = &cp
	return nil
}

func (f fakeEnrollments) Update(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.enrollments[enrollment.ID]; !ok {
		return sql.ErrNoRows
	}
	if f.activeConflict(enrollment) {
		return uniqueErr("enrollments_one_active_per_student")
	}
	cp := *enrollment
	f.enrollments[enrollment.ID] = &cp
	return nil
}

func (f fakeEnrollments) Delete(ctx context.Context, tx *sqlx.Tx, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.enrollments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.enrollments, id)
	return nil
}

func (f fakeEnrollments) DeleteByStudent(ctx context.Context, tx *sqlx.Tx, studentID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, e := range f.enrollments {
		if e.StudentID == studentID {
			delete(f.enrollments, id)
			n++
		}
	}
	return n, nil
}

func (f fakeEnrollments) CompleteActiveBySession(ctx context.Context, tx *sqlx.Tx, sessionID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, e := range f.enrollments {
		if e.SessionID == sessionID && e.Status == models.EnrollmentStatusActive {
			e.Status = models.EnrollmentStatusCompleted
			ids = append(ids, e.StudentID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f fakeEnrollments) ListCompletedBySession(ctx context.Context, sessionID string) ([]models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Enrollment
	for _, e := range f.enrollments {
		if e.SessionID == sessionID && e.Status == models.EnrollmentStatusCompleted {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeEnrollments) HasOtherActive(ctx context.Context, tx *sqlx.Tx, studentID, excludeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.enrollments {
		if e.StudentID == studentID && e.ID != excludeID && e.Status == models.EnrollmentStatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeEnrollments) Reactivate(ctx context.Context, tx *sqlx.Tx, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok || e.Status != models.EnrollmentStatusCompleted {
		return false, nil
	}
	e.Status = models.EnrollmentStatusActive
	return true, nil
}

func (f fakeEnrollments) ListActiveMonthly(ctx context.Context) ([]models.EnrollmentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EnrollmentDetail
	for _, e := range f.enrollments {
		s := f.sessions[e.SessionID]
		if e.Status == models.EnrollmentStatusActive && s.Type == models.SessionTypeMonthly {
			out = append(out, f.detail(*e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeEnrollments) ListOverdueCandidates(ctx context.Context, today time.Time) ([]models.EnrollmentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EnrollmentDetail
	for _, e := range f.enrollments {
		st := f.students[e.StudentID]
		if e.Status == models.EnrollmentStatusActive && st.Status == models.StudentStatusActive && e.DueDate != nil && e.DueDate.Before(today) {
			out = append(out, f.detail(*e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeEnrollments) ListByStudentIDs(ctx context.Context, studentIDs []string) ([]models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Enrollment
	for _, e := range f.enrollments {
		if contains(studentIDs, e.StudentID) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeEnrollments) SetNextMonthlyDue(ctx context.Context, tx *sqlx.Tx, id string, due time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.NextMonthlyDue = &due
	return nil
}

type fakeLedger struct{ *fakeStore }

func (f fakeLedger) Insert(ctx context.Context, tx *sqlx.Tx, entry *models.LedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failInsert[entry.EnrollmentID]; err != nil {
		return err
	}
	if entry.Amount.IsNegative() {
		return fmt.Errorf("amount must not be negative")
	}
	if entry.ID == "" {
		entry.ID = f.nextID("entry")
	}
	if entry.Amount.IsZero() {
		for _, e := range f.entries {
			if e.EnrollmentID == entry.EnrollmentID && e.Amount.IsZero() && e.Date.Equal(entry.Date) {
				return uniqueErr("ledger_entries_one_due_per_date")
			}
		}
	}
	cp := *entry
	f.entries[entry.ID] = &cp
	return nil
}

func (f fakeLedger) FindByID(ctx context.Context, id string) (*models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

func (f fakeLedger) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.LedgerEntry, error) {
	return f.entriesOf(enrollmentID), nil
}

func (f fakeLedger) ListByEnrollmentIDs(ctx context.Context, enrollmentIDs []string) (map[string][]models.LedgerEntry, error) {
	out := map[string][]models.LedgerEntry{}
	for _, id := range enrollmentIDs {
		if entries := f.entriesOf(id); len(entries) > 0 {
			out[id] = entries
		}
	}
	return out, nil
}

func (f fakeLedger) DueExists(ctx context.Context, tx *sqlx.Tx, enrollmentID string, date time.Time) (bool, error) {
	for _, e := range f.entriesOf(enrollmentID) {
		if e.Amount.IsZero() && e.Date.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeLedger) Settle(ctx context.Context, tx *sqlx.Tx, id, actorID string, amount decimal.Decimal, date time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	if !ok || !e.Amount.IsZero() {
		return false, nil
	}
	e.Amount = amount
	e.ActorID = actorID
	e.Date = date
	return true, nil
}

func (f fakeLedger) LatestPaymentDate(ctx context.Context, tx *sqlx.Tx, enrollmentID string) (*time.Time, error) {
	var latest *time.Time
	for _, e := range f.entriesOf(enrollmentID) {
		if e.Amount.IsPositive() && (latest == nil || e.Date.After(*latest)) {
			d := e.Date
			latest = &d
		}
	}
	return latest, nil
}

func (f fakeLedger) DeleteByEnrollment(ctx context.Context, tx *sqlx.Tx, enrollmentID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, e := range f.entries {
		if e.EnrollmentID == enrollmentID {
			delete(f.entries, id)
			n++
		}
	}
	return n, nil
}

func (f fakeLedger) DeleteByStudent(ctx context.Context, tx *sqlx.Tx, studentID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, e := range f.entries {
		if en, ok := f.enrollments[e.EnrollmentID]; ok && en.StudentID == studentID {
			delete(f.entries, id)
			n++
		}
	}
	return n, nil
}

func (f fakeLedger) ListPendingDues(ctx context.Context) ([]dto.PendingDueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []dto.PendingDueItem
	for _, e := range f.entries {
		if !e.Amount.IsZero() {
			continue
		}
		en := f.enrollments[e.EnrollmentID]
		st := f.students[en.StudentID]
		if st.Status != models.StudentStatusActive {
			continue
		}
		out = append(out, dto.PendingDueItem{
			StudentID:    st.ID,
			StudentName:  st.FullName,
			RollNo:       st.RollNo,
			EnrollmentID: en.ID,
			SessionName:  f.sessions[en.SessionID].Name,
			EntryID:      e.ID,
			DueDate:      e.Date,
			NetFee:       en.NetFee(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentName != out[j].StudentName {
			return out[i].StudentName < out[j].StudentName
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out, nil
}

type sentNotification struct {
	ActorID  string
	Category models.NotificationCategory
	Content  string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) Notify(ctx context.Context, actorID string, category models.NotificationCategory, content string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{ActorID: actorID, Category: category, Content: content})
}

func (n *recordingNotifier) byCategory(category models.NotificationCategory) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotification
	for _, s := range n.sent {
		if s.Category == category {
			out = append(out, s)
		}
	}
	return out
}

type lockerStub struct {
	acquired bool
	err      error
	calls    []string
	released int
}

func (l *lockerStub) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	l.calls = append(l.calls, name)
	if l.err != nil || !l.acquired {
		return nil, false, l.err
	}
	return func() { l.released++ }, true, nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func expectTx(mock sqlmock.Sqlmock, commit bool) {
	mock.ExpectBegin()
	if commit {
		mock.ExpectCommit()
		return
	}
	mock.ExpectRollback()
}

type ledgerFixture struct {
	store    *fakeStore
	db       txProvider
	mock     sqlmock.Sqlmock
	notifier *recordingNotifier
	metrics  *MetricsService
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	db, mock := newTxProviderMock(t)
	return &ledgerFixture{
		store:    newFakeStore(),
		db:       db,
		mock:     mock,
		notifier: &recordingNotifier{},
		metrics:  NewMetricsService(),
	}
}

func (f *ledgerFixture) enrollmentService(now time.Time) *EnrollmentService {
	s := f.store
	return NewEnrollmentService(f.db, fakeStudents{s}, fakeSessions{s}, fakeEnrollments{s}, fakeLedger{s}, f.notifier, f.metrics, clock.Fixed(now), nil, nil)
}

func (f *ledgerFixture) lifecycleService(opts ...LifecycleOption) *LifecycleService {
	s := f.store
	return NewLifecycleService(f.db, fakeSessions{s}, fakeEnrollments{s}, fakeStudents{s}, f.notifier, f.metrics, nil, opts...)
}

func (f *ledgerFixture) renewalService(locker SweepLocker) *RenewalService {
	s := f.store
	return NewRenewalService(f.db, fakeEnrollments{s}, fakeLedger{s}, f.notifier, locker, RenewalConfig{DaysAhead: 7, SystemActor: "system"}, f.metrics, nil)
}

func (f *ledgerFixture) ledgerService(now time.Time) *LedgerService {
	s := f.store
	return NewLedgerService(f.db, fakeEnrollments{s}, fakeSessions{s}, fakeLedger{s}, f.notifier, f.metrics, clock.Fixed(now), nil, nil)
}

func (f *ledgerFixture) balanceService() *BalanceService {
	s := f.store
	return NewBalanceService(fakeStudents{s}, fakeEnrollments{s}, fakeSessions{s}, fakeLedger{s}, nil)
}

func (f *ledgerFixture) studentService() *StudentService {
	s := f.store
	return NewStudentService(f.db, fakeStudents{s}, fakeEnrollments{s}, fakeLedger{s}, f.notifier, nil, nil)
}
