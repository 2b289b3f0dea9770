package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/repository"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/zoom"
)

func strPtr(v string) *string { return &v }

type fakeTeachers struct {
	mu    sync.Mutex
	items map[string]*models.Teacher
	err   error
}

func newFakeTeachers(teachers ...models.Teacher) *fakeTeachers {
	f := &fakeTeachers{items: map[string]*models.Teacher{}}
	for i := range teachers {
		t := teachers[i]
		f.items[t.ID] = &t
	}
	return f
}

func (f *fakeTeachers) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Teacher, 0, len(f.items))
	for _, t := range f.items {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), f.err
}

func (f *fakeTeachers) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTeachers) FindByEmail(ctx context.Context, email string) (*models.Teacher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.items {
		if t.Email == email {
			cp := *t
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeTeachers) FindByIDs(ctx context.Context, ids []string) ([]models.Teacher, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Teacher
	for _, id := range ids {
		if t, ok := f.items[id]; ok {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTeachers) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.items {
		if t.Email == email && t.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTeachers) Create(ctx context.Context, teacher *models.Teacher) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	cp := *teacher
	f.items[teacher.ID] = &cp
	return nil
}

func (f *fakeTeachers) Update(ctx context.Context, teacher *models.Teacher) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[teacher.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *teacher
	f.items[teacher.ID] = &cp
	return nil
}

func (f *fakeTeachers) Deactivate(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	t.Active = false
	return nil
}

func (f *fakeTeachers) UpdatePassword(ctx context.Context, id, hash string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.items[id]; ok {
		t.PasswordHash = hash
	}
	return nil
}

func (f *fakeTeachers) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

type fakeWindows struct {
	items []models.TeacherAvailability
	err   error
}

func (f *fakeWindows) ListByTeacher(ctx context.Context, teacherID string) ([]models.TeacherAvailability, error) {
	var out []models.TeacherAvailability
	for _, w := range f.items {
		if w.TeacherID == teacherID {
			out = append(out, w)
		}
	}
	return out, f.err
}

func (f *fakeWindows) ListByTeacherAndDay(ctx context.Context, teacherID string, day int) ([]models.TeacherAvailability, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []models.TeacherAvailability
	for _, w := range f.items {
		if w.TeacherID == teacherID && w.DayOfWeek == day {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeWindows) FindByID(ctx context.Context, id string) (*models.TeacherAvailability, error) {
	for _, w := range f.items {
		if w.ID == id {
			cp := w
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeWindows) Create(ctx context.Context, w *models.TeacherAvailability) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	f.items = append(f.items, *w)
	return nil
}

func (f *fakeWindows) Update(ctx context.Context, w *models.TeacherAvailability) error {
	for i := range f.items {
		if f.items[i].ID == w.ID {
			f.items[i] = *w
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeWindows) Delete(ctx context.Context, id string) error {
	for i := range f.items {
		if f.items[i].ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

// upsert keys mirror the unique (teacher, day, start, end) index.
func (f *fakeWindows) UpsertFromCSV(ctx context.Context, w *models.TeacherAvailability, importedAt time.Time) (repository.UpsertOutcome, error) {
	for i := range f.items {
		cur := &f.items[i]
		if cur.TeacherID == w.TeacherID && cur.DayOfWeek == w.DayOfWeek && cur.StartTime == w.StartTime && cur.EndTime == w.EndTime {
			changed := (cur.Subject == nil) != (w.Subject == nil) || (cur.Subject != nil && *cur.Subject != *w.Subject)
			cur.Subject = w.Subject
			stamp := importedAt
			cur.LastUpdatedFromCSV = &stamp
			w.ID = cur.ID
			if changed {
				return repository.UpsertUpdated, nil
			}
			return repository.UpsertUnchanged, nil
		}
	}
	w.ID = uuid.NewString()
	stamp := importedAt
	w.LastUpdatedFromCSV = &stamp
	f.items = append(f.items, *w)
	return repository.UpsertInserted, nil
}

func (f *fakeWindows) DeleteSuperseded(ctx context.Context, teacherIDs []string, importedAt time.Time) (int, error) {
	wanted := map[string]bool{}
	for _, id := range teacherIDs {
		wanted[id] = true
	}
	kept := f.items[:0]
	removed := 0
	for _, w := range f.items {
		if wanted[w.TeacherID] && (w.LastUpdatedFromCSV == nil || !w.LastUpdatedFromCSV.Equal(importedAt)) {
			removed++
			continue
		}
		kept = append(kept, w)
	}
	f.items = kept
	return removed, nil
}

func (f *fakeWindows) ListForExport(ctx context.Context) ([]models.AvailabilityExportRow, error) {
	var out []models.AvailabilityExportRow
	for _, w := range f.items {
		out = append(out, models.AvailabilityExportRow{TeacherID: w.TeacherID, DayOfWeek: w.DayOfWeek, StartTime: w.StartTime, EndTime: w.EndTime, Subject: w.Subject})
	}
	return out, nil
}

type fakeClassRequests struct {
	mu    sync.Mutex
	items map[string]*models.ClassRequestDetail
	err   error
}

func newFakeClassRequests(items ...models.ClassRequestDetail) *fakeClassRequests {
	f := &fakeClassRequests{items: map[string]*models.ClassRequestDetail{}}
	for i := range items {
		it := items[i]
		f.items[it.ID] = &it
	}
	return f
}

func (f *fakeClassRequests) ListAcceptedByTeacherAndDate(ctx context.Context, teacherID, date, excludeID string) ([]models.ClassRequestDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.ClassRequestDetail
	for _, it := range f.items {
		if it.TeacherID == teacherID && it.PreferredDate == date && it.Status == models.ClassRequestAccepted && it.ID != excludeID {
			out = append(out, *it)
		}
	}
	return out, nil
}

func (f *fakeClassRequests) Create(ctx context.Context, req *models.ClassRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	f.items[req.ID] = &models.ClassRequestDetail{ClassRequest: *req}
	return nil
}

func (f *fakeClassRequests) FindByID(ctx context.Context, id string) (*models.ClassRequestDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *it
	return &cp, nil
}

func (f *fakeClassRequests) List(ctx context.Context, filter models.ClassRequestFilter) ([]models.ClassRequestDetail, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ClassRequestDetail
	for _, it := range f.items {
		if filter.TeacherID != "" && it.TeacherID != filter.TeacherID {
			continue
		}
		if filter.StudentID != "" && it.StudentID != filter.StudentID {
			continue
		}
		out = append(out, *it)
	}
	return out, len(out), nil
}

func (f *fakeClassRequests) UpdateStatus(ctx context.Context, id string, from, to models.ClassRequestStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok || it.Status != from {
		return sql.ErrNoRows
	}
	it.Status = to
	return nil
}

func (f *fakeClassRequests) UpdatePayment(ctx context.Context, id string, status models.PaymentStatus, reference *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	it.PaymentStatus = status
	if reference != nil {
		it.PaymentReference = reference
	}
	return nil
}

type fakeAssessments struct {
	mu          sync.Mutex
	items       map[string]*models.Assessment
	students    map[string]string
	created     int
	appendErr   error
	appendCalls int
}

func newFakeAssessments(items ...models.Assessment) *fakeAssessments {
	f := &fakeAssessments{items: map[string]*models.Assessment{}, students: map[string]string{}}
	for i := range items {
		it := items[i]
		f.items[it.ID] = &it
		f.students[it.ID] = it.StudentName
	}
	return f
}

func (f *fakeAssessments) Create(ctx context.Context, a *models.Assessment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	cp := *a
	f.items[a.ID] = &cp
	f.students[a.ID] = a.StudentName
	f.created++
	return nil
}

func (f *fakeAssessments) FindByID(ctx context.Context, id string) (*models.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *it
	cp.Meetings = append([]models.AssessmentMeeting(nil), it.Meetings...)
	return &cp, nil
}

func (f *fakeAssessments) List(ctx context.Context, filter models.AssessmentFilter) ([]models.Assessment, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Assessment
	for _, it := range f.items {
		if filter.Status != nil && it.Status != *filter.Status {
			continue
		}
		out = append(out, *it)
	}
	return out, len(out), nil
}

func (f *fakeAssessments) UpdateStatus(ctx context.Context, id string, from, to models.AssessmentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[id]
	if !ok || it.Status != from {
		return repository.ErrStatusChanged
	}
	it.Status = to
	return nil
}

func (f *fakeAssessments) AppendMeeting(ctx context.Context, m *models.AssessmentMeeting, from []models.AssessmentStatus, to models.AssessmentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendCalls++
	if f.appendErr != nil {
		return f.appendErr
	}
	it, ok := f.items[m.AssessmentID]
	if !ok {
		return repository.ErrStatusChanged
	}
	allowed := false
	for _, s := range from {
		if it.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return repository.ErrStatusChanged
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	it.Status = to
	it.Meetings = append(it.Meetings, *m)
	return nil
}

func (f *fakeAssessments) UpdateMeetingTeachers(ctx context.Context, meetingID string, teacherIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		for i := range it.Meetings {
			if it.Meetings[i].ID == meetingID {
				it.Meetings[i].TeacherIDs = pq.StringArray(teacherIDs)
				return nil
			}
		}
	}
	return sql.ErrNoRows
}

func (f *fakeAssessments) ListMeetingsForTeacherOnDate(ctx context.Context, teacherID, date, excludeAssessmentID string) ([]models.TeacherMeeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.TeacherMeeting
	for id, it := range f.items {
		if id == excludeAssessmentID || it.Status == models.AssessmentCanceled {
			continue
		}
		for _, m := range it.Meetings {
			if m.ScheduledDate != date {
				continue
			}
			for _, tid := range m.TeacherIDs {
				if tid == teacherID {
					out = append(out, models.TeacherMeeting{AssessmentMeeting: m, StudentName: f.students[id]})
				}
			}
		}
	}
	return out, nil
}

type fakeProvisioner struct {
	mu       sync.Mutex
	requests []zoom.MeetingRequest
	deleted  []string
	err      error
}

func (f *fakeProvisioner) CreateMeeting(ctx context.Context, req zoom.MeetingRequest) (*zoom.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	host := "me"
	if len(req.HostEmails) > 0 {
		host = req.HostEmails[0]
	}
	id := uuid.NewString()
	return &zoom.Meeting{MeetingID: id, JoinURL: "https://zoom.example/j/" + id, StartURL: "https://zoom.example/s/" + id, HostEmail: host}, nil
}

func (f *fakeProvisioner) DeleteMeeting(ctx context.Context, meetingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, meetingID)
	return nil
}

func (f *fakeProvisioner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) record(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeNotifier) AssessmentReceived(ctx context.Context, a *models.Assessment) {
	f.record("assessment_received")
}

func (f *fakeNotifier) MeetingScheduled(ctx context.Context, a *models.Assessment, m *models.AssessmentMeeting, teachers []models.Teacher) {
	f.record("meeting_scheduled:" + string(m.Kind))
}

func (f *fakeNotifier) TeachersReassigned(ctx context.Context, a *models.Assessment, m *models.AssessmentMeeting, teachers []models.Teacher) {
	f.record("teachers_reassigned")
}

func (f *fakeNotifier) ClassRequestCreated(ctx context.Context, r *models.ClassRequestDetail) {
	f.record("class_request_created")
}

func (f *fakeNotifier) ClassRequestStatusChanged(ctx context.Context, r *models.ClassRequestDetail) {
	f.record("class_request_status:" + string(r.Status))
}

func (f *fakeNotifier) PasswordReset(ctx context.Context, to models.Principal, role models.UserRole, token string) {
	f.record("password_reset:" + token)
}

func (f *fakeNotifier) ContactReceived(ctx context.Context, msg *models.ContactMessage) {
	f.record("contact_received")
}

func (f *fakeNotifier) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]string
	err  error
}

func (f *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", false, f.err
	}
	if f.held == nil {
		f.held = map[string]string{}
	}
	if _, ok := f.held[key]; ok {
		return "", false, nil
	}
	token := uuid.NewString()
	f.held[key] = token
	return token, true, nil
}

func (f *fakeLocker) Release(ctx context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] == token {
		delete(f.held, key)
	}
	return nil
}

type fakeCacheRepo struct {
	mu    sync.Mutex
	items map[string]interface{}
}

func (f *fakeCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if p, ok := dest.(*models.Pricing); ok {
		*p = v.(models.Pricing)
	}
	return nil
}

func (f *fakeCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.items == nil {
		f.items = map[string]interface{}{}
	}
	if p, ok := value.(*models.Pricing); ok {
		value = *p
	}
	f.items[key] = value
	return nil
}

func (f *fakeCacheRepo) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.items, k)
	}
	return nil
}
