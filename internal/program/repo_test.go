package program

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	repo := NewRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func seedUser(t *testing.T, repo *Repository, username, role string) *User {
	t.Helper()
	u := &User{
		Username:     username,
		PasswordHash: "x",
		Role:         role,
		FullName:     username + " full",
		Email:        username + "@example.com",
		Phone:        "0812345678",
	}
	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return u
}

func count(t *testing.T, repo *Repository, model any) int64 {
	t.Helper()
	var n int64
	if err := repo.db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestCreateUserWithParticipantRejectsDuplicateUsername(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first := &User{Username: "alice", PasswordHash: "h", Role: RoleParticipant, FullName: "Alice", Email: "alice@example.com", Phone: "0811111111"}
	if err := repo.CreateUserWithParticipant(ctx, first, &Participant{BirthPlace: "Kudus", Address: "Jl. 1", Elementary: "SD 1", Purpose: "learn", Interests: "x", Talents: "y"}); err != nil {
		t.Fatalf("first registration: %v", err)
	}

	dup := &User{Username: "alice", PasswordHash: "h", Role: RoleParticipant, FullName: "Other", Email: "other@example.com", Phone: "0822222222"}
	err := repo.CreateUserWithParticipant(ctx, dup, &Participant{BirthPlace: "Demak", Address: "Jl. 2", Elementary: "SD 2", Purpose: "p", Interests: "x", Talents: "y"})
	if !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
	if n := count(t, repo, &User{}); n != 1 {
		t.Fatalf("expected 1 user, got %d", n)
	}
	if n := count(t, repo, &Participant{}); n != 1 {
		t.Fatalf("expected 1 participant, got %d", n)
	}
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	repo := newTestRepo(t)
	seedUser(t, repo, "alice", RoleParticipant)
	err := repo.CreateUser(context.Background(), &User{Username: "bob", PasswordHash: "h", Role: RoleParticipant, Email: "alice@example.com"})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestGetUserByUsernameNotFound(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.GetUserByUsername(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementDownloadCountIsAtomic(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	org := seedUser(t, repo, "panitia", RoleOrganizer)
	m := &Material{Title: "Intro", UploadedByID: org.ID}
	if err := repo.CreateMaterial(ctx, m); err != nil {
		t.Fatalf("create material: %v", err)
	}

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.IncrementDownloadCount(ctx, m.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	got, err := repo.GetMaterial(ctx, m.ID)
	if err != nil {
		t.Fatalf("get material: %v", err)
	}
	if got.DownloadCount != n {
		t.Fatalf("expected downloadCount %d, got %d", n, got.DownloadCount)
	}
	if got.UploadedBy == nil || got.UploadedBy.Username != "panitia" {
		t.Fatalf("expected uploader to be joined, got %+v", got.UploadedBy)
	}
	if err := repo.IncrementDownloadCount(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown material, got %v", err)
	}
}

func TestListMaterialsNewestFirstWithUploader(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	org := seedUser(t, repo, "panitia", RoleOrganizer)
	for _, title := range []string{"first", "second", "third"} {
		if err := repo.CreateMaterial(ctx, &Material{Title: title, UploadedByID: org.ID}); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	list, err := repo.ListMaterials(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Title != "third" || list[2].Title != "first" {
		t.Fatalf("unexpected order: %+v", list)
	}
	for _, m := range list {
		if m.UploadedBy == nil || m.UploadedBy.ID != org.ID {
			t.Fatalf("material %q missing uploader", m.Title)
		}
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	org := seedUser(t, repo, "panitia", RoleOrganizer)
	m := &Material{Title: "Intro", UploadedByID: org.ID}
	if err := repo.CreateMaterial(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := repo.DeleteMaterial(ctx, m.ID); err != nil || !ok {
		t.Fatalf("expected first delete to succeed, got ok=%v err=%v", ok, err)
	}
	if ok, err := repo.DeleteMaterial(ctx, m.ID); err != nil || ok {
		t.Fatalf("expected second delete to report false, got ok=%v err=%v", ok, err)
	}
	if ok, err := repo.DeleteCertificate(ctx, 42); err != nil || ok {
		t.Fatalf("expected false for unknown certificate, got ok=%v err=%v", ok, err)
	}
}

func TestCloseSessionIsIdempotentAndKeepsRecords(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	ins := seedUser(t, repo, "guru", RoleInstructor)
	alice := seedUser(t, repo, "alice", RoleParticipant)

	sess := &AttendanceSession{Title: "Week1", InstructorID: ins.ID}
	if err := repo.CreateAttendanceSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if !sess.IsActive || sess.ClosedAt != nil {
		t.Fatalf("new session should be active and open: %+v", sess)
	}
	if err := repo.CreateAttendanceRecord(ctx, &AttendanceRecord{SessionID: sess.ID, ParticipantID: alice.ID, Status: StatusPresent}); err != nil {
		t.Fatalf("create record: %v", err)
	}

	first := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	closed, err := repo.CloseAttendanceSession(ctx, sess.ID, first)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.IsActive || closed.ClosedAt == nil || !closed.ClosedAt.Equal(first) {
		t.Fatalf("unexpected closed session %+v", closed)
	}
	if closed.Instructor == nil || closed.Instructor.Username != "guru" {
		t.Fatalf("expected instructor to be joined, got %+v", closed.Instructor)
	}

	again, err := repo.CloseAttendanceSession(ctx, sess.ID, first.Add(time.Hour))
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if again.ClosedAt == nil || !again.ClosedAt.Equal(first) {
		t.Fatalf("closedAt changed on second close: %v", again.ClosedAt)
	}

	records, err := repo.ListAttendanceRecords(ctx, sess.ID)
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 1 || records[0].Participant == nil || records[0].Participant.Username != "alice" {
		t.Fatalf("unexpected records %+v", records)
	}

	if _, err := repo.CloseAttendanceSession(ctx, 9999, first); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListAttendanceRecordsLatestCheckInFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	ins := seedUser(t, repo, "guru", RoleInstructor)
	alice := seedUser(t, repo, "alice", RoleParticipant)
	bob := seedUser(t, repo, "bob", RoleParticipant)
	sess := &AttendanceSession{Title: "Week2", InstructorID: ins.ID}
	if err := repo.CreateAttendanceSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	base := time.Date(2024, 3, 8, 8, 0, 0, 0, time.UTC)
	if err := repo.CreateAttendanceRecord(ctx, &AttendanceRecord{SessionID: sess.ID, ParticipantID: bob.ID, Status: StatusLate, CheckInTime: base.Add(10 * time.Minute)}); err != nil {
		t.Fatalf("record bob: %v", err)
	}
	if err := repo.CreateAttendanceRecord(ctx, &AttendanceRecord{SessionID: sess.ID, ParticipantID: alice.ID, Status: StatusPresent, CheckInTime: base}); err != nil {
		t.Fatalf("record alice: %v", err)
	}
	records, err := repo.ListAttendanceRecords(ctx, sess.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 || records[0].ParticipantID != bob.ID {
		t.Fatalf("expected bob's later check-in first, got %+v", records)
	}
}

func TestInstructorLifecycleAdjustsRole(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	alice := seedUser(t, repo, "alice", RoleParticipant)
	org := seedUser(t, repo, "panitia", RoleOrganizer)

	ins := &Instructor{UserID: alice.ID, Specialization: "Aswaja"}
	if err := repo.CreateInstructor(ctx, ins); err != nil {
		t.Fatalf("create instructor: %v", err)
	}
	if ins.Status != InstructorActive {
		t.Fatalf("expected default status active, got %q", ins.Status)
	}
	u, _ := repo.GetUserByID(ctx, alice.ID)
	if u.Role != RoleInstructor {
		t.Fatalf("expected role instructor, got %q", u.Role)
	}
	if err := repo.CreateInstructor(ctx, &Instructor{UserID: alice.ID, Specialization: "again"}); !errors.Is(err, ErrAlreadyInstructor) {
		t.Fatalf("expected ErrAlreadyInstructor, got %v", err)
	}

	orgIns := &Instructor{UserID: org.ID, Specialization: "Leadership"}
	if err := repo.CreateInstructor(ctx, orgIns); err != nil {
		t.Fatalf("create organizer instructor: %v", err)
	}
	if u, _ := repo.GetUserByID(ctx, org.ID); u.Role != RoleOrganizer {
		t.Fatalf("organizer must keep role, got %q", u.Role)
	}

	list, err := repo.ListInstructors(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].User == nil || list[0].User.Username != "panitia" {
		t.Fatalf("unexpected instructors %+v", list)
	}

	inactive := InstructorInactive
	updated, err := repo.UpdateInstructor(ctx, ins.ID, InstructorPatch{Status: &inactive})
	if err != nil || updated.Status != InstructorInactive {
		t.Fatalf("update: %+v %v", updated, err)
	}
	if _, err := repo.UpdateInstructor(ctx, 9999, InstructorPatch{Status: &inactive}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if ok, err := repo.DeleteInstructor(ctx, ins.ID); err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if u, _ := repo.GetUserByID(ctx, alice.ID); u.Role != RoleParticipant {
		t.Fatalf("expected role to revert to participant, got %q", u.Role)
	}
	if ok, err := repo.DeleteInstructor(ctx, ins.ID); err != nil || ok {
		t.Fatalf("second delete: ok=%v err=%v", ok, err)
	}
}

func TestGradeUpdateRefreshesUpdatedAt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	alice := seedUser(t, repo, "alice", RoleParticipant)
	score := 80
	g := &Grade{ParticipantID: alice.ID, AssignmentScore: &score}
	if err := repo.CreateGrade(ctx, g); err != nil {
		t.Fatalf("create grade: %v", err)
	}
	before := g.UpdatedAt
	time.Sleep(5 * time.Millisecond)

	exam := 90
	updated, err := repo.UpdateGrade(ctx, g.ID, GradePatch{ExamScore: &exam})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ExamScore == nil || *updated.ExamScore != 90 || *updated.AssignmentScore != 80 {
		t.Fatalf("unexpected grade %+v", updated)
	}
	if !updated.UpdatedAt.After(before) {
		t.Fatalf("updatedAt not refreshed: %v vs %v", updated.UpdatedAt, before)
	}
	if avg := updated.Average(); avg < 56.66 || avg > 56.67 {
		t.Fatalf("unexpected average %v", avg)
	}

	byParticipant, err := repo.GetGradeByParticipant(ctx, alice.ID)
	if err != nil || byParticipant.ID != g.ID || byParticipant.Participant == nil {
		t.Fatalf("by participant: %+v %v", byParticipant, err)
	}
	if _, err := repo.GetGradeByParticipant(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCertificatesDefaultsAndDuplicates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	alice := seedUser(t, repo, "alice", RoleParticipant)

	for i := 0; i < 2; i++ {
		c := &Certificate{ParticipantID: alice.ID}
		if err := repo.CreateCertificate(ctx, c); err != nil {
			t.Fatalf("create certificate %d: %v", i, err)
		}
		if c.CertificateType != DefaultCertificateType || c.Status != CertificateDraft || c.IssuedAt.IsZero() {
			t.Fatalf("unexpected defaults %+v", c)
		}
	}
	list, err := repo.ListCertificatesByParticipant(ctx, alice.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID < list[1].ID {
		t.Fatalf("expected two certificates newest first, got %+v", list)
	}
	if list[0].Participant == nil || list[0].Participant.Username != "alice" {
		t.Fatalf("participant not joined: %+v", list[0].Participant)
	}

	issued := CertificateIssued
	updated, err := repo.UpdateCertificate(ctx, list[0].ID, CertificatePatch{Status: &issued})
	if err != nil || updated.Status != CertificateIssued {
		t.Fatalf("update: %+v %v", updated, err)
	}
}

func TestListActivityPagesNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := repo.RecordActivity(ctx, &ActivityLog{Type: "user.registered", OccurredAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	page, err := repo.ListActivity(ctx, 2, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || !page[0].OccurredAt.Equal(base.Add(3*time.Minute)) {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestListActivityClampsPageSize(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	logs := make([]ActivityLog, 0, 210)
	for i := 0; i < 210; i++ {
		logs = append(logs, ActivityLog{Type: "material.downloaded", OccurredAt: base.Add(time.Duration(i) * time.Second)})
	}
	if err := repo.db.CreateInBatches(logs, 50).Error; err != nil {
		t.Fatalf("seed activity: %v", err)
	}

	for _, tc := range []struct {
		limit int
		want  int
	}{
		{limit: 0, want: 50},
		{limit: -3, want: 50},
		{limit: 7, want: 7},
		{limit: 200, want: 200},
		{limit: 500, want: 200},
	} {
		if got := ActivityLimit(tc.limit); got != tc.want {
			t.Fatalf("ActivityLimit(%d) = %d, want %d", tc.limit, got, tc.want)
		}
		page, err := repo.ListActivity(ctx, tc.limit, 0)
		if err != nil {
			t.Fatalf("list limit=%d: %v", tc.limit, err)
		}
		if len(page) != tc.want {
			t.Fatalf("limit=%d: expected %d rows, got %d", tc.limit, tc.want, len(page))
		}
	}
}
