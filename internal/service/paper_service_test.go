package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/perception-api/internal/dto"
	"github.com/noah-isme/perception-api/internal/models"
)

func TestPaperCreateAssignsDenseOrders(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t)

	view := env.createPaper(t, 3)
	require.False(t, view.Expired)
	require.False(t, view.Evaluated)
	require.Empty(t, view.Submissions)
	require.Len(t, view.Questions, 3)
	for i, question := range view.Questions {
		require.Equal(t, i+1, question.Order)
	}
	require.InDelta(t, 30.0, view.MaxScore, 1e-9)

	created := env.events.ofType(dto.EventPaperCreated)
	require.Len(t, created, 2, "owner and rostered student are notified")
}

func TestPaperCreateValidatesBeforeStoring(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []dto.PaperCreateRequest{
		{Title: "", Questions: []dto.QuestionRequest{{Question: "q", Answer: "a"}}},
		{Title: "No questions"},
		{Title: "Blank answer", Questions: []dto.QuestionRequest{{Question: "q", Answer: "   "}}},
		{Title: "Markup only", Questions: []dto.QuestionRequest{{Question: "<b></b>", Answer: "a"}}},
	}
	for _, req := range cases {
		_, err := env.paperSvc.Create(ctx, teacher, req)
		var validationErrs validator.ValidationErrors
		require.ErrorAs(t, err, &validationErrs, req.Title)
	}

	var count int64
	require.NoError(t, env.db.Model(&models.Paper{}).Count(&count).Error)
	require.Zero(t, count)

	_, err := env.paperSvc.Create(ctx, student, dto.PaperCreateRequest{Title: "x", Questions: []dto.QuestionRequest{{Question: "q", Answer: "a"}}})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestPaperCreateSanitisesText(t *testing.T) {
	env := newTestEnv(t)

	view, err := env.paperSvc.Create(context.Background(), teacher, dto.PaperCreateRequest{
		Title:     "<script>alert(1)</script>Optics",
		Questions: []dto.QuestionRequest{{Question: "<i>Define</i> refraction", Answer: "Bending of light"}},
	})
	require.NoError(t, err)
	require.Equal(t, "Optics", view.Title)
	require.Equal(t, "Define refraction", view.Questions[0].Question)
}

func TestPaperExpireIsIdempotentAndReversible(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t)
	ctx := context.Background()
	paper := env.createPaper(t, 1)
	env.submit(t, student, paper.ID, false, "draft")
	beforePaper, beforeSubmissions := lifecycleSnapshot(t, env, paper.ID)

	summary, err := env.paperSvc.Expire(ctx, teacher, paper.ID)
	require.NoError(t, err)
	require.True(t, summary.Expired)

	expiredPaper, expiredSubmissions := lifecycleSnapshot(t, env, paper.ID)
	require.True(t, expiredPaper.Expired)
	expiredPaper.Expired = false
	require.Equal(t, beforePaper, expiredPaper, "expire flips only the expired flag")
	require.Equal(t, beforeSubmissions, expiredSubmissions)

	summary, err = env.paperSvc.Expire(ctx, teacher, paper.ID)
	require.NoError(t, err)
	require.True(t, summary.Expired)
	require.Len(t, env.events.ofType(dto.EventPaperExpired), 2, "second expire changes nothing")

	summary, err = env.paperSvc.Unexpire(ctx, teacher, paper.ID)
	require.NoError(t, err)
	require.False(t, summary.Expired)
	require.False(t, summary.Evaluated)

	afterPaper, afterSubmissions := lifecycleSnapshot(t, env, paper.ID)
	require.Equal(t, beforePaper, afterPaper, "unexpire restores the paper exactly")
	require.Equal(t, beforeSubmissions, afterSubmissions)

	other := Principal{Email: "other@example.com", Role: models.RoleTeacher}
	_, err = env.paperSvc.Expire(ctx, other, paper.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.paperSvc.Expire(ctx, teacher, paper.ID+50)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPaperAttemptViewHidesModelAnswers(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t)
	ctx := context.Background()
	paper := env.createPaper(t, 2)

	view, err := env.paperSvc.AttemptView(ctx, student, paper.ID)
	require.NoError(t, err)
	require.Len(t, view.Questions, 2)
	for _, question := range view.Questions {
		require.Empty(t, question.Answer)
	}

	env.submit(t, student, paper.ID, false, "draft one")
	view, err = env.paperSvc.AttemptView(ctx, student, paper.ID)
	require.NoError(t, err)
	require.Equal(t, "draft one", view.Questions[0].Answer, "saved answers are returned for resume")
	require.Empty(t, view.Questions[1].Answer)

	_, err = env.paperSvc.AttemptView(ctx, studentPrincipal("stranger@example.com"), paper.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.paperSvc.AttemptView(ctx, teacher, paper.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestPaperAttemptViewOnExpiredPaper(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t, studentEmail, "late@example.com")
	ctx := context.Background()
	paper := env.createPaper(t, 1)

	env.submit(t, student, paper.ID, false, "started in time")
	_, err := env.paperSvc.Expire(ctx, teacher, paper.ID)
	require.NoError(t, err)

	_, err = env.paperSvc.AttemptView(ctx, studentPrincipal("late@example.com"), paper.ID)
	require.ErrorIs(t, err, ErrConflict)

	view, err := env.paperSvc.AttemptView(ctx, student, paper.ID)
	require.NoError(t, err)
	require.True(t, view.Expired)
}

func TestPaperListForTeacherAndStudent(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t)
	ctx := context.Background()
	first := env.createPaper(t, 1)
	second := env.createPaper(t, 2)

	env.submit(t, student, first.ID, true, "done")

	teacherList, err := env.paperSvc.List(ctx, teacher)
	require.NoError(t, err)
	require.Len(t, teacherList, 2)
	counts := map[uint]int64{}
	for _, summary := range teacherList {
		counts[summary.ID] = *summary.SubmissionCount
	}
	require.Equal(t, int64(1), counts[first.ID])
	require.Zero(t, counts[second.ID])

	studentList, err := env.paperSvc.List(ctx, student)
	require.NoError(t, err)
	require.Len(t, studentList, 2)
	flags := map[uint]bool{}
	for _, summary := range studentList {
		flags[summary.ID] = *summary.Attempted
		if summary.ID == first.ID {
			require.True(t, *summary.Finalized)
		}
	}
	require.True(t, flags[first.ID])
	require.False(t, flags[second.ID])
	require.True(t, env.mini.Exists("papers:student:"+studentEmail))
}

func TestPaperStudentListCacheIsInvalidatedByLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t)
	ctx := context.Background()
	env.createPaper(t, 1)

	list, err := env.paperSvc.List(ctx, student)
	require.NoError(t, err)
	require.Len(t, list, 1)

	env.createPaper(t, 1)
	require.False(t, env.mini.Exists("papers:student:"+studentEmail))

	list, err = env.paperSvc.List(ctx, student)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestPaperListIsEmptyForUnrosteredStudent(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t)
	env.createPaper(t, 1)

	list, err := env.paperSvc.List(context.Background(), studentPrincipal("alone@example.com"))
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestPaperTeacherViewIsOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t)
	ctx := context.Background()
	paper := env.createPaper(t, 2)
	env.submit(t, student, paper.ID, false, "a", "b")

	view, err := env.paperSvc.TeacherView(ctx, teacher, paper.ID)
	require.NoError(t, err)
	require.Equal(t, "Model answer 1", view.Questions[0].Answer)
	require.Len(t, view.Submissions, 1)
	require.Nil(t, view.Submissions[0].TotalScore, "scores are hidden until evaluated")

	_, err = env.paperSvc.TeacherView(ctx, Principal{Email: "other@example.com", Role: models.RoleTeacher}, paper.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestPaperDeleteCascadesAndNotifies(t *testing.T) {
	env := newTestEnv(t)
	env.seedClassroom(t)
	ctx := context.Background()
	paper := env.createPaper(t, 1)
	env.submit(t, student, paper.ID, true, "answer")

	require.NoError(t, env.paperSvc.Delete(ctx, teacher, paper.ID))
	_, err := env.paperSvc.TeacherView(ctx, teacher, paper.ID)
	require.ErrorIs(t, err, ErrNotFound)

	var submissions, answers, entries int64
	require.NoError(t, env.db.Model(&models.Submission{}).Count(&submissions).Error)
	require.NoError(t, env.db.Model(&models.SubmissionAnswer{}).Count(&answers).Error)
	require.NoError(t, env.db.Model(&models.ActivityLog{}).Count(&entries).Error)
	require.Zero(t, submissions)
	require.Zero(t, answers)
	require.Zero(t, entries)

	require.Len(t, env.events.ofType(dto.EventPaperDeleted), 2)
	require.ErrorIs(t, env.paperSvc.Delete(ctx, teacher, paper.ID), ErrNotFound)
}

// lifecycleSnapshot loads the paper and its submissions with UpdatedAt cleared.
func lifecycleSnapshot(t *testing.T, env *testEnv, paperID uint) (models.Paper, []models.Submission) {
	t.Helper()
	ctx := context.Background()

	paper, err := env.papers.GetByID(ctx, paperID)
	require.NoError(t, err)
	paper.UpdatedAt = time.Time{}

	submissions, err := env.submissions.ListByPaper(ctx, paperID)
	require.NoError(t, err)
	for i := range submissions {
		submissions[i].UpdatedAt = time.Time{}
	}
	return paper, submissions
}
