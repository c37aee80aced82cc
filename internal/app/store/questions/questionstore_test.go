package questionstore_test

import (
	"errors"
	"testing"

	questionstore "github.com/dalemusser/grouphub/internal/app/store/questions"
	versionstore "github.com/dalemusser/grouphub/internal/app/store/versions"
	"github.com/dalemusser/grouphub/internal/domain/models"
	"github.com/dalemusser/grouphub/internal/testutil"
	"go.uber.org/zap"
)

func TestStore_CRUD(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := questionstore.New(db, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	q1 := models.GroupJoinQuestion{ID: testutil.NextID(), Question: "2+2?", Answers: []string{"4", "four"}, Score: 5}
	q2 := models.GroupJoinQuestion{ID: testutil.NextID(), Question: "color?", Answers: []string{"blue"}, Score: 3}
	if err := store.InsertMany(ctx, 7, []models.GroupJoinQuestion{q1, q2}); err != nil {
		t.Fatalf("InsertMany failed: %v", err)
	}

	list, err := store.ListByGroup(ctx, 7)
	if err != nil {
		t.Fatalf("ListByGroup failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("ListByGroup: got %d questions, want 2", len(list))
	}

	score := 8
	if err := store.Update(ctx, q1.ID, questionstore.QuestionUpdate{Score: &score}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, err := store.Get(ctx, q1.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Score != 8 || got.GroupID != 7 {
		t.Errorf("Get: got %+v", got)
	}

	if err := store.Update(ctx, 1, questionstore.QuestionUpdate{Score: &score}); !errors.Is(err, questionstore.ErrNotFound) {
		t.Errorf("Update missing: got %v, want ErrNotFound", err)
	}

	// Deleting with the wrong group matches nothing.
	n, err := store.DeleteMany(ctx, 8, []int64{q1.ID})
	if err != nil || n != 0 {
		t.Errorf("DeleteMany other group: n=%d err=%v", n, err)
	}
	n, err = store.DeleteMany(ctx, 7, []int64{q1.ID})
	if err != nil || n != 1 {
		t.Errorf("DeleteMany: n=%d err=%v", n, err)
	}

	v, _ := versionstore.NewGroupVersions(db).Query(ctx, 7, models.GroupJoinQuestionsVersion)
	if v.Equal(versionstore.BeginningOfTime) {
		t.Error("expected join questions version to be bumped")
	}
}
