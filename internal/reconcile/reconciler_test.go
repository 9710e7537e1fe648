package reconcile

import (
	"testing"
	"time"

	"github.com/Veraticus/shopcompare/internal/clock"
	"github.com/Veraticus/shopcompare/internal/common"
	"github.com/Veraticus/shopcompare/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func comment(id, text string, minute int) model.Comment {
	return model.Comment{
		ID:        id,
		PostID:    "post-1",
		AuthorID:  "u1",
		Text:      text,
		CreatedAt: base.Add(time.Duration(minute) * time.Minute),
	}
}

func newCommentReconciler(clk clock.Clock) *Reconciler[model.Comment] {
	return New(model.Comment.Fingerprint, Options{Clock: clk, Name: "comments-test", Window: time.Second})
}

func keys(items []model.Comment) []string {
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = c.ID
	}
	return out
}

func TestReconciler_SpeculativeThenSnapshot(t *testing.T) {
	fake := clock.NewFake(base)
	r := newCommentReconciler(fake)
	defer r.Close()

	r.ApplySnapshot([]model.Comment{comment("c1", "first", 1)})

	require.NoError(t, r.InsertSpeculative(comment("temp-1", "  hello world ", 5)))
	view := r.View()
	assert.Equal(t, []string{"temp-1", "c1"}, keys(view.Items))

	r.ApplySnapshot([]model.Comment{
		comment("c1", "first", 1),
		comment("c2", "hello world", 4),
	})

	view = r.View()
	assert.Equal(t, []string{"c2", "c1"}, keys(view.Items), "speculative entity retired, no duplicate")
	assert.True(t, view.IsRecent("c2"))
	assert.False(t, view.IsRecent("c1"))
}

func TestReconciler_SnapshotThenSpeculativeConverges(t *testing.T) {
	snapshot := []model.Comment{
		comment("c1", "first", 1),
		comment("c2", "hello world", 4),
	}
	speculative := comment("temp-1", "hello world", 5)

	insertFirst := newCommentReconciler(clock.NewFake(base))
	defer insertFirst.Close()
	insertFirst.ApplySnapshot(snapshot[:1])
	require.NoError(t, insertFirst.InsertSpeculative(speculative))
	insertFirst.ApplySnapshot(snapshot)

	snapshotFirst := newCommentReconciler(clock.NewFake(base))
	defer snapshotFirst.Close()
	snapshotFirst.ApplySnapshot(snapshot[:1])
	snapshotFirst.ApplySnapshot(snapshot)
	require.NoError(t, snapshotFirst.InsertSpeculative(speculative))

	a, b := insertFirst.View(), snapshotFirst.View()
	assert.Equal(t, a.Items, b.Items)
	assert.Equal(t, a.RecentlyArrived, b.RecentlyArrived)
	assert.Len(t, a.Items, len(snapshot))
}

func TestReconciler_UnmatchedSpeculativeRetained(t *testing.T) {
	r := newCommentReconciler(clock.NewFake(base))
	defer r.Close()

	r.ApplySnapshot(nil)
	require.NoError(t, r.InsertSpeculative(comment("temp-1", "pending", 10)))

	r.ApplySnapshot([]model.Comment{comment("c1", "something else", 2)})

	view := r.View()
	assert.Equal(t, []string{"temp-1", "c1"}, keys(view.Items))
	assert.True(t, view.Items[0].Speculative())
}

func TestReconciler_OneSpeculativePerFingerprint(t *testing.T) {
	r := newCommentReconciler(clock.NewFake(base))
	defer r.Close()

	require.NoError(t, r.InsertSpeculative(comment("temp-1", "same", 1)))
	require.NoError(t, r.InsertSpeculative(comment("temp-2", " same ", 2)))

	assert.Equal(t, []string{"temp-2"}, keys(r.View().Items))
}

func TestReconciler_RejectsNonPlaceholderIDs(t *testing.T) {
	r := newCommentReconciler(clock.NewFake(base))
	defer r.Close()

	err := r.InsertSpeculative(comment("c1", "nope", 1))
	require.ErrorIs(t, err, common.ErrNotSpeculative)
	assert.Empty(t, r.View().Items)
}

func TestReconciler_FailSpeculative(t *testing.T) {
	r := newCommentReconciler(clock.NewFake(base))
	defer r.Close()

	require.NoError(t, r.InsertSpeculative(comment("temp-1", "draft text", 1)))

	got, ok := r.FailSpeculative("temp-1")
	require.True(t, ok)
	assert.Equal(t, "draft text", got.Text)
	assert.Empty(t, r.View().Items)

	_, ok = r.FailSpeculative("temp-1")
	assert.False(t, ok)
}

func TestReconciler_RecentlyArrivedWindow(t *testing.T) {
	fake := clock.NewFake(base)
	r := newCommentReconciler(fake)
	defer r.Close()

	var published []View[model.Comment]
	r.OnChange(func(v View[model.Comment]) { published = append(published, v) })

	r.ApplySnapshot([]model.Comment{comment("c1", "initial", 1)})
	assert.Empty(t, r.View().RecentlyArrived, "initial load is never highlighted")

	fake.Advance(300 * time.Millisecond)
	r.ApplySnapshot([]model.Comment{comment("c1", "initial", 1), comment("c2", "new", 2)})
	assert.True(t, r.View().IsRecent("c2"))

	fake.Advance(500 * time.Millisecond)
	r.ApplySnapshot([]model.Comment{comment("c1", "initial", 1), comment("c2", "new", 2), comment("c3", "newer", 3)})
	assert.True(t, r.View().IsRecent("c2"))
	assert.True(t, r.View().IsRecent("c3"))

	// c2's window ends independently of c3's
	fake.Advance(500 * time.Millisecond)
	assert.False(t, r.View().IsRecent("c2"))
	assert.True(t, r.View().IsRecent("c3"))

	fake.Advance(500 * time.Millisecond)
	assert.Empty(t, r.View().RecentlyArrived)

	// Expiry republishes so the UI drops the emphasis
	last := published[len(published)-1]
	assert.Empty(t, last.RecentlyArrived)
	assert.Len(t, last.Items, 3)
}

func TestReconciler_ReappearingIDIsMarkedAgain(t *testing.T) {
	fake := clock.NewFake(base)
	r := newCommentReconciler(fake)
	defer r.Close()

	r.ApplySnapshot([]model.Comment{comment("c1", "a", 1)})
	r.ApplySnapshot(nil)
	r.ApplySnapshot([]model.Comment{comment("c1", "a", 1)})

	assert.True(t, r.View().IsRecent("c1"))
}

func TestReconciler_CloseCancelsTimers(t *testing.T) {
	fake := clock.NewFake(base)
	r := newCommentReconciler(fake)

	calls := 0
	r.OnChange(func(View[model.Comment]) { calls++ })

	r.ApplySnapshot(nil)
	r.ApplySnapshot([]model.Comment{comment("c1", "x", 1), comment("c2", "y", 2)})
	require.Equal(t, 2, fake.Pending())
	before := calls

	r.Close()
	r.Close()
	assert.Equal(t, 0, fake.Pending())

	fake.Advance(time.Minute)
	r.ApplySnapshot([]model.Comment{comment("c3", "z", 3)})
	assert.ErrorIs(t, r.InsertSpeculative(comment("temp-9", "late", 9)), common.ErrClosed)
	assert.Equal(t, before, calls, "no callbacks after teardown")
}

func TestReconciler_SortedNewestFirst(t *testing.T) {
	r := newCommentReconciler(clock.NewFake(base))
	defer r.Close()

	r.ApplySnapshot([]model.Comment{
		comment("c1", "old", 1),
		comment("c3", "newest", 30),
		comment("c2", "mid", 15),
		comment("c2", "mid", 15),
	})

	assert.Equal(t, []string{"c3", "c2", "c1"}, keys(r.View().Items))
}

func TestReconciler_WorksForEveryEntityType(t *testing.T) {
	reviews := New(model.Review.Fingerprint, Options{Clock: clock.NewFake(base), Name: "reviews-test"})
	defer reviews.Close()
	require.NoError(t, reviews.InsertSpeculative(model.Review{ID: "temp-r", Text: "Great", CreatedAt: base}))
	reviews.ApplySnapshot([]model.Review{{ID: "r1", Text: "Great ", CreatedAt: base}})
	assert.Len(t, reviews.View().Items, 1)

	posts := New(model.Post.Fingerprint, Options{Clock: clock.NewFake(base), Name: "posts-test"})
	defer posts.Close()
	require.NoError(t, posts.InsertSpeculative(model.Post{ID: "temp-p", Title: "T", Body: "B", CreatedAt: base}))
	posts.ApplySnapshot([]model.Post{{ID: "p1", Title: "T", Body: "B", CreatedAt: base}})
	assert.Equal(t, "p1", posts.View().Items[0].ID)
}

func TestReconciler_RatingOnlyReviewsStayDistinct(t *testing.T) {
	r := New(model.Review.Fingerprint, Options{Clock: clock.NewFake(base), Name: "reviews-test"})
	defer r.Close()

	alice := model.Review{ID: "r1", AuthorID: "alice", Rating: 1, CreatedAt: base}
	r.ApplySnapshot([]model.Review{alice})

	require.NoError(t, r.InsertSpeculative(model.Review{ID: "temp-b", AuthorID: "bob", Rating: 5, CreatedAt: base.Add(time.Minute)}))
	require.Len(t, r.View().Items, 2)

	carol := model.Review{ID: "r9", AuthorID: "carol", Rating: 2, CreatedAt: base.Add(2 * time.Minute)}
	r.ApplySnapshot([]model.Review{carol, alice})

	var ids []string
	for _, item := range r.View().Items {
		ids = append(ids, item.ID)
	}
	assert.Equal(t, []string{"r9", "temp-b", "r1"}, ids)

	r.ApplySnapshot([]model.Review{{ID: "r10", AuthorID: "bob", Rating: 5, CreatedAt: base.Add(3 * time.Minute)}, carol, alice})
	assert.Len(t, r.View().Items, 3)
	assert.False(t, r.View().Items[0].Speculative())
}

func TestReconciler_Republish(t *testing.T) {
	r := New(model.Comment.Fingerprint, Options{Clock: clock.NewFake(time.Unix(0, 0))})
	calls := 0
	r.OnChange(func(View[model.Comment]) { calls++ })

	r.Republish()
	assert.Equal(t, 1, calls)

	r.Close()
	r.Republish()
	assert.Equal(t, 1, calls)
}
