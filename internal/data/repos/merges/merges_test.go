package merges

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/samerge/internal/data/repos/testutil"
	types "github.com/yungbote/samerge/internal/domain/merge"
	"github.com/yungbote/samerge/internal/pkg/dbctx"
)

func TestGroupRepoGetOrCreateIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewGroupRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	first, created, err := repo.GetOrCreate(dbc, testutil.Key(5500))
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if !created || first.ID == 0 {
		t.Fatalf("expected a new group, got created=%v id=%d", created, first.ID)
	}

	again, created, err := repo.GetOrCreate(dbc, testutil.Key(5500))
	if err != nil {
		t.Fatalf("GetOrCreate again: %v", err)
	}
	if created || again.ID != first.ID {
		t.Fatalf("expected existing group %d, got created=%v id=%d", first.ID, created, again.ID)
	}

	other, created, err := repo.GetOrCreate(dbc, testutil.Key(5501))
	if err != nil {
		t.Fatalf("GetOrCreate other: %v", err)
	}
	if !created || other.ID == first.ID {
		t.Fatalf("expected distinct group for different run")
	}

	n, err := repo.Count(dbc)
	if err != nil || n != 2 {
		t.Fatalf("Count = %d, %v; want 2", n, err)
	}
}

func TestGroupRepoDeleteUnreferenced(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewGroupRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	withFile := testutil.SeedGroup(t, ctx, db, testutil.Key(1))
	withItem := testutil.SeedGroup(t, ctx, db, testutil.Key(2))
	empty := testutil.SeedGroup(t, ctx, db, testutil.Key(3))
	testutil.SeedFile(t, ctx, db, withFile.ID, "a.root", 10, time.Now())
	testutil.SeedItem(t, ctx, db, withItem.ID, types.StatusSubmitted)

	deleted, err := repo.DeleteUnreferenced(dbc)
	if err != nil {
		t.Fatalf("DeleteUnreferenced: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if g, _ := repo.GetByID(dbc, empty.ID); g != nil {
		t.Fatalf("empty group should be gone")
	}
	if g, _ := repo.GetByID(dbc, withItem.ID); g == nil {
		t.Fatalf("group with item should remain")
	}
}

func TestFileRepoAssignment(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	files := NewFileRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	g := testutil.SeedGroup(t, ctx, db, testutil.Key(1))
	now := time.Now().UTC()
	newer := testutil.SeedFile(t, ctx, db, g.ID, "b.root", 10, now)
	older := testutil.SeedFile(t, ctx, db, g.ID, "a.root", 10, now.Add(-time.Hour))

	free, err := files.ListUnassignedByGroup(dbc, g.ID)
	if err != nil {
		t.Fatalf("ListUnassignedByGroup: %v", err)
	}
	if len(free) != 2 || free[0].ID != older.ID || free[1].ID != newer.ID {
		t.Fatalf("expected oldest first, got %+v", free)
	}

	existing, err := files.ExistingNames(dbc, []string{"a.root", "c.root"})
	if err != nil {
		t.Fatalf("ExistingNames: %v", err)
	}
	if !existing["a.root"] || existing["c.root"] {
		t.Fatalf("ExistingNames = %v", existing)
	}

	item := testutil.SeedItem(t, ctx, db, g.ID, types.StatusReady)
	n, err := files.AssignToItem(dbc, []uint{older.ID, newer.ID}, item.ID)
	if err != nil || n != 2 {
		t.Fatalf("AssignToItem = %d, %v", n, err)
	}
	// Already owned files are not stolen by a second item.
	other := testutil.SeedItem(t, ctx, db, g.ID, types.StatusReady)
	if n, _ := files.AssignToItem(dbc, []uint{older.ID}, other.ID); n != 0 {
		t.Fatalf("reassigned owned file")
	}

	if c, _ := files.CountUnassigned(dbc); c != 0 {
		t.Fatalf("CountUnassigned = %d, want 0", c)
	}
	ids, err := NewGroupRepo(db, testutil.Logger(t)).ListIDsWithUnassigned(dbc)
	if err != nil || len(ids) != 0 {
		t.Fatalf("ListIDsWithUnassigned = %v, %v", ids, err)
	}

	if n, err := files.UnassignItem(dbc, item.ID); err != nil || n != 2 {
		t.Fatalf("UnassignItem = %d, %v", n, err)
	}
	members, _ := files.ListByItem(dbc, item.ID)
	if len(members) != 0 {
		t.Fatalf("files still owned after unassign")
	}
}

func TestItemRepoTransitionStatus(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	items := NewItemRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	g := testutil.SeedGroup(t, ctx, db, testutil.Key(1))
	item := testutil.SeedItem(t, ctx, db, g.ID, types.StatusSubmitted)

	ok, err := items.TransitionStatus(dbc, item.ID, types.StatusReady, types.StatusSubmitted, nil)
	if err != nil || ok {
		t.Fatalf("transition from wrong status = %v, %v", ok, err)
	}
	ok, err = items.TransitionStatus(dbc, item.ID, types.StatusSubmitted, types.StatusDeclared, map[string]interface{}{
		"output_created_at": time.Now().UTC(),
	})
	if err != nil || !ok {
		t.Fatalf("transition = %v, %v", ok, err)
	}
	got, err := items.GetByID(dbc, item.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.StatusDeclared || got.OutputCreatedAt == nil {
		t.Fatalf("unexpected item %+v", got)
	}

	testutil.SeedItem(t, ctx, db, g.ID, types.StatusReady)
	counts, err := items.CountByStatus(dbc)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[types.StatusDeclared] != 1 || counts[types.StatusReady] != 1 {
		t.Fatalf("counts = %v", counts)
	}
	if n, _ := items.CountInFlight(dbc); n != 1 {
		t.Fatalf("CountInFlight = %d, want 1", n)
	}

	if err := items.Delete(dbc, item.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := items.GetByID(dbc, item.ID); got != nil {
		t.Fatalf("item still present")
	}
}
