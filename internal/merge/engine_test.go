package merge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/samerge/internal/batch/batchtest"
	"github.com/yungbote/samerge/internal/catalog"
	"github.com/yungbote/samerge/internal/catalog/catalogtest"
	"github.com/yungbote/samerge/internal/data/repos/merges"
	"github.com/yungbote/samerge/internal/data/repos/testutil"
	types "github.com/yungbote/samerge/internal/domain/merge"
	"github.com/yungbote/samerge/internal/jobtemplate"
	"github.com/yungbote/samerge/internal/pkg/dbctx"
	apperrors "github.com/yungbote/samerge/internal/pkg/errors"
)

const scratch = "/pnfs/uboone/scratch/merge"

type memDisk struct {
	mu      sync.Mutex
	files   map[string]bool
	removed []string
}

func (d *memDisk) Exists(path string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.files[path], nil
}

func (d *memDisk) Remove(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.files, path)
	d.removed = append(d.removed, path)
	return nil
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	db    *gorm.DB
	cat   *catalogtest.Fake
	batch *batchtest.Fake
	disk  *memDisk
	eng   *Engine
	now   time.Time
}

func testTemplate(t *testing.T, numJobs int) *jobtemplate.Template {
	t.Helper()
	tpl, err := jobtemplate.Parse([]byte(fmt.Sprintf(`
script: /grid/fermiapp/uboone/merge.sh
num_jobs: %d
work_dir: %s
projects:
  - name: prod_reco
    stages:
      - name: merge
        outdir: /pnfs/uboone/scratch/out
        logdir: /pnfs/uboone/scratch/log
`, numJobs, t.TempDir())))
	require.NoError(t, err)
	return tpl
}

func newHarness(t *testing.T, opts ...func(*Config, *Deps)) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		db:    testutil.DB(t),
		cat:   catalogtest.New(),
		batch: &batchtest.Fake{},
		disk:  &memDisk{files: map[string]bool{}},
		now:   time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	log := testutil.Logger(t)
	cfg := DefaultConfig()
	deps := Deps{
		Log:      log,
		DB:       h.db,
		Groups:   merges.NewGroupRepo(h.db, log),
		Files:    merges.NewFileRepo(h.db, log),
		Items:    merges.NewItemRepo(h.db, log),
		Catalog:  h.cat,
		Batch:    h.batch,
		Disk:     h.disk,
		Template: testTemplate(t, 10),
		Now:      func() time.Time { return h.now },
	}
	for _, o := range opts {
		o(&cfg, &deps)
	}
	eng, err := New(cfg, deps)
	require.NoError(t, err)
	h.eng = eng
	return h
}

func fileMD(run int, size int64, created time.Time) map[string]any {
	return map[string]any{
		"file_type":          "data",
		"file_format":        "artroot",
		"data_tier":          "reconstructed",
		"data_stream":        "outbnb",
		"ub_project.name":    "prod_reco",
		"ub_project.stage":   "reco1",
		"ub_project.version": "v08_00_00",
		"file_size":          float64(size),
		"create_date":        created.UTC().Format(time.RFC3339),
		"runs":               []any{[]any{float64(run), float64(1), "physics"}},
		"application":        map[string]any{"family": "art", "name": "reco", "version": "v08_00_00"},
		"group":              "uboone",
	}
}

// addFile registers name in the catalog and on disk.
func (h *harness) addFile(name string, run int, size int64, age time.Duration) {
	h.cat.AddFile(name, fileMD(run, size, h.now.Add(-age)), scratch)
	h.disk.files[scratch+"/"+name] = true
}

func (h *harness) run() *Report {
	h.t.Helper()
	rep, err := h.eng.Run(h.ctx)
	require.NoError(h.t, err)
	return rep
}

func (h *harness) items() []*types.MergeItem {
	h.t.Helper()
	var out []*types.MergeItem
	require.NoError(h.t, h.db.Order("id").Find(&out).Error)
	return out
}

func (h *harness) onlyItem() *types.MergeItem {
	h.t.Helper()
	items := h.items()
	require.Len(h.t, items, 1)
	return items[0]
}

func (h *harness) unassigned() int64 {
	h.t.Helper()
	n, err := merges.NewFileRepo(h.db, testutil.Logger(h.t)).CountUnassigned(dbctx.Context{Ctx: h.ctx})
	require.NoError(h.t, err)
	return n
}

func (h *harness) fileCount() int64 {
	h.t.Helper()
	var n int64
	require.NoError(h.t, h.db.Model(&types.UnmergedFile{}).Count(&n).Error)
	return n
}

func withPhases(p Phases) func(*Config, *Deps) {
	return func(c *Config, _ *Deps) { c.Phases = p }
}

func TestRunHappyPath(t *testing.T) {
	h := newHarness(t)
	names := []string{"reco_a.root", "reco_b.root", "reco_c.root"}
	for i, n := range names {
		h.addFile(n, 5500, 600_000_000, 96*time.Hour-time.Duration(i)*time.Minute)
	}

	rep := h.run()
	assert.Equal(t, 3, rep.Discovered)
	assert.Equal(t, 1, rep.Planned)
	assert.Equal(t, 1, rep.Sweep.Submitted)

	item := h.onlyItem()
	require.Equal(t, types.StatusSubmitted, item.Status)
	assert.Equal(t, "1001.0@jobsub01.fnal.gov", item.JobID)
	assert.Contains(t, item.Name, "reco_a_20200301120000")
	assert.Equal(t, names, h.cat.DefinitionFiles(item.DefName))
	assert.Contains(t, h.cat.Projects, item.SamProject)
	require.Equal(t, 1, h.batch.Count())
	req := h.batch.Requests[0]
	assert.Equal(t, "file:///grid/fermiapp/uboone/merge.sh", req.Script)
	assert.Contains(t, req.ScriptArgs, item.DefName)
	assert.Contains(t, req.ScriptArgs, item.SamProject)

	// output declared by the job
	h.now = h.now.Add(2 * time.Hour)
	h.cat.Declare(item.Name, h.now)
	rep = h.run()
	assert.Equal(t, 0, rep.Discovered)
	assert.Equal(t, 1, rep.Sweep.Declared)
	item = h.onlyItem()
	require.Equal(t, types.StatusDeclared, item.Status)
	require.NotNil(t, item.OutputCreatedAt)

	// output reaches tape
	h.cat.AddTape(item.Name, "/pnfs/uboone/tape/merged")
	h.run()
	require.Equal(t, types.StatusLocated, h.onlyItem().Status)

	rep = h.run()
	assert.Equal(t, 3, rep.Sweep.FilesCleaned)
	require.Equal(t, types.StatusFinished, h.onlyItem().Status)
	assert.Equal(t, int64(0), h.fileCount())
	for _, n := range names {
		assert.Equal(t, 1, h.cat.Modified[n]["merge.merged"])
		assert.Empty(t, h.cat.Locations[n])
	}
	assert.ElementsMatch(t, []string{scratch + "/reco_a.root", scratch + "/reco_b.root", scratch + "/reco_c.root"}, h.disk.removed)

	rep = h.run()
	assert.Equal(t, 1, rep.Sweep.Deleted)
	assert.Equal(t, int64(1), rep.GroupsCollected)
	assert.Empty(t, h.items())

	// merged inputs are no longer listed, so nothing is rediscovered
	rep = h.run()
	assert.Equal(t, 0, rep.Discovered)
	assert.Equal(t, float64(1), promtest.ToFloat64(h.eng.Stats().Submissions.WithLabelValues("ok")))
	assert.Equal(t, float64(1), promtest.ToFloat64(h.eng.Stats().Transitions.WithLabelValues("located", "finished")))
}

func TestRunResetsItemWhenProjectEndsWithoutOutput(t *testing.T) {
	h := newHarness(t)
	h.addFile("reco_a.root", 7, 600_000_000, 96*time.Hour)
	h.addFile("reco_b.root", 7, 600_000_000, 95*time.Hour)
	h.addFile("reco_c.root", 7, 600_000_000, 94*time.Hour)
	h.run()
	item := h.onlyItem()
	require.Equal(t, types.StatusSubmitted, item.Status)

	// reco_c vanished from disk while the job ran
	delete(h.disk.files, scratch+"/reco_c.root")

	h.cat.EndProject(item.SamProject, h.now)
	h.now = h.now.Add(5 * time.Minute)
	h.eng.cfg.Phases = Phases{Submit: true}
	h.run()
	require.Equal(t, types.StatusSubmitted, h.onlyItem().Status, "still within the grace period")

	h.now = h.now.Add(6 * time.Minute)
	rep := h.run()
	assert.Equal(t, 1, rep.Sweep.Resets)
	assert.Empty(t, h.items())
	assert.Equal(t, int64(2), h.unassigned())
	assert.Equal(t, int64(2), h.fileCount())
	assert.Empty(t, h.cat.Locations["reco_c.root"])
	assert.Len(t, h.cat.Locations["reco_a.root"], 1)
	assert.Equal(t, float64(1), promtest.ToFloat64(h.eng.Stats().Resets.WithLabelValues(ResetProjectEnded)))
}

func TestRunNoBatchResetsImmediatelyAfterProjectEnds(t *testing.T) {
	h := newHarness(t, func(c *Config, _ *Deps) { c.NoBatch = true })
	h.addFile("reco_a.root", 7, 2_000_000_000, time.Hour)
	h.run()
	item := h.onlyItem()

	h.cat.EndProject(item.SamProject, h.now)
	h.now = h.now.Add(time.Second)
	h.eng.cfg.Phases = Phases{Submit: true}
	rep := h.run()
	assert.Equal(t, 1, rep.Sweep.Resets)
	assert.Equal(t, int64(1), h.unassigned())
}

func TestRunFailsOutputThatNeverReachesTape(t *testing.T) {
	h := newHarness(t)
	h.addFile("reco_a.root", 9, 1_500_000_000, time.Hour)
	h.run()
	item := h.onlyItem()
	h.cat.Declare(item.Name, h.now)
	h.run()
	require.Equal(t, types.StatusDeclared, h.onlyItem().Status)

	h.now = h.now.Add(48 * time.Hour)
	h.run()
	require.Equal(t, types.StatusDeclared, h.onlyItem().Status)

	h.now = h.now.Add(25 * time.Hour)
	h.eng.cfg.Phases = Phases{Submit: true}
	rep := h.run()
	assert.Equal(t, 1, rep.Sweep.Failed)
	assert.Equal(t, 1, rep.Sweep.Resets)
	assert.Equal(t, "bad", h.cat.Modified[item.Name]["content_status"])
	assert.Empty(t, h.items())
	assert.Equal(t, int64(1), h.unassigned())
}

func TestRunSubmissionFailureStopsProject(t *testing.T) {
	h := newHarness(t)
	h.batch.Err = errors.New("jobsub_submit: server unavailable")
	h.addFile("reco_a.root", 3, 2_000_000_000, time.Hour)

	rep := h.run()
	assert.Equal(t, 0, rep.Sweep.Submitted)
	item := h.onlyItem()
	assert.Equal(t, types.StatusReady, item.Status)
	assert.Empty(t, item.SamProject)
	require.Len(t, h.cat.Stopped, 1)
	assert.Contains(t, h.cat.Projects, h.cat.Stopped[0])
	assert.Equal(t, float64(1), promtest.ToFloat64(h.eng.Stats().Submissions.WithLabelValues("failed")))

	h.batch.Err = nil
	rep = h.run()
	assert.Equal(t, 1, rep.Sweep.Submitted)
	assert.Equal(t, types.StatusSubmitted, h.onlyItem().Status)
}

func TestRunProjectStartFailureStopsProject(t *testing.T) {
	h := newHarness(t)
	h.cat.Errs["StartProject"] = catalog.NewError("startProject", 500, false, errors.New("no station"))
	h.addFile("reco_a.root", 3, 2_000_000_000, time.Hour)

	rep := h.run()
	assert.Equal(t, 0, rep.Sweep.Submitted)
	assert.Equal(t, 0, h.batch.Count())
	require.Len(t, h.cat.Definitions, 1)
	require.Len(t, h.cat.Stopped, 1)
	assert.NotContains(t, h.cat.Projects, h.cat.Stopped[0])
	item := h.onlyItem()
	assert.Equal(t, types.StatusReady, item.Status)
	assert.Empty(t, item.SamProject)
	assert.Equal(t, float64(1), promtest.ToFloat64(h.eng.Stats().Submissions.WithLabelValues("failed")))
}

func TestRunFailedSubmissionsUseJobBudget(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *Deps) { d.Template = testTemplate(t, 2) })
	h.batch.Err = errors.New("jobsub_submit: server unavailable")
	for i := 0; i < 4; i++ {
		h.addFile(fmt.Sprintf("reco_%d.root", i), i+1, 2_000_000_000, time.Hour)
	}

	rep := h.run()
	assert.Equal(t, 4, rep.Planned)
	assert.Equal(t, 0, rep.Sweep.Submitted)
	assert.Equal(t, 2, h.batch.Count())
	assert.Equal(t, 2, h.cat.CallCount("CreateDefinition"))
	assert.Len(t, h.cat.Stopped, 2)

	h.batch.Err = nil
	rep = h.run()
	assert.Equal(t, 2, rep.Sweep.Submitted)
}

func TestRunWithoutTemplateKeepsItemsReady(t *testing.T) {
	h := newHarness(t, func(_ *Config, d *Deps) { d.Template = nil })
	h.addFile("reco_a.root", 3, 2_000_000_000, time.Hour)
	h.addFile("reco_b.root", 4, 2_000_000_000, time.Hour)

	rep := h.run()
	assert.Equal(t, 2, rep.Planned)
	assert.Equal(t, 0, h.batch.Count())
	assert.Equal(t, 0, h.cat.CallCount("CreateDefinition"))
	for _, it := range h.items() {
		assert.Equal(t, types.StatusReady, it.Status)
	}
}

func TestRunRespectsSubmissionCaps(t *testing.T) {
	t.Run("num jobs", func(t *testing.T) {
		h := newHarness(t, func(_ *Config, d *Deps) { d.Template = testTemplate(t, 1) })
		h.addFile("reco_a.root", 1, 2_000_000_000, time.Hour)
		h.addFile("reco_b.root", 2, 2_000_000_000, time.Hour)
		rep := h.run()
		assert.Equal(t, 1, rep.Sweep.Submitted)
		rep = h.run()
		assert.Equal(t, 1, rep.Sweep.Submitted)
		assert.Equal(t, 2, h.batch.Count())
	})
	t.Run("max projects", func(t *testing.T) {
		h := newHarness(t, func(c *Config, _ *Deps) { c.MaxProjects = 1 })
		h.addFile("reco_a.root", 1, 2_000_000_000, time.Hour)
		h.addFile("reco_b.root", 2, 2_000_000_000, time.Hour)
		h.run()
		h.run()
		assert.Equal(t, 1, h.batch.Count(), "first item is still in flight")
	})
}

func TestDiscoveryIsIdempotent(t *testing.T) {
	h := newHarness(t, withPhases(Phases{Discover: true}))
	h.addFile("reco_a.root", 1, 100, time.Hour)
	h.addFile("reco_b.root", 1, 100, time.Hour)

	added, err := h.eng.DiscoverEligibleFiles(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"reco_a.root", "reco_b.root"}, added)

	added, err = h.eng.DiscoverEligibleFiles(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Equal(t, int64(2), h.fileCount())
	assert.Equal(t, 0, h.cat.CallCount("ModifyMetadata"))
	assert.Equal(t, "merge.merge 1 and merge.merged 0 with availability physical with limit 1000", h.cat.Queries[0])
}

func TestDiscoverySkipsBadMetadataAndCatalogOutages(t *testing.T) {
	h := newHarness(t)
	h.addFile("reco_a.root", 1, 100, time.Hour)
	h.addFile("reco_b.root", 1, 100, time.Hour)
	delete(h.cat.Metadata["reco_b.root"], "data_tier")

	added, err := h.eng.DiscoverEligibleFiles(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"reco_a.root"}, added)
	assert.Equal(t, float64(1), promtest.ToFloat64(h.eng.Stats().FilesSkipped))

	h.cat.Errs["ListFiles"] = catalog.NewError("listFiles", 503, true, errors.New("unavailable"))
	added, err = h.eng.DiscoverEligibleFiles(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, added)
}

func TestDiscoveryLimits(t *testing.T) {
	t.Run("max groups", func(t *testing.T) {
		h := newHarness(t, func(c *Config, _ *Deps) { c.MaxGroups = 1 })
		h.addFile("run1_a.root", 1, 100, time.Hour)
		h.addFile("run2_a.root", 2, 100, time.Hour)
		h.addFile("run1_b.root", 1, 100, time.Hour)

		added, err := h.eng.DiscoverEligibleFiles(h.ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"run1_a.root", "run1_b.root"}, added)

		added, err = h.eng.DiscoverEligibleFiles(h.ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"run2_a.root"}, added)
	})
	t.Run("file limit", func(t *testing.T) {
		h := newHarness(t, func(c *Config, _ *Deps) { c.FileLimit = 2 })
		for i := 0; i < 4; i++ {
			h.addFile(fmt.Sprintf("reco_%d.root", i), 1, 100, time.Hour)
		}
		added, err := h.eng.DiscoverEligibleFiles(h.ctx)
		require.NoError(t, err)
		assert.Len(t, added, 2)
	})
}

func TestClassifyFileIsDeterministic(t *testing.T) {
	h := newHarness(t)
	a, err := catalog.ParseMetadata(withName(fileMD(5, 1, h.now), "a.root"))
	require.NoError(t, err)
	b, err := catalog.ParseMetadata(withName(fileMD(5, 2, h.now.Add(-time.Hour)), "b.root"))
	require.NoError(t, err)

	ga, created, err := h.eng.ClassifyFile(h.ctx, a)
	require.NoError(t, err)
	assert.True(t, created)
	gb, created, err := h.eng.ClassifyFile(h.ctx, b)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, ga, gb)

	cases := []struct {
		field string
		value any
	}{
		{"file_type", "mc"},
		{"file_format", "root"},
		{"data_tier", "merged"},
		{"data_stream", "outext"},
		{"ub_project.name", "prod_other"},
		{"ub_project.stage", "reco2"},
		{"ub_project.version", "v08_00_01"},
		{"runs", []any{[]any{float64(6), float64(1), "physics"}}},
	}
	seen := map[uint]string{ga: "base"}
	for _, tc := range cases {
		t.Run(tc.field, func(t *testing.T) {
			raw := withName(fileMD(5, 1, h.now), "x_"+tc.field+".root")
			raw[tc.field] = tc.value
			md, err := catalog.ParseMetadata(raw)
			require.NoError(t, err)

			gid, created, err := h.eng.ClassifyFile(h.ctx, md)
			require.NoError(t, err)
			assert.True(t, created)
			assert.NotContains(t, seen, gid)
			seen[gid] = tc.field

			again, created, err := h.eng.ClassifyFile(h.ctx, md)
			require.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, gid, again)
		})
	}
}

func withName(md map[string]any, name string) map[string]any {
	md["file_name"] = name
	return md
}

func TestPlanMergesAssignsEachFileOnce(t *testing.T) {
	h := newHarness(t, withPhases(Phases{Discover: true}))
	for i := 0; i < 5; i++ {
		h.addFile(fmt.Sprintf("reco_%d.root", i), 1, 1_000_000_000, 100*time.Hour-time.Duration(i)*time.Minute)
	}
	rep := h.run()
	assert.Equal(t, 3, rep.Planned)
	assert.Equal(t, int64(0), h.unassigned())

	plans, err := h.eng.PlanMerges(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, plans)

	seen := map[uint]bool{}
	for _, it := range h.items() {
		members, err := merges.NewFileRepo(h.db, testutil.Logger(t)).ListByItem(dbctx.Context{Ctx: h.ctx}, it.ID)
		require.NoError(t, err)
		var size int64
		for _, m := range members {
			assert.False(t, seen[m.ID])
			seen[m.ID] = true
			size += m.Size
		}
		assert.LessOrEqual(t, size, DefaultMaxSize)
	}
	assert.Len(t, seen, 5)
}

func TestPackBatches(t *testing.T) {
	now := time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC)
	mk := func(sizes ...int64) []*types.UnmergedFile {
		var out []*types.UnmergedFile
		for i, s := range sizes {
			out = append(out, &types.UnmergedFile{ID: uint(i + 1), Size: s, CreateDate: now.Add(-time.Hour)})
		}
		return out
	}
	lens := func(batches [][]*types.UnmergedFile) []int {
		var out []int
		for _, b := range batches {
			out = append(out, len(b))
		}
		return out
	}

	assert.Equal(t, []int{2, 2}, lens(PackBatches(mk(10, 10, 10, 10), 25, 15, 0, 72*time.Hour, now)))
	assert.Equal(t, []int{2}, lens(PackBatches(mk(10, 10, 10), 25, 15, 0, 72*time.Hour, now)), "trailing batch below min size waits")
	assert.Equal(t, []int{1, 1}, lens(PackBatches(mk(40, 10), 25, 0, 0, 72*time.Hour, now)), "oversized file goes alone")
	assert.Equal(t, []int{2, 2, 1}, lens(PackBatches(mk(1, 1, 1, 1, 1), 100, 0, 2, 72*time.Hour, now)))
	assert.Nil(t, PackBatches(mk(1, 1), 100, 50, 0, 72*time.Hour, now))

	old := mk(1, 1)
	old[1].CreateDate = now.Add(-100 * time.Hour)
	assert.Equal(t, []int{2}, lens(PackBatches(old, 100, 50, 0, 72*time.Hour, now)), "old files are flushed")
}

func TestSubmittedItemWithTransientCatalogErrorIsLeftAlone(t *testing.T) {
	h := newHarness(t, withPhases(Phases{Submit: true}))
	g := testutil.SeedGroup(t, h.ctx, h.db, testutil.Key(1))
	f := testutil.SeedFile(t, h.ctx, h.db, g.ID, "reco_a.root", 10, h.now)
	item := testutil.SeedItem(t, h.ctx, h.db, g.ID, types.StatusSubmitted, f.ID)
	require.NoError(t, h.db.Model(item).Updates(map[string]interface{}{"name": "out.root", "sam_project": "p1"}).Error)

	h.cat.Errs["GetMetadata:out.root"] = catalog.NewError("getMetadata", 503, true, errors.New("unavailable"))
	h.run()
	assert.Equal(t, types.StatusSubmitted, h.onlyItem().Status)
	assert.Equal(t, 0, h.cat.CallCount("ProjectSummary"))

	delete(h.cat.Errs, "GetMetadata:out.root")
	h.cat.Errs["ProjectSummary"] = catalog.NewError("projectSummary", 502, true, errors.New("bad gateway"))
	h.run()
	assert.Equal(t, types.StatusSubmitted, h.onlyItem().Status)

	delete(h.cat.Errs, "ProjectSummary")
	h.run()
	assert.Empty(t, h.items(), "unknown project resets the item")
	assert.Equal(t, float64(1), promtest.ToFloat64(h.eng.Stats().Resets.WithLabelValues(ResetProjectMissing)))
}

func TestSubmittedItemWithIncompleteOutputMetadataIsDeclared(t *testing.T) {
	h := newHarness(t)
	h.addFile("reco_a.root", 3, 2_000_000_000, time.Hour)
	h.run()
	item := h.onlyItem()
	require.Equal(t, types.StatusSubmitted, item.Status)

	h.cat.Metadata[item.Name] = map[string]any{"file_name": item.Name}
	rep := h.run()
	assert.Equal(t, 1, rep.Sweep.Declared)
	item = h.onlyItem()
	assert.Equal(t, types.StatusDeclared, item.Status)
	require.NotNil(t, item.OutputCreatedAt)
	assert.True(t, h.now.Equal(*item.OutputCreatedAt))
}

func TestSubmittedItemWithoutProjectIsReset(t *testing.T) {
	h := newHarness(t, withPhases(Phases{Submit: true}))
	h.addFile("reco_a.root", 1, 10, time.Hour)
	g := testutil.SeedGroup(t, h.ctx, h.db, testutil.Key(1))
	kept := testutil.SeedFile(t, h.ctx, h.db, g.ID, "reco_a.root", 10, h.now)
	gone := testutil.SeedFile(t, h.ctx, h.db, g.ID, "reco_b.root", 10, h.now)
	item := testutil.SeedItem(t, h.ctx, h.db, g.ID, types.StatusSubmitted, kept.ID, gone.ID)
	require.NoError(t, h.db.Model(item).Update("sam_project", "  ").Error)

	rep := h.run()
	assert.Equal(t, 1, rep.Sweep.Resets)
	assert.Empty(t, h.items())
	assert.Equal(t, int64(1), h.unassigned())
	assert.Equal(t, int64(1), h.fileCount(), "member without any location is dropped")
	assert.Equal(t, 0, h.cat.CallCount("ProjectSummary"))
}

func TestLocatedCleanupRetriesFailedMembers(t *testing.T) {
	h := newHarness(t, withPhases(Phases{Cleanup: true}))
	g := testutil.SeedGroup(t, h.ctx, h.db, testutil.Key(1))
	var ids []uint
	for _, n := range []string{"reco_a.root", "reco_b.root"} {
		h.addFile(n, 1, 10, time.Hour)
		ids = append(ids, testutil.SeedFile(t, h.ctx, h.db, g.ID, n, 10, h.now).ID)
	}
	testutil.SeedItem(t, h.ctx, h.db, g.ID, types.StatusLocated, ids...)

	h.cat.Errs["RemoveFileLocation:reco_b.root"] = catalog.NewError("removeFileLocation", 500, true, errors.New("boom"))
	rep := h.run()
	assert.Equal(t, 1, rep.Sweep.FilesCleaned)
	assert.Equal(t, types.StatusLocated, h.onlyItem().Status)
	assert.Equal(t, int64(1), h.fileCount())

	delete(h.cat.Errs, "RemoveFileLocation:reco_b.root")
	rep = h.run()
	assert.Equal(t, 1, rep.Sweep.Finished)
	assert.Equal(t, types.StatusFinished, h.onlyItem().Status)
	assert.Equal(t, int64(0), h.fileCount())
}

func TestSubmitRejectsItemsThatAreNotReady(t *testing.T) {
	h := newHarness(t)
	g := testutil.SeedGroup(t, h.ctx, h.db, testutil.Key(1))
	f := testutil.SeedFile(t, h.ctx, h.db, g.ID, "reco_a.root", 10, h.now)
	item := testutil.SeedItem(t, h.ctx, h.db, g.ID, types.StatusDeclared, f.ID)

	_, err := h.eng.Submit(h.ctx, item.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	assert.Equal(t, 0, h.batch.Count())

	_, err = h.eng.Submit(h.ctx, item.ID+100)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	empty := testutil.SeedItem(t, h.ctx, h.db, g.ID, types.StatusReady)
	res, err := h.eng.Submit(h.ctx, empty.ID)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Len(t, h.items(), 1)
}
