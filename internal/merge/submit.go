package merge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/yungbote/samerge/internal/batch"
	"github.com/yungbote/samerge/internal/catalog"
	types "github.com/yungbote/samerge/internal/domain/merge"
	"github.com/yungbote/samerge/internal/pkg/dbctx"
	apperrors "github.com/yungbote/samerge/internal/pkg/errors"
)

type SubmitResult struct {
	JobID      string
	Project    string
	DefName    string
	OutputName string
}

// Submit launches the merge job for a READY item: it creates a catalog
// definition over the members, starts a project on it and hands the job to
// the batch system. The item becomes SUBMITTED only once all of that
// succeeded; on failure it stays READY and any started project is stopped.
// A READY item without members is deleted and (nil, nil) is returned.
func (e *Engine) Submit(ctx context.Context, itemID uint) (*SubmitResult, error) {
	sel, err := e.tpl.Select(e.cfg.Project, e.cfg.Stage)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	item, err := e.items.GetByID(dbc, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, fmt.Errorf("%w: item %d", apperrors.ErrNotFound, itemID)
	}
	if _, err := Next(ctx, item.Status, EventBeginSubmit); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err)
	}
	log := e.log.With("item_id", item.ID, "group_id", item.GroupID)

	members, err := e.files.ListByItem(dbc, item.ID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		log.Warn("deleting work item without members")
		return nil, e.items.Delete(dbc, item.ID)
	}
	group, err := e.groups.GetByID(dbc, item.GroupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, fmt.Errorf("%w: group %d of item %d", apperrors.ErrNotFound, item.GroupID, item.ID)
	}

	md, err := e.cat.GetMetadata(ctx, members[0].Name)
	if err != nil {
		e.stats.Submissions.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("metadata of %s: %w", members[0].Name, err)
	}

	names := make([]string, 0, len(members))
	seen := map[string]bool{}
	var parents []string
	for _, m := range members {
		names = append(names, m.Name)
		for _, p := range m.Parents {
			if !seen[p] {
				seen[p] = true
				parents = append(parents, p)
			}
		}
	}

	now := e.now()
	output := OutputName(members[0].Name, now, e.newID())
	fcl, err := RenderFCL(JobConfig{
		AppFamily:  md.Application.Family,
		AppVersion: md.Application.Version,
		FileType:   group.FileType,
		Group:      md.Group,
		RunType:    md.RunType(),
		DataTier:   group.DataTier,
		DataStream: group.DataStream,
		OutputName: output,
		Parents:    parents,
	})
	if err != nil {
		e.stats.Submissions.WithLabelValues("failed").Inc()
		return nil, err
	}

	defname := DefinitionName(e.newID())
	if err := e.cat.CreateDefinition(ctx, defname, catalog.FileNameDims(names)); err != nil {
		e.stats.Submissions.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("create definition %s: %w", defname, err)
	}
	project := ProjectName(defname, now)
	res := &SubmitResult{Project: project, DefName: defname, OutputName: output}

	fail := func(err error) (*SubmitResult, error) {
		if stopErr := e.cat.StopProject(ctx, project); stopErr != nil && !catalog.IsNotFound(stopErr) {
			log.Warn("stopping project after failed submission", "project", project, "error", stopErr)
		}
		e.stats.Submissions.WithLabelValues("failed").Inc()
		return nil, err
	}

	if err := e.cat.StartProject(ctx, project, defname); err != nil {
		return fail(fmt.Errorf("start project %s: %w", project, err))
	}

	fclName := fmt.Sprintf("merge_%d.fcl", item.ID)
	archive, err := BuildArchive(sel.WorkDir, []ArchiveEntry{{Name: fclName, Body: fcl}}, sel.Helpers(), now)
	if err != nil {
		return fail(err)
	}
	defer os.Remove(archive)

	script := sel.Script
	if !strings.Contains(script, "://") {
		script = "file://" + script
	}
	out, err := e.batch.Submit(ctx, batch.Request{
		Script:     script,
		Archive:    archive,
		Options:    sel.SchedulerOptions(),
		ScriptArgs: sel.ScriptArgs(fclName, defname, project),
	})
	if err != nil {
		return fail(fmt.Errorf("submit job: %w", err))
	}
	res.JobID = out.JobID

	ok, err := e.items.TransitionStatus(dbc, item.ID, types.StatusReady, types.StatusSubmitted, map[string]interface{}{
		"name":        output,
		"job_id":      out.JobID,
		"defname":     defname,
		"sam_project": project,
		"submit_time": now,
	})
	if err == nil && !ok {
		err = errors.New("item left ready status during submission")
	}
	if err != nil {
		log.Error("job submitted but item not updated", "job_id", out.JobID, "project", project, "error", err)
		return fail(fmt.Errorf("record submission of item %d: %w", item.ID, err))
	}
	e.stats.transition(types.StatusReady, types.StatusSubmitted)
	e.stats.Submissions.WithLabelValues("ok").Inc()
	log.Info("merge job submitted",
		"job_id", out.JobID,
		"project", project,
		"defname", defname,
		"output", output,
		"files", len(members),
	)
	return res, nil
}
