package merge

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	types "github.com/yungbote/samerge/internal/domain/merge"
)

const (
	EventBeginSubmit = "begin_submit"
	EventSubmitted   = "submitted"
	EventAbortSubmit = "abort_submit"
	EventDeclare     = "declare"
	EventLocate      = "locate"
	EventFinish      = "finish"
	EventFail        = "fail"
	EventReset       = "reset"
)

var (
	sReady      = types.StatusReady.String()
	sSubmitting = types.StatusSubmitting.String()
	sSubmitted  = types.StatusSubmitted.String()
	sDeclared   = types.StatusDeclared.String()
	sLocated    = types.StatusLocated.String()
	sFinished   = types.StatusFinished.String()
	sError      = types.StatusError.String()
)

// transitions is the complete lifecycle of a work item. Reset lands in ready
// because the member files return to the planner; the item row itself is
// deleted.
var transitions = fsm.Events{
	{Name: EventBeginSubmit, Src: []string{sReady}, Dst: sSubmitting},
	{Name: EventSubmitted, Src: []string{sSubmitting}, Dst: sSubmitted},
	{Name: EventAbortSubmit, Src: []string{sSubmitting}, Dst: sReady},
	{Name: EventDeclare, Src: []string{sSubmitted}, Dst: sDeclared},
	{Name: EventLocate, Src: []string{sDeclared}, Dst: sLocated},
	{Name: EventFinish, Src: []string{sLocated}, Dst: sFinished},
	{Name: EventFail, Src: []string{sSubmitted, sDeclared, sLocated}, Dst: sError},
	{Name: EventReset, Src: []string{sSubmitted, sDeclared, sError}, Dst: sReady},
}

// Next validates event against the lifecycle and returns the target status.
func Next(ctx context.Context, from types.Status, event string) (types.Status, error) {
	machine := fsm.NewFSM(from.String(), transitions, fsm.Callbacks{})
	if err := machine.Event(ctx, event); err != nil {
		return from, fmt.Errorf("lifecycle %s on %s: %w", event, from, err)
	}
	return types.ParseStatus(machine.Current())
}

// Can reports whether event is allowed from status.
func Can(from types.Status, event string) bool {
	return fsm.NewFSM(from.String(), transitions, fsm.Callbacks{}).Can(event)
}
