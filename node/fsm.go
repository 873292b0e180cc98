package node

import (
	"context"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// Controller states. Following is normal block processing; RollingBack is
// held for the duration of an operator rewind.
const (
	StateFollowing   = "following"
	StateRollingBack = "rolling_back"

	eventRollback = "rollback"
	eventResume   = "resume"
)

func newControllerFSM(log *zap.SugaredLogger) *fsm.FSM {
	return fsm.NewFSM(
		StateFollowing,
		fsm.Events{
			{Name: eventRollback, Src: []string{StateFollowing}, Dst: StateRollingBack},
			{Name: eventResume, Src: []string{StateRollingBack}, Dst: StateFollowing},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debugf("controller %s -> %s", e.Src, e.Dst)
			},
		},
	)
}
