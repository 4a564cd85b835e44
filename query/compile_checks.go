package query

import (
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-tmsync/breaker"
	"github.com/goliatone/go-tmsync/core"
)

var (
	_ gocmd.Querier[LoadWatermarkMessage, time.Time]               = (*LoadWatermarkQuery)(nil)
	_ gocmd.Querier[GetBreakerStateMessage, breaker.State]         = (*GetBreakerStateQuery)(nil)
	_ gocmd.Querier[ListRequestLogMessage, []core.RequestLogEntry] = (*ListRequestLogQuery)(nil)
	_ gocmd.Querier[LatestPollRunMessage, core.PollRun]            = (*LatestPollRunQuery)(nil)
	_ gocmd.Querier[FindRecordsMessage, []core.Record]             = (*FindRecordsQuery)(nil)

	_ RequestLogReader = core.RequestLogStore(nil)
	_ PollRunReader    = core.PollRunStore(nil)
	_ RecordReader     = core.RecordStore(nil)
)
