package processor

import (
	"time"

	"github.com/TransitTrack/transittrack/business/data/avl"
	"github.com/TransitTrack/transittrack/business/data/gtfs"
)

// scheduleBlockAssigner resolves feed assignments against the loaded
// schedule. A block assignment can run under yesterday's service date when
// its schedule spans midnight, so both dates are tried.
type scheduleBlockAssigner struct {
	index *gtfs.Index
	cfg   *Config
}

func newScheduleBlockAssigner(index *gtfs.Index, cfg *Config) *scheduleBlockAssigner {
	return &scheduleBlockAssigner{index: index, cfg: cfg}
}

// candidateServiceDates lists the service dates a report time could belong
// to, yesterday first since late night trips carry the earlier date.
func (a *scheduleBlockAssigner) candidateServiceDates(at time.Time) []time.Time {
	local := at
	if a.index.Location != nil {
		local = at.In(a.index.Location)
	}
	today := gtfs.Get12AmTime(local)
	return []time.Time{today.AddDate(0, 0, -1), today}
}

func (a *scheduleBlockAssigner) BlockForAssignment(report *avl.Report) (*gtfs.Block, time.Time, bool) {
	if !report.HasAssignment() {
		return nil, time.Time{}, false
	}
	blockId := report.AssignmentId
	wantServiceId := ""
	switch report.AssignmentType {
	case avl.AssignmentBlock, avl.AssignmentPrevious:
	case avl.AssignmentTrip:
		trip, ok := a.index.Trip(report.AssignmentId)
		if !ok {
			return nil, time.Time{}, false
		}
		blockId = trip.BlockId
		wantServiceId = trip.ServiceId
	default:
		return nil, time.Time{}, false
	}
	for _, serviceDate := range a.candidateServiceDates(report.Time) {
		for _, serviceId := range a.index.ActiveServiceIds(serviceDate) {
			if len(wantServiceId) > 0 && serviceId != wantServiceId {
				continue
			}
			block, ok := a.index.Block(serviceId, blockId)
			if !ok {
				continue
			}
			if block.IsActiveAt(report.Time, serviceDate, a.cfg.BlockActiveBefore, a.cfg.BlockActiveAfter) {
				return block, serviceDate, true
			}
		}
	}
	return nil, time.Time{}, false
}

func (a *scheduleBlockAssigner) RouteForAssignment(report *avl.Report) (string, bool) {
	if !report.HasAssignment() || report.AssignmentType != avl.AssignmentRoute {
		return "", false
	}
	route, ok := a.index.Route(report.AssignmentId)
	if !ok {
		return "", false
	}
	return route.RouteId, true
}

func (a *scheduleBlockAssigner) HasNewAssignment(report *avl.Report, status *VehicleStatus) bool {
	if !report.HasAssignment() {
		return false
	}
	return report.AssignmentId != status.AssignmentId
}
