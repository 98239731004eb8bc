package processor

import (
	"time"

	"github.com/TransitTrack/transittrack/business/data/avl"
	"github.com/TransitTrack/transittrack/business/data/gtfs"
)

// autoBlockAssigner places vehicles that report no assignment by trying
// every active block nobody else holds. Only a confident fix is accepted: at
// or near the block geometry, inside adherence bounds and away from
// layovers, where many blocks overlap.
type autoBlockAssigner struct {
	index     *gtfs.Index
	cfg       *Config
	spatial   SpatialMatcher
	temporal  TemporalMatcher
	snapshots SnapshotCache
}

func newAutoBlockAssigner(index *gtfs.Index, cfg *Config, spatial SpatialMatcher,
	temporal TemporalMatcher, snapshots SnapshotCache) *autoBlockAssigner {

	return &autoBlockAssigner{
		index:     index,
		cfg:       cfg,
		spatial:   spatial,
		temporal:  temporal,
		snapshots: snapshots,
	}
}

func (aa *autoBlockAssigner) MatchForUnassigned(status *VehicleStatus,
	report *avl.Report) (*avl.TemporalMatch, *gtfs.Block) {

	var bestMatch *avl.TemporalMatch
	var bestBlock *gtfs.Block
	for _, serviceDate := range aa.candidateServiceDates(report.Time) {
		active := make(map[string]bool)
		for _, serviceId := range aa.index.ActiveServiceIds(serviceDate) {
			active[serviceId] = true
		}
		for _, block := range aa.index.Blocks() {
			if !active[block.ServiceId] {
				continue
			}
			if !block.IsActiveAt(report.Time, serviceDate, aa.cfg.BlockActiveBefore, aa.cfg.BlockActiveAfter) {
				continue
			}
			if len(aa.snapshots.VehicleIdsForBlock(block.BlockId)) > 0 {
				continue
			}
			spatials := aa.spatial.MatchesForBlock(report, block)
			match := aa.temporal.BestTemporalMatch(report, block, serviceDate, spatials)
			if match == nil || match.AtLayover {
				continue
			}
			if bestMatch == nil || match.Deviation.BetterThan(bestMatch.Deviation, aa.cfg.EarlyToLateRatio) {
				bestMatch = match
				bestBlock = block
			}
		}
	}
	return bestMatch, bestBlock
}

func (aa *autoBlockAssigner) candidateServiceDates(at time.Time) []time.Time {
	local := at
	if aa.index.Location != nil {
		local = at.In(aa.index.Location)
	}
	today := gtfs.Get12AmTime(local)
	return []time.Time{today.AddDate(0, 0, -1), today}
}
