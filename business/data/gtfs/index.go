package gtfs

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Index is the in-memory arena of one data set's schedule, shared read-only
// by every vehicle worker. Lookups never mutate it.
type Index struct {
	DataSetId int64
	Location  *time.Location

	blocks        map[string]*Block
	allBlocks     []*Block
	trips         map[string]*Trip
	stops         map[string]*Stop
	routes        map[string]*Route
	blocksByRoute map[string][]*Block
	calendar      *ServiceCalendar
}

func blockKey(serviceId, blockId string) string {
	return serviceId + "\x1f" + blockId
}

// NewIndex assembles an Index from already built schedule data. The loader
// and tests both use it.
func NewIndex(
	dataSetId int64,
	location *time.Location,
	blocks []*Block,
	stops []*Stop,
	routes []*Route,
	calendar *ServiceCalendar) *Index {

	index := Index{
		DataSetId:     dataSetId,
		Location:      location,
		blocks:        make(map[string]*Block),
		trips:         make(map[string]*Trip),
		stops:         make(map[string]*Stop),
		routes:        make(map[string]*Route),
		blocksByRoute: make(map[string][]*Block),
		calendar:      calendar,
	}
	index.allBlocks = blocks
	for _, block := range blocks {
		index.blocks[blockKey(block.ServiceId, block.BlockId)] = block
		seenRoutes := make(map[string]bool)
		for tripIndex, trip := range block.Trips {
			trip.TripIndex = tripIndex
			index.trips[trip.TripId] = trip
			if !seenRoutes[trip.RouteId] {
				seenRoutes[trip.RouteId] = true
				routeKey := blockKey(block.ServiceId, trip.RouteId)
				index.blocksByRoute[routeKey] = append(index.blocksByRoute[routeKey], block)
			}
		}
	}
	for _, stop := range stops {
		index.stops[stop.StopId] = stop
	}
	for _, route := range routes {
		index.routes[route.RouteId] = route
	}
	return &index
}

// Block finds the block for serviceId and blockId.
func (x *Index) Block(serviceId, blockId string) (*Block, bool) {
	block, ok := x.blocks[blockKey(serviceId, blockId)]
	return block, ok
}

// Trip finds a trip by trip id.
func (x *Index) Trip(tripId string) (*Trip, bool) {
	trip, ok := x.trips[tripId]
	return trip, ok
}

// Stop finds a stop by stop id.
func (x *Index) Stop(stopId string) (*Stop, bool) {
	stop, ok := x.stops[stopId]
	return stop, ok
}

// Route finds a route by route id.
func (x *Index) Route(routeId string) (*Route, bool) {
	route, ok := x.routes[routeId]
	return route, ok
}

// Blocks lists every block in the data set.
func (x *Index) Blocks() []*Block {
	return x.allBlocks
}

// BlocksForRoute lists the blocks that serve routeId under serviceId.
func (x *Index) BlocksForRoute(serviceId, routeId string) []*Block {
	return x.blocksByRoute[blockKey(serviceId, routeId)]
}

// ActiveServiceIds produces the service ids running on date.
func (x *Index) ActiveServiceIds(date time.Time) []string {
	if x.calendar == nil {
		return nil
	}
	return x.calendar.ActiveServiceIds(date)
}

// tripRow is the flat shape LoadIndex reads trips in.
type tripRow struct {
	TripId      string `db:"trip_id"`
	ServiceId   string `db:"service_id"`
	BlockId     string `db:"block_id"`
	RouteId     string `db:"route_id"`
	Headsign    string `db:"headsign"`
	DirectionId string `db:"direction_id"`
	NoSchedule  bool   `db:"no_schedule"`
}

// LoadIndex reads the full schedule for dataSetId from the database and
// assembles the arena. Blocks order their trips by first departure.
func LoadIndex(db *sqlx.DB, dataSetId int64, location *time.Location, observeHolidays bool) (*Index, error) {
	var tripRows []tripRow
	err := db.Select(&tripRows, db.Rebind(
		"select trip_id, service_id, block_id, route_id, headsign, direction_id, no_schedule "+
			"from trip where data_set_id = ? order by service_id, block_id, start_seconds"), dataSetId)
	if err != nil {
		return nil, fmt.Errorf("loading trips for data set %d: %w", dataSetId, err)
	}

	blockByKey := make(map[string]*Block)
	var blocks []*Block
	tripById := make(map[string]*Trip)
	for _, row := range tripRows {
		key := blockKey(row.ServiceId, row.BlockId)
		block, ok := blockByKey[key]
		if !ok {
			block = &Block{
				DataSetId:  dataSetId,
				ServiceId:  row.ServiceId,
				BlockId:    row.BlockId,
				NoSchedule: row.NoSchedule,
			}
			blockByKey[key] = block
			blocks = append(blocks, block)
		}
		trip := Trip{
			TripId:      row.TripId,
			DataSetId:   dataSetId,
			ServiceId:   row.ServiceId,
			BlockId:     row.BlockId,
			RouteId:     row.RouteId,
			Headsign:    row.Headsign,
			DirectionId: row.DirectionId,
		}
		block.Trips = append(block.Trips, &trip)
		tripById[row.TripId] = &trip
	}

	if err = loadStopPaths(db, dataSetId, tripById); err != nil {
		return nil, err
	}

	var stops []*Stop
	err = db.Select(&stops, db.Rebind(
		"select stop_id, data_set_id, name, latitude, longitude from stop where data_set_id = ?"), dataSetId)
	if err != nil {
		return nil, fmt.Errorf("loading stops for data set %d: %w", dataSetId, err)
	}

	var routes []*Route
	err = db.Select(&routes, db.Rebind(
		"select route_id, data_set_id, short_name, long_name from route where data_set_id = ?"), dataSetId)
	if err != nil {
		return nil, fmt.Errorf("loading routes for data set %d: %w", dataSetId, err)
	}

	calendar, err := loadServiceCalendar(db, dataSetId, observeHolidays)
	if err != nil {
		return nil, err
	}

	return NewIndex(dataSetId, location, blocks, stops, routes, calendar), nil
}

func loadStopPaths(db *sqlx.DB, dataSetId int64, tripById map[string]*Trip) error {
	rows, err := db.Queryx(db.Rebind(
		"select trip_id, stop_id, stop_path_index, length, arrival_seconds, departure_seconds, "+
			"wait_stop, last_stop_in_trip "+
			"from stop_path where data_set_id = ? order by trip_id, stop_path_index"), dataSetId)
	if err != nil {
		return fmt.Errorf("loading stop paths for data set %d: %w", dataSetId, err)
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var tripId string
		path := StopPath{}
		err = rows.Scan(&tripId, &path.StopId, &path.StopPathIndex, &path.Length,
			&path.ArrivalSeconds, &path.DepartureSeconds, &path.WaitStop, &path.LastStopInTrip)
		if err != nil {
			return fmt.Errorf("scanning stop path: %w", err)
		}
		trip, ok := tripById[tripId]
		if !ok {
			continue
		}
		trip.StopPaths = append(trip.StopPaths, &path)
	}
	return rows.Err()
}

func loadServiceCalendar(db *sqlx.DB, dataSetId int64, observeHolidays bool) (*ServiceCalendar, error) {
	var calendars []Calendar
	err := db.Select(&calendars, db.Rebind(
		"select service_id, data_set_id, monday, tuesday, wednesday, thursday, friday, saturday, sunday, "+
			"start_date, end_date from calendar where data_set_id = ?"), dataSetId)
	if err != nil {
		return nil, fmt.Errorf("loading calendar for data set %d: %w", dataSetId, err)
	}
	var dates []CalendarDate
	err = db.Select(&dates, db.Rebind(
		"select service_id, data_set_id, date, exception_type from calendar_date where data_set_id = ?"), dataSetId)
	if err != nil {
		return nil, fmt.Errorf("loading calendar dates for data set %d: %w", dataSetId, err)
	}
	return NewServiceCalendar(calendars, dates, observeHolidays), nil
}
