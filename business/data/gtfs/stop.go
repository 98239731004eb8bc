package gtfs

// Stop is a scheduled stop location.
type Stop struct {
	StopId    string  `db:"stop_id"`
	DataSetId int64   `db:"data_set_id"`
	Name      string  `db:"name"`
	Latitude  float64 `db:"latitude"`
	Longitude float64 `db:"longitude"`
}

// Route groups trips riders see as one line.
type Route struct {
	RouteId   string `db:"route_id"`
	DataSetId int64  `db:"data_set_id"`
	ShortName string `db:"short_name"`
	LongName  string `db:"long_name"`
}
