package vehicleapi

import (
	"encoding/json"
	logger "log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/TransitTrack/transittrack/business/data/avl"
	"github.com/matryer/is"
)

type fixedSnapshots struct {
	vehicles map[string]*avl.VehicleSnapshot
	byBlock  map[string][]string
}

func (f *fixedSnapshots) Vehicle(vehicleId string) (*avl.VehicleSnapshot, bool) {
	snapshot, ok := f.vehicles[vehicleId]
	return snapshot, ok
}

func (f *fixedSnapshots) Vehicles() []*avl.VehicleSnapshot {
	result := make([]*avl.VehicleSnapshot, 0, len(f.vehicles))
	for _, snapshot := range f.vehicles {
		result = append(result, snapshot)
	}
	return result
}

func (f *fixedSnapshots) VehicleIdsForBlock(blockId string) []string {
	return f.byBlock[blockId]
}

type fixedWatermark struct {
	report *avl.Report
}

func (f *fixedWatermark) Watermark() *avl.Report {
	return f.report
}

func testServer(snapshots SnapshotReader, watermark WatermarkSource) *http.Server {
	log := logger.New(os.Stdout, "TEST : ", logger.LstdFlags)
	return createServer(log, snapshots, watermark, 5*time.Minute, nil, 8080)
}

func TestWebService_Vehicles(t *testing.T) {
	is := is.New(t)
	snapshots := &fixedSnapshots{
		vehicles: map[string]*avl.VehicleSnapshot{
			"101": {VehicleId: "101", BlockId: "9020", Predictable: true},
			"102": {VehicleId: "102", BlockId: "9020", Predictable: true},
		},
		byBlock: map[string][]string{"9020": {"101", "102"}},
	}
	srv := testServer(snapshots, &fixedWatermark{})

	recorder := httptest.NewRecorder()
	srv.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/vehicles", nil))
	is.Equal(recorder.Code, http.StatusOK)
	var wrapper JsonVehicleResponseWrapper
	is.NoErr(json.Unmarshal(recorder.Body.Bytes(), &wrapper))
	is.Equal(len(wrapper.Vehicles), 2)

	recorder = httptest.NewRecorder()
	srv.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/vehicles/101", nil))
	is.Equal(recorder.Code, http.StatusOK)
	var snapshot avl.VehicleSnapshot
	is.NoErr(json.Unmarshal(recorder.Body.Bytes(), &snapshot))
	is.Equal(snapshot.VehicleId, "101")

	recorder = httptest.NewRecorder()
	srv.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/vehicles/999", nil))
	is.Equal(recorder.Code, http.StatusNotFound)

	recorder = httptest.NewRecorder()
	srv.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/vehicles/block/9020", nil))
	is.Equal(recorder.Code, http.StatusOK)
	is.NoErr(json.Unmarshal(recorder.Body.Bytes(), &wrapper))
	is.Equal(len(wrapper.Vehicles), 2)
}

func TestWebService_Status(t *testing.T) {
	is := is.New(t)
	snapshots := &fixedSnapshots{}

	// no reports seen yet
	srv := testServer(snapshots, &fixedWatermark{})
	recorder := httptest.NewRecorder()
	srv.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/status", nil))
	is.Equal(recorder.Code, http.StatusServiceUnavailable)

	// fresh report
	srv = testServer(snapshots, &fixedWatermark{report: &avl.Report{Time: time.Now()}})
	recorder = httptest.NewRecorder()
	srv.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/status", nil))
	is.Equal(recorder.Code, http.StatusOK)
	var status JsonStatusResponse
	is.NoErr(json.Unmarshal(recorder.Body.Bytes(), &status))
	is.Equal(status.Status, "OK")

	// stale report
	srv = testServer(snapshots, &fixedWatermark{report: &avl.Report{Time: time.Now().Add(-time.Hour)}})
	recorder = httptest.NewRecorder()
	srv.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/status", nil))
	is.Equal(recorder.Code, http.StatusServiceUnavailable)
}
