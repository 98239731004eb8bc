// Package vehicleapi serves the current vehicle snapshots over http.
package vehicleapi

import (
	"context"
	"encoding/json"
	logger "log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TransitTrack/transittrack/business/data/avl"
	"github.com/gorilla/mux"
)

// SnapshotReader is the read side of the vehicle snapshot cache.
type SnapshotReader interface {
	Vehicle(vehicleId string) (*avl.VehicleSnapshot, bool)
	Vehicles() []*avl.VehicleSnapshot
	VehicleIdsForBlock(blockId string) []string
}

// WatermarkSource reports the newest vehicle report seen so far, nil
// before the first one.
type WatermarkSource interface {
	Watermark() *avl.Report
}

//defaultHttpHandler simple default http handler for default route
type defaultHttpHandler struct {
}

//ServeHTTP implements defaultHttpHandler http.Handler interface
func (h *defaultHttpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Application-Status", "OK")
}

//vehicleHandler holds data needed to respond to vehicle snapshot requests
type vehicleHandler struct {
	log       *logger.Logger
	snapshots SnapshotReader
}

//JsonVehicleResponseWrapper provides json response wrapper around avl.VehicleSnapshots
type JsonVehicleResponseWrapper struct {
	Timestamp int64                  `json:"timestamp"`
	Vehicles  []*avl.VehicleSnapshot `json:"vehicles"`
}

//serveVehicles sends all vehicle snapshots as json
func (v *vehicleHandler) serveVehicles(w http.ResponseWriter, _ *http.Request) {
	wrapper := JsonVehicleResponseWrapper{
		Timestamp: time.Now().Unix(),
		Vehicles:  v.snapshots.Vehicles(),
	}
	v.writeJSON(w, &wrapper)
}

//serveVehicle sends a single vehicle snapshot as json, or 404
func (v *vehicleHandler) serveVehicle(w http.ResponseWriter, r *http.Request) {
	vehicleId := mux.Vars(r)["vehicleId"]
	snapshot, ok := v.snapshots.Vehicle(vehicleId)
	if !ok {
		http.Error(w, "vehicle not found", http.StatusNotFound)
		return
	}
	v.writeJSON(w, snapshot)
}

//serveBlockVehicles sends snapshots of all vehicles matched to a block
func (v *vehicleHandler) serveBlockVehicles(w http.ResponseWriter, r *http.Request) {
	blockId := mux.Vars(r)["blockId"]
	vehicles := make([]*avl.VehicleSnapshot, 0)
	for _, vehicleId := range v.snapshots.VehicleIdsForBlock(blockId) {
		if snapshot, ok := v.snapshots.Vehicle(vehicleId); ok {
			vehicles = append(vehicles, snapshot)
		}
	}
	wrapper := JsonVehicleResponseWrapper{
		Timestamp: time.Now().Unix(),
		Vehicles:  vehicles,
	}
	v.writeJSON(w, &wrapper)
}

func (v *vehicleHandler) writeJSON(w http.ResponseWriter, payload interface{}) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		v.log.Printf("Error marshaling vehicle response to json: error:%v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(jsonData)
	if err != nil {
		v.log.Printf("Error writing json response: %s", err)
	}
}

//statusHandler reports whether fresh vehicle reports are still flowing
type statusHandler struct {
	log        *logger.Logger
	watermark  WatermarkSource
	staleAfter time.Duration
}

//JsonStatusResponse reports the processing watermark for liveness checks
type JsonStatusResponse struct {
	Status    string `json:"status"`
	Watermark int64  `json:"watermark"`
}

//ServeHTTP implements statusHandler's http.Handler interface
func (s *statusHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	response := JsonStatusResponse{
		Status: "OK",
	}
	statusCode := http.StatusOK
	watermark := s.watermark.Watermark()
	if watermark == nil || time.Since(watermark.Time) > s.staleAfter {
		response.Status = "STALE"
		statusCode = http.StatusServiceUnavailable
	}
	if watermark != nil {
		response.Watermark = watermark.Time.Unix()
	}
	jsonData, err := json.Marshal(&response)
	if err != nil {
		s.log.Printf("Error marshaling status response to json: error:%v\n", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(jsonData)
}

//createServer creates configured http.Server for responding to vehicle snapshot requests
func createServer(log *logger.Logger,
	snapshots SnapshotReader,
	watermark WatermarkSource,
	staleAfter time.Duration,
	metricsHandler http.Handler,
	httpPort int) *http.Server {

	vehicleService := vehicleHandler{
		log:       log,
		snapshots: snapshots,
	}

	r := mux.NewRouter()
	r.Handle("/", &defaultHttpHandler{})
	r.HandleFunc("/vehicles", vehicleService.serveVehicles).Methods(http.MethodGet)
	r.HandleFunc("/vehicles/block/{blockId}", vehicleService.serveBlockVehicles).Methods(http.MethodGet)
	r.HandleFunc("/vehicles/{vehicleId}", vehicleService.serveVehicle).Methods(http.MethodGet)
	r.Handle("/status", &statusHandler{
		log:        log,
		watermark:  watermark,
		staleAfter: staleAfter,
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
	srv := &http.Server{
		Addr: strings.Join([]string{"0.0.0.0", strconv.Itoa(httpPort)}, ":"),
		// Good practice to set timeouts to avoid Slowloris attacks.
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}
	return srv
}

//RunWebService starts up the vehicle web service, and terminates on shutdown signal
func RunWebService(log *logger.Logger,
	wg *sync.WaitGroup,
	snapshots SnapshotReader,
	watermark WatermarkSource,
	staleAfter time.Duration,
	metricsHandler http.Handler,
	httpPort int,
	shutdownSignal chan bool,
) {
	wg.Add(1)
	defer wg.Done()
	srv := createServer(log, snapshots, watermark, staleAfter, metricsHandler, httpPort)
	log.Printf("Starting server on port %d", httpPort)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("server ListenAndServe ended. %s", err)
		}
	}()

	<-shutdownSignal
	log.Printf("ending webservice on shutdown signal")
	shutdownCtx, serverCancelFunc := context.WithTimeout(context.Background(), time.Duration(5)*time.Second)
	defer serverCancelFunc()
	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		log.Printf("error shutting down webservice, error:%s", err)
	}
}
