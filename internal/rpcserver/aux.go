package rpcserver

import (
	"encoding/json"
	"net/http"
)

// sampleKind describes one of the data-types RPC's three channels
// (spec.md §6 "Data-types unary RPC").
type sampleKind struct {
	Type       int  `json:"type"`
	BigEndian  bool `json:"big_endian"`
	Size       int  `json:"size"`
}

// dataTypesResponse is the fixed payload every run returns; int16,
// little-endian, for both signal channels and the bias voltage channel
// (spec.md §4.8).
type dataTypesResponse struct {
	UncalibratedSignal sampleKind `json:"uncalibrated_signal"`
	CalibratedSignal   sampleKind `json:"calibrated_signal"`
	BiasVoltages       sampleKind `json:"bias_voltages"`
}

func (s *Server) handleDataTypes(w http.ResponseWriter, r *http.Request) {
	signed16 := sampleKind{Type: 0, BigEndian: false, Size: 2}
	writeJSON(w, dataTypesResponse{
		UncalibratedSignal: signed16,
		CalibratedSignal:   signed16,
		BiasVoltages:       signed16,
	})
}

// versionInfoResponse mirrors original_source's Manager::get_version_info,
// which returns fixed firmware/software identifiers for a simulated
// instrument (spec.md §9 "re-implementable trivially from §6").
type versionInfoResponse struct {
	MinknowVersion   string `json:"minknow_version"`
	Protocols        string `json:"protocols"`
	DistributionVersion string `json:"distribution_version"`
	GuppyVersion     string `json:"guppy_version"`
}

func (s *Server) handleVersionInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, versionInfoResponse{
		MinknowVersion:      "synthetic-1.0.0",
		Protocols:           "synthetic-1.0.0",
		DistributionVersion: "1.0.0",
		GuppyVersion:        "n/a",
	})
}

// flowCellPosition is the single position this device exposes - a real
// instrument's Manager::flow_cell_positions streams one per physical slot,
// this synthetic device has exactly one (spec.md §6).
type flowCellPosition struct {
	Name       string `json:"name"`
	State      string `json:"state"`
	RPCPorts   string `json:"rpc_ports"`
}

func (s *Server) handleFlowCellPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, []flowCellPosition{
		{Name: "synthetic-0", State: "running", RPCPorts: r.Host},
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
