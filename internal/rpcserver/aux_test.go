package rpcserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-kit/log"
)

func newTestServer() *Server {
	return New(nil, log.NewNopLogger())
}

func TestHandleDataTypesReturnsFixedInt16LittleEndian(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/data_types", nil)
	rec := httptest.NewRecorder()
	s.handleDataTypes(rec, req)

	var got dataTypesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	for _, k := range []sampleKind{got.UncalibratedSignal, got.CalibratedSignal, got.BiasVoltages} {
		if k.Type != 0 || k.BigEndian || k.Size != 2 {
			t.Errorf("unexpected sample kind: %+v", k)
		}
	}
}

func TestHandleVersionInfoReturnsStaticPayload(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/version_info", nil)
	rec := httptest.NewRecorder()
	s.handleVersionInfo(rec, req)

	var got versionInfoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.MinknowVersion == "" {
		t.Error("expected non-empty minknow_version")
	}
}

func TestHandleFlowCellPositionsReturnsOnePosition(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/flow_cell_positions", nil)
	rec := httptest.NewRecorder()
	s.handleFlowCellPositions(rec, req)

	var got []flowCellPosition
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(positions) = %d, want 1", len(got))
	}
}
