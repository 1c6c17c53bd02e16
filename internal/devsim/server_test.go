package devsim

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FASTSHIFT/FPBInject-sub001/internal/api"
	"github.com/FASTSHIFT/FPBInject-sub001/internal/model"
)

func newTestServer(t *testing.T) (*Device, *httptest.Server) {
	t.Helper()
	device := NewDevice(model.ProtocolV2, "sim 1.0")
	srv := httptest.NewServer(NewServer(device, nil).Handler())
	t.Cleanup(srv.Close)
	return device, srv
}

func TestPollEndpoint(t *testing.T) {
	device, srv := newTestServer(t)
	device.AppendToolLog("boot")

	resp, err := http.Get(srv.URL + "/poll?tool_since=0&raw_since=0")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body api.PollResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(1), body.ToolNext)
	assert.Equal(t, []string{"boot"}, body.ToolLogs)
	require.NotNil(t, body.SlotData)
	assert.Len(t, body.SlotData.Slots, model.CapacityV2)
}

func TestPollRejectsBadCursor(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/poll?tool_since=-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body api.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "invalid_cursor", body.Error.Code)
}

func TestPollRejectsPost(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/poll", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMutateEndpoint(t *testing.T) {
	device, srv := newTestServer(t)
	require.NoError(t, device.InstallPatch(3, "fn", "0x1", "0x2", 8))

	resp, err := http.Post(srv.URL+"/mutate", "application/json", strings.NewReader(`{"slot_id":3}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body api.MutateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.False(t, device.Snapshot().SlotData.Slots[3].Occupied)
}

func TestMutateApplicationFailureIsStill200(t *testing.T) {
	device, srv := newTestServer(t)
	device.FailClears("flash busy")

	resp, err := http.Post(srv.URL+"/mutate", "application/json", strings.NewReader(`{"all":true}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body api.MutateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Equal(t, "flash busy", body.Message)
}

func TestMutateRejectsMalformedBody(t *testing.T) {
	_, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/mutate", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSlotInfoAndDeviceInfoEndpoints(t *testing.T) {
	device, srv := newTestServer(t)
	require.NoError(t, device.InstallPatch(0, "fn", "0x1", "0x2", 8))

	resp, err := http.Get(srv.URL + "/slot-info")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap api.SlotInfoResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(1), snap.SlotUpdateID)
	assert.True(t, snap.SlotData.Slots[0].Occupied)

	infoResp, err := http.Get(srv.URL + "/device-info")
	require.NoError(t, err)
	defer infoResp.Body.Close()
	require.Equal(t, http.StatusOK, infoResp.StatusCode)

	var info api.DeviceInfoResponse
	require.NoError(t, json.NewDecoder(infoResp.Body).Decode(&info))
	assert.Equal(t, 2, info.ProtocolVersion)
	assert.Equal(t, model.CapacityV2, info.Capacity)
	assert.Equal(t, "sim 1.0", info.Firmware)
}
