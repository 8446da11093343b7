package chrome

import (
	"strings"
	"testing"
	"time"

	"netlynx/internal/netlog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testExport = `{
  "constants": {
    "logEventTypes": {"REQUEST_ALIVE": 0, "URL_REQUEST_START_JOB": 1},
    "logSourceType": {"NONE": 0, "URL_REQUEST": 1},
    "logEventPhase": {"PHASE_NONE": 0, "PHASE_BEGIN": 1, "PHASE_END": 2},
    "netError": {},
    "timeTickOffset": "1000"
  },
  "events": [
    {"phase": 1, "source": {"id": 1, "type": 1}, "time": "0", "type": 0},
    {"phase": 1, "source": {"id": 1, "type": 1}, "time": "4", "type": 1, "params": {"url": "http://a.test/"}},
    {"phase": 1, "source": {"id": 1, "type": 1}, "time": "oops", "type": 1},
    {"phase": 2, "source": {"id": 1, "type": 1}, "time": "9", "type": 0}
  ],
  "polledData": {
    "proxySettings": {
      "original": {"pac_url": "http://wpad/wpad.dat"},
      "effective": {"single_proxy": "proxy.test:8080"}
    },
    "badProxies": [{"proxy_uri": "bad.test:80", "bad_until": "5000"}],
    "httpCacheInfo": {"stats": {"Entries": "12", "Hits": "3"}}
  }
}`

func TestDecodeExport(t *testing.T) {
	exp, err := DecodeExport(strings.NewReader(testExport))
	require.NoError(t, err)

	require.Len(t, exp.Events, 3)
	assert.Equal(t, 1, exp.Skipped)
	assert.Equal(t, netlog.TypeRequestAlive, exp.Events[0].Type)
	assert.Equal(t, netlog.TypeURLRequestStartJob, exp.Events[1].Type)
	assert.Equal(t, netlog.PhaseEnd, exp.Events[2].Phase)

	polled := exp.PolledData
	require.NotNil(t, polled.ProxySettings)
	assert.Equal(t, "http://wpad/wpad.dat", polled.ProxySettings.Original["pac_url"])
	assert.Equal(t, "proxy.test:8080", polled.ProxySettings.Effective["single_proxy"])
	require.Len(t, polled.BadProxies, 1)
	assert.Equal(t, "bad.test:80", polled.BadProxies[0].ProxyURI)
	assert.Equal(t, Ticks(5000), polled.BadProxies[0].BadUntil)
	require.NotNil(t, polled.HTTPCacheInfo)
	assert.Equal(t, "12", polled.HTTPCacheInfo.Stats["Entries"])
}

func TestDecodeExport_FrozenClock(t *testing.T) {
	exp, err := DecodeExport(strings.NewReader(testExport))
	require.NoError(t, err)

	clock := exp.Clock()
	assert.Equal(t, time.UnixMilli(1009), clock.Now())
	assert.Equal(t, time.UnixMilli(1004), clock.TicksToTime(4))
}

func TestDecodeExport_Errors(t *testing.T) {
	_, err := DecodeExport(strings.NewReader(`{"events": []}`))
	assert.Error(t, err, "constants are required")

	_, err = DecodeExport(strings.NewReader(`{"constants": `))
	assert.Error(t, err)
}

func TestDecodeExport_WithoutPolledData(t *testing.T) {
	exp, err := DecodeExport(strings.NewReader(`{"constants": {"logEventTypes": {}}, "events": []}`))
	require.NoError(t, err)
	assert.Empty(t, exp.Events)
	assert.Nil(t, exp.PolledData.ProxySettings)
	assert.Nil(t, exp.PolledData.HTTPCacheInfo)
	assert.True(t, exp.Clock().Frozen.IsZero())
}
