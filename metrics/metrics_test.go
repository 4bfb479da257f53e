package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserverCounters(t *testing.T) {
	o := New()
	o.ParticipantDiscovered()
	o.ParticipantDiscovered()
	o.ParticipantLost()
	o.SampleWritten("Shapes")
	o.SampleWritten("Shapes")
	o.SampleReceived("Shapes")
	o.SamplesLost("Shapes", 3)
	o.MalformedDatagram()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	o.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "flumedds_participants_known 1")
	assert.Contains(t, body, "flumedds_participants_discovered_total 2")
	assert.Contains(t, body, `flumedds_samples_written_total{topic="Shapes"} 2`)
	assert.Contains(t, body, `flumedds_samples_received_total{topic="Shapes"} 1`)
	assert.Contains(t, body, `flumedds_samples_lost_total{topic="Shapes"} 3`)
	assert.Contains(t, body, "flumedds_malformed_datagrams_total 1")
}

func TestObserversAreIndependent(t *testing.T) {
	a := New()
	b := New()
	a.SampleWritten("Shapes")

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if strings.Contains(rec.Body.String(), `topic="Shapes"`) {
		t.Error("second observer must not see the first observer's series")
	}
}
