package history

import (
	"bytes"
	"encoding/json"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/heading.report/internal/telemetry"
	"github.com/banshee-data/heading.report/internal/timeutil"
)

func sample(h, ir float64) Sample {
	return Sample{Heading: h, IRBearing: ir}
}

func TestBuffer_Wraps(t *testing.T) {
	b := NewBuffer(3)
	assert.Equal(t, 3, b.Cap())
	assert.Empty(t, b.Samples())

	for i := 1; i <= 5; i++ {
		b.Add(sample(float64(i), 0))
	}

	require.Equal(t, 3, b.Len())
	got := b.Samples()
	assert.Equal(t, []float64{3, 4, 5}, []float64{got[0].Heading, got[1].Heading, got[2].Heading})

	b.Reset()
	assert.Zero(t, b.Len())
	b.Add(sample(9, 0))
	assert.Equal(t, 9.0, b.Samples()[0].Heading)
}

func TestBuffer_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewBuffer(0).Cap())
	assert.Equal(t, DefaultCapacity, NewBuffer(-4).Cap())
}

func TestBuffer_SamplesIsACopy(t *testing.T) {
	b := NewBuffer(2)
	b.Add(sample(1, 1))
	got := b.Samples()
	got[0].Heading = 99
	assert.Equal(t, 1.0, b.Samples()[0].Heading)
}

func TestBuffer_ConcurrentAdd(t *testing.T) {
	b := NewBuffer(50)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Add(sample(float64(i), 0))
				_ = b.Samples()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, b.Len())
}

func TestBuffer_Sinks(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	b := NewBuffer(10)
	sinks := b.Sinks(timeutil.NewMockClock(now))

	sinks.OnReading(telemetry.Reading{Heading: 12, IRBearing: 34})

	require.Equal(t, 1, b.Len())
	assert.Equal(t, Sample{Time: now, Heading: 12, IRBearing: 34}, b.Samples()[0])
	assert.Nil(t, sinks.OnRawText)
}

func TestSummarize(t *testing.T) {
	sum := Summarize([]Sample{sample(350, 10), sample(10, 20), sample(math.NaN(), 30)})

	assert.Equal(t, 3, sum.Count)
	assert.InDelta(t, 0, sum.HeadingMean, 1e-6)
	assert.Equal(t, 10.0, sum.HeadingMin)
	assert.Equal(t, 350.0, sum.HeadingMax)
	assert.InDelta(t, 20, sum.IRMean, 1e-6)
	assert.Equal(t, 10.0, sum.IRMin)
	assert.Equal(t, 30.0, sum.IRMax)
	assert.InDelta(t, 10, sum.IRStdDev, 1e-9)
}

func TestSummarize_Empty(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))

	one := Summarize([]Sample{sample(90, 45)})
	assert.InDelta(t, 90, one.HeadingMean, 1e-9)
	assert.Zero(t, one.IRStdDev)
}

func TestSummarize_MeanInRange(t *testing.T) {
	sum := Summarize([]Sample{sample(-90, 270), sample(-90, 270)})
	assert.InDelta(t, 270, sum.HeadingMean, 1e-9)
	assert.InDelta(t, 270, sum.IRMean, 1e-9)
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	err := RenderHTML(&buf, []Sample{sample(1, 2), sample(math.Inf(1), 3)}, "Attitude")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Attitude")
	assert.Contains(t, out, "IR bearing")
}

func TestRenderPNG(t *testing.T) {
	var buf bytes.Buffer
	err := RenderPNG(&buf, []Sample{sample(1, 2), sample(3, math.NaN()), sample(5, 6)}, "Attitude")
	require.NoError(t, err)

	_, err = png.Decode(&buf)
	assert.NoError(t, err)

	buf.Reset()
	require.NoError(t, RenderPNG(&buf, nil, "empty"))
}

func TestAttachAdminRoutes(t *testing.T) {
	b := NewBuffer(10)
	b.Add(sample(100, 200))
	b.Add(sample(110, 210))

	mux := http.NewServeMux()
	b.AttachAdminRoutes(mux)

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "127.0.0.1:12345"
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/debug/chart")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = get("/debug/chart.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = get("/debug/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	var sum Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 2, sum.Count)
	assert.InDelta(t, 105, sum.HeadingMean, 1e-9)
}
