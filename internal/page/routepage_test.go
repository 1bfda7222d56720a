package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const routeHTML = `
<html><body>
<h1>Linia 1: Rynek - Dworzec</h1>
<table>
<tr>
  <td><a href="https://www.openstreetmap.org/?mlat=51.1079&mlon=17.0385">Rynek</a></td>
  <td>06:10 06:40 07:10</td>
</tr>
<tr>
  <td><a href="https://www.openstreetmap.org/#map=19/51.0989/17.0367">Dworzec Glowny</a></td>
  <td>06:25 06:55 06:25</td>
</tr>
<tr>
  <td><a href="https://www.openstreetmap.org/about">Broken marker link</a></td>
  <td>07:00</td>
</tr>
</table>
<p><a href="/wewnetrzny/">Internal link ignored</a></p>
</body></html>`

func TestParseRoute(t *testing.T) {
	t.Parallel()

	route := ParseRoute(routeHTML, "https://wro.transport-fc.eu/linia-1/", "WRO", "wro")
	require.NotNil(t, route)

	assert.Equal(t, "WRO", route.FC)
	assert.Equal(t, "Linia 1: Rynek - Dworzec", route.Title)
	assert.Equal(t, "wro-linia-1-rynek-dworzec", route.Slug)
	assert.Equal(t, "https://wro.transport-fc.eu/linia-1/", route.Source)

	// The anchor without a resolvable coordinate is skipped, not fatal.
	require.Len(t, route.Stops, 2)

	rynek := route.Stops[0]
	assert.Equal(t, "Rynek", rynek.StopName)
	assert.Equal(t, 51.1079, rynek.Lat)
	assert.Equal(t, 17.0385, rynek.Lon)
	assert.Equal(t, []string{"06:10", "06:40", "07:10"}, rynek.ContextTimes)

	dworzec := route.Stops[1]
	assert.Equal(t, "Dworzec Glowny", dworzec.StopName)
	assert.Equal(t, 51.0989, dworzec.Lat)
	// Times are deduplicated and sorted.
	assert.Equal(t, []string{"06:25", "06:55"}, dworzec.ContextTimes)
}

func TestParseRoute_NoStopsIsNil(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ParseRoute(`<html><body><h1>Pusta</h1></body></html>`, "https://x/", "WRO", "wro"))
}

func TestParseRoute_TitleFallsBackToURL(t *testing.T) {
	t.Parallel()

	htmlStr := `<a href="https://www.openstreetmap.org/?mlat=51.1&mlon=17.0">Rynek</a>`
	route := ParseRoute(htmlStr, "https://wro5.transport-fc.eu/t/", "WRO5", "wro5")
	require.NotNil(t, route)
	assert.Equal(t, "https://wro5.transport-fc.eu/t/", route.Title)
}

func TestRouteSlug_Deterministic(t *testing.T) {
	t.Parallel()

	a := RouteSlug("wro", "Linia 1: Rynek – Dworzec Główny")
	b := RouteSlug("wro", "Linia 1: Rynek – Dworzec Główny")
	assert.Equal(t, a, b)
	assert.Equal(t, "wro-linia-1-rynek-dworzec-glowny", a)
}

func TestTimes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"06:10", "12:45", "9:05"}, Times("12:45 9:05 06:10 12:45"))
	assert.Nil(t, Times("no times here"))
}
