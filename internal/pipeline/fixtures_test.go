package pipeline_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const bordersGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"ADMIN": "France", "ISO_A3": "FRA", "ISO_A2": "FR"},
     "geometry": {"type": "Polygon", "coordinates": [[[2,46],[3,46],[3,47],[2,47],[2,46]]]}},
    {"type": "Feature", "properties": {"ADMIN": "United States of America", "ISO_A3": "USA", "ISO_A2": "US"},
     "geometry": {"type": "Polygon", "coordinates": [[[-100,40],[-99,40],[-99,41],[-100,41],[-100,40]]]}},
    {"type": "Feature", "properties": {"ADMIN": "Greenland", "ISO_A3": "GRL", "ISO_A2": "GL"},
     "geometry": {"type": "Polygon", "coordinates": [[[-40,70],[-39,70],[-39,71],[-40,71],[-40,70]]]}},
    {"type": "Feature", "properties": {"ADMIN": "Somaliland", "ISO_A3": "-99", "ISO_A2": "-99"},
     "geometry": {"type": "Polygon", "coordinates": [[[45,9],[46,9],[46,10],[45,10],[45,9]]]}}
  ]
}`

const covidHeader = "FIPS,Admin2,Province_State,Country_Region,Last_Update,Lat,Long_,Confirmed,Deaths,Recovered,Active,Combined_Key,Incident_Rate,Case_Fatality_Ratio\n"

// Latest daily report: France split into two regions, one unknown country.
const covidReport = covidHeader +
	",,Reunion,France,2021-03-09 05:22:58,-21.1,55.5,12000,80,,11920,\"Reunion, France\",1340.2,0.66\n" +
	",,,France,2021-03-09 05:22:58,46.2,2.2,3900000,89000,,3811000,France,5990.1,2.28\n" +
	",,,US,2021-03-09 05:22:58,40,-100,29000000,525000,,28475000,US,8800.5,1.81\n" +
	",,,Narnia,2021-03-09 05:22:58,,,10,1,,9,Narnia,,10.0\n"

// Previous daily report, kept as the last local copy.
const covidPrevious = covidHeader +
	",,,France,2021-03-08 05:22:58,46.2,2.2,3890000,88900,,3801100,France,5980.1,2.28\n"

const sfCrimes = "incident_datetime,incident_date,incident_day_of_week,incident_description,latitude,longitude\n" +
	"2021-03-02T10:00:00.000,2021-03-02T00:00:00.000,Tuesday,Theft From Vehicle,37.7749,-122.4194\n" +
	"2021-03-03T22:30:00.000,2021-03-03T00:00:00.000,Wednesday,Burglary,37.7599,-122.4148\n" +
	"2021-03-04T08:15:00.000,2021-03-04T00:00:00.000,Thursday,Vandalism,,\n"

const ukAccidents = "Accident_Index,Longitude,Latitude,Date,Number_of_Vehicles\n" +
	"2014010001,-0.12,51.50,31/12/2014,2\n" +
	"2015010001,-0.13,51.51,01/01/2015,1\n" +
	"2015010002,-2.24,53.48,01/01/2015,2\n" +
	"2015010003,-1.89,52.48,02/01/2015,3\n" +
	"2015010004,,,02/01/2015,1\n"

// gdpCSV mimics the World Bank export: four preamble lines, then one column
// per year from 1960 to 2020.
func gdpCSV() string {
	var b strings.Builder
	b.WriteString("\"Data Source\",\"World Development Indicators\",\n\n\"Last Updated Date\",\"2021-02-17\",\n\n")
	b.WriteString(`"Country Name","Country Code","Indicator Name","Indicator Code"`)
	for y := 1960; y <= 2020; y++ {
		fmt.Fprintf(&b, `,"%d"`, y)
	}
	b.WriteString(",\n")

	row := func(name, code string, value func(year int) string) {
		fmt.Fprintf(&b, `"%s","%s","GDP per capita (current US$)","NY.GDP.PCAP.CD"`, name, code)
		for y := 1960; y <= 2020; y++ {
			fmt.Fprintf(&b, `,"%s"`, value(y))
		}
		b.WriteString(",\n")
	}
	row("France", "FRA", func(y int) string { return fmt.Sprintf("%d", 1000+(y-1960)*600) })
	row("United States", "USA", func(y int) string {
		if y < 1970 {
			return ""
		}
		return fmt.Sprintf("%d", 3000+(y-1960)*1000)
	})
	row("World", "WLD", func(int) string { return "5000" })
	return b.String()
}

// writeFixtures lays out a data directory for the built-in catalog.
func writeFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"borders_geo.json":              bordersGeoJSON,
		"covid_03-08-2021.csv":          covidPrevious,
		"covid_03-09-2021.csv":          covidReport,
		"GDP_per_capita_world_data.csv": gdpCSV(),
		"last_week_SF_crimes.csv":       sfCrimes,
		"Accidents0515.csv":             ukAccidents,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}
