package refresh

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/mapviz/internal/adapter/github"
	"github.com/couchcryptid/mapviz/internal/adapter/socrata"
	"github.com/couchcryptid/mapviz/internal/config"
	"github.com/couchcryptid/mapviz/internal/domain"
)

const reportsDir = "csse_covid_19_data/csse_covid_19_daily_reports"

type fakeGitHub struct {
	entries     []github.Entry
	listErr     error
	content     string
	downloadErr error
	downloaded  []string
}

func (f *fakeGitHub) ListDirectory(_ context.Context, _, _, _, _ string) ([]github.Entry, error) {
	return f.entries, f.listErr
}

func (f *fakeGitHub) Download(_ context.Context, _, _, _, file string, w io.Writer) (int64, error) {
	f.downloaded = append(f.downloaded, file)
	n, _ := io.WriteString(w, f.content)
	return int64(n), f.downloadErr
}

type fakeSocrata struct {
	query   socrata.Query
	content string
	err     error
}

func (f *fakeSocrata) ExportCSV(_ context.Context, q socrata.Query, w io.Writer) (int64, error) {
	f.query = q
	n, _ := io.WriteString(w, f.content)
	return int64(n), f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func covidSource() config.Source {
	return config.Source{
		Type:       config.SourceGitHub,
		Owner:      "CSSEGISandData",
		Repo:       "COVID-19",
		Ref:        "master",
		Path:       reportsDir,
		NameLayout: "01-02-2006.csv",
		Prefix:     "covid_",
	}
}

func file(name string) github.Entry {
	return github.Entry{Name: name, Path: reportsDir + "/" + name, Type: "file"}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestNewestEntry_ByParsedDate(t *testing.T) {
	entries := []github.Entry{
		file("12-31-2020.csv"),
		file("03-08-2021.csv"),
		file("01-01-2021.csv"),
		file("README.md"),
		{Name: "archive", Type: "dir"},
	}
	got, err := NewestEntry(entries, "01-02-2006.csv")
	require.NoError(t, err)
	assert.Equal(t, "03-08-2021.csv", got.Name)
}

func TestNewestEntry_LexicalFallback(t *testing.T) {
	entries := []github.Entry{file("b.csv"), file("c.csv"), file("a.csv"), file("z.md")}
	got, err := NewestEntry(entries, "01-02-2006.csv")
	require.NoError(t, err)
	assert.Equal(t, "c.csv", got.Name)
}

func TestNewestEntry_Empty(t *testing.T) {
	_, err := NewestEntry([]github.Entry{file("README.md")}, "01-02-2006.csv")
	require.Error(t, err)
}

func TestRefresh_GitHubReplacesSupersededCopies(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "covid_03-07-2021.csv"), "old")
	writeFile(t, filepath.Join(dir, "borders_geo.json"), "{}")

	gh := &fakeGitHub{
		entries: []github.Entry{file("03-07-2021.csv"), file("03-08-2021.csv"), file("README.md")},
		content: "Country_Region,Confirmed\n",
	}
	c := NewController(dir, gh, nil, discardLogger())

	snap, err := c.Refresh(context.Background(), covidSource())
	require.NoError(t, err)

	want := filepath.Join(dir, "covid_03-08-2021.csv")
	assert.Equal(t, want, snap.Path)
	assert.True(t, snap.Fetched)
	assert.Equal(t, []string{reportsDir + "/03-08-2021.csv"}, gh.downloaded)
	assert.Equal(t, []string{filepath.Join(dir, "covid_03-07-2021.csv")}, snap.Removed)
	assert.Equal(t, "Country_Region,Confirmed\n", readFile(t, want))
	assert.FileExists(t, filepath.Join(dir, "borders_geo.json"))
	assert.NoFileExists(t, filepath.Join(dir, "covid_03-07-2021.csv"))
}

func TestRefresh_GitHubDownloadFailureKeepsPreviousCopy(t *testing.T) {
	dir := t.TempDir()
	prev := filepath.Join(dir, "covid_03-07-2021.csv")
	writeFile(t, prev, "previous data")

	gh := &fakeGitHub{
		entries:     []github.Entry{file("03-08-2021.csv")},
		content:     "half a fi",
		downloadErr: errors.New("unexpected EOF"),
	}
	c := NewController(dir, gh, nil, discardLogger())

	_, err := c.Refresh(context.Background(), covidSource())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "CSSEGISandData/COVID-19", fe.Source)

	assert.Equal(t, "previous data", readFile(t, prev))
	assert.NoFileExists(t, filepath.Join(dir, "covid_03-08-2021.csv"))

	snap, err := c.Local(covidSource())
	require.NoError(t, err)
	assert.Equal(t, prev, snap.Path)
	assert.False(t, snap.Fetched)
}

func TestRefresh_GitHubListFailure(t *testing.T) {
	gh := &fakeGitHub{listErr: errors.New("github API error: status 403")}
	c := NewController(t.TempDir(), gh, nil, discardLogger())

	_, err := c.Refresh(context.Background(), covidSource())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, err.Error(), "403")
	assert.Empty(t, gh.downloaded)
}

func TestRefresh_MissingClient(t *testing.T) {
	c := NewController(t.TempDir(), nil, nil, discardLogger())

	_, err := c.Refresh(context.Background(), covidSource())
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
}

func TestRefresh_SocrataWindowEndsYesterday(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2021, 3, 9, 19, 15, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })

	dir := t.TempDir()
	sc := &fakeSocrata{content: "incident_datetime,latitude,longitude\n"}
	c := NewController(dir, nil, sc, discardLogger())

	src := config.Source{
		Type:       config.SourceSocrata,
		BaseURL:    "https://data.sfgov.org",
		Dataset:    "wg3w-h783",
		DateField:  "incident_date",
		WindowDays: 7,
		Limit:      100000,
		File:       "last_week_SF_crimes.csv",
	}
	snap, err := c.Refresh(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, "incident_date between '2021-03-01T00:00:00.000' and '2021-03-08T00:00:00.000'", sc.query.Where)
	assert.Equal(t, 100000, sc.query.Limit)
	assert.Equal(t, "wg3w-h783", sc.query.Dataset)
	assert.Equal(t, time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC), snap.From)
	assert.Equal(t, time.Date(2021, 3, 8, 0, 0, 0, 0, time.UTC), snap.To)
	assert.Equal(t, filepath.Join(dir, "last_week_SF_crimes.csv"), snap.Path)
	assert.Equal(t, sc.content, readFile(t, snap.Path))
}

func TestRefresh_SocrataFailureKeepsPreviousCopy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crimes.csv")
	writeFile(t, path, "yesterday's export")

	sc := &fakeSocrata{content: "partial", err: errors.New("socrata API error: status 503")}
	c := NewController(dir, nil, sc, discardLogger())

	src := config.Source{Type: config.SourceSocrata, BaseURL: "https://x", Dataset: "d", DateField: "f", WindowDays: 1, File: "crimes.csv"}
	_, err := c.Refresh(context.Background(), src)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "yesterday's export", readFile(t, path))
}

func TestRefresh_StaticNeverFetches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Accidents0515.csv"), "Date\n")
	c := NewController(dir, nil, nil, discardLogger())

	snap, err := c.Refresh(context.Background(), config.Source{Type: config.SourceStatic, File: "Accidents0515.csv"})
	require.NoError(t, err)
	assert.False(t, snap.Fetched)
	assert.Equal(t, filepath.Join(dir, "Accidents0515.csv"), snap.Path)
}

func TestRefresh_StaticMissingFile(t *testing.T) {
	c := NewController(t.TempDir(), nil, nil, discardLogger())

	_, err := c.Refresh(context.Background(), config.Source{Type: config.SourceStatic, File: "missing.csv"})
	require.ErrorIs(t, err, domain.ErrLoad)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "covid_03-07-2021.csv")
	newer := filepath.Join(dir, "covid_03-08-2021.csv")
	writeFile(t, older, "a")
	writeFile(t, newer, "b")
	writeFile(t, filepath.Join(dir, "gdp.csv"), "c")

	now := time.Now()
	require.NoError(t, os.Chtimes(older, now, now))
	require.NoError(t, os.Chtimes(newer, now.Add(-time.Hour), now.Add(-time.Hour)))

	got, err := Latest(dir, "covid_")
	require.NoError(t, err)
	assert.Equal(t, older, got, "most recently modified wins")
}

func TestLatest_NoMatch(t *testing.T) {
	_, err := Latest(t.TempDir(), "covid_")
	require.ErrorIs(t, err, domain.ErrLoad)
	require.ErrorIs(t, err, fs.ErrNotExist)
}
