package colorcycle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bodgit/colorcycle/indexed"
	"github.com/bodgit/colorcycle/palette"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeline = `{base:{filename:'BASE.LBM',width:2,height:1,
colors:[[0,0,0],[0,0,0]],
cycles:[{reverse:0,rate:280,low:0,high:1}],
pixels:[0,1]},
basefilename:'scene',
times:{
 '0':{colors:[[0,0,0],[0,0,200]]},
 '06:00':{colors:[[200,0,0],[0,0,0]]},
 '43200':{colors:[[0,200,0],[0,0,0]]}
}}`

func testDescriptor(t *testing.T) []byte {
	b := new(bytes.Buffer)
	require.NoError(t, indexed.Encode(b, testImage()))
	return bytes.TrimSpace(b.Bytes())
}

func testLibrary(t *testing.T, f Fetcher) *Library {
	l, err := New(filepath.Join(t.TempDir(), "test.db"), f, nil)
	require.NoError(t, err)
	l.now = func() time.Time { return time.Date(2020, 1, 1, 6, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { l.Close() })
	return l
}

func testDir(t *testing.T, files map[string]string) string {
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, ioutil.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestParseCollections(t *testing.T) {
	doc := `[
{"name":"Stills","images":[{"id":"CORAL","name":"Coral Reef"}]},
{"name":"Scenes","timeline":true,"images":[{"id":"V08","name":"Mountain Stream","month":3,"script":"V08RAIN"}]}
]`

	collections, err := ParseCollections(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, collections, 2)

	assert.Equal(t, []ImageInfo{{ID: "CORAL", Name: "Coral Reef"}}, collections[0].Images)
	assert.Equal(t, []ImageInfo{{ID: "V08", Name: "Mountain Stream", Timeline: true, Month: 3, Script: "V08RAIN"}}, collections[1].Images)
	assert.Equal(t, "V08.json", collections[1].Images[0].Filename())

	_, err = ParseCollections(strings.NewReader(`{`))
	assert.Error(t, err)
}

func TestIsDescriptor(t *testing.T) {
	tables := []struct {
		in   string
		want bool
	}{
		{`{filename:'A.LBM'}`, true},
		{`{"filename":"A.LBM"}`, true},
		{"{\n  'base':{}}", true},
		{`{width:1}`, false},
		{`{ margin: 0 }`, false},
		{``, false},
	}

	for _, table := range tables {
		assert.Equal(t, table.want, isDescriptor([]byte(table.in)), table.in)
	}
}

func TestCollectionAt(t *testing.T) {
	c := Collection{
		Name: "Seasons",
		Images: []ImageInfo{
			{ID: "ANY"},
			{ID: "MARCH", Month: 3},
			{ID: "JULY", Month: 7},
		},
	}

	tables := []struct {
		month time.Month
		want  string
	}{
		{time.March, "MARCH"},
		{time.July, "JULY"},
		{time.December, "ANY"},
	}

	for _, table := range tables {
		info, ok := c.At(time.Date(2020, table.month, 1, 12, 0, 0, 0, time.UTC))
		require.True(t, ok)
		assert.Equal(t, table.want, info.ID)
	}

	info, ok := Collection{Images: []ImageInfo{{ID: "MAY", Month: 5}}}.At(time.Date(2020, time.June, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, ok)
	assert.Equal(t, "MAY", info.ID)

	_, ok = Collection{}.At(time.Now())
	assert.False(t, ok)
}

func TestHTTPFetcherURL(t *testing.T) {
	f := NewHTTPFetcher()

	assert.Equal(t, DefaultImageURL+"CORAL", f.URL(ImageInfo{ID: "CORAL"}))
	assert.Equal(t, DefaultTimelineURL+"V08&month=3&script=V08RAIN", f.URL(ImageInfo{ID: "V08", Timeline: true, Month: 3, Script: "V08RAIN"}))
}

func testServer(t *testing.T, body []byte) (*HTTPFetcher, *int32) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		switch r.URL.Query().Get("file") {
		case "TEST":
			fmt.Fprintf(w, "CanvasCycle.processImage(%s);\n", body)
		case "SHORT":
			fmt.Fprint(w, "{}")
		case "HTML":
			fmt.Fprint(w, "<html><script>var cfg = {demo: false};</script><body>Sorry, the demo you requested is not available right now, please try again later.</body><script>show({});</script></html>")
		case "BROKEN":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	f := &HTTPFetcher{
		Client:      srv.Client(),
		ImageURL:    srv.URL + "/image.php?file=",
		TimelineURL: srv.URL + "/scene.php?file=",
	}
	return f, &hits
}

func TestHTTPFetcher(t *testing.T) {
	desc := testDescriptor(t)
	f, _ := testServer(t, desc)
	ctx := context.Background()

	b, err := f.Fetch(ctx, ImageInfo{ID: "TEST"})
	require.NoError(t, err)
	assert.Equal(t, desc, b)

	_, err = f.Fetch(ctx, ImageInfo{ID: "MISSING"})
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = f.Fetch(ctx, ImageInfo{ID: "SHORT"})
	assert.True(t, errors.Is(err, errPayload))

	// Long enough and has braces, but isn't a descriptor
	_, err = f.Fetch(ctx, ImageInfo{ID: "HTML"})
	assert.True(t, errors.Is(err, errPayload))

	_, err = f.Fetch(ctx, ImageInfo{ID: "BROKEN"})
	assert.Error(t, err)
}

func TestDirFetcher(t *testing.T) {
	dir := testDir(t, map[string]string{"A.json": "{}"})
	f := DirFetcher(dir)

	b, err := f.Fetch(context.Background(), ImageInfo{ID: "A"})
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), b)

	_, err = f.Fetch(context.Background(), ImageInfo{ID: "B"})
	assert.True(t, errors.Is(err, ErrNotFound))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, ImageInfo{ID: "A"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestLibraryLoad(t *testing.T) {
	f, hits := testServer(t, testDescriptor(t))
	l := testLibrary(t, f)
	ctx := context.Background()

	m, err := l.Load(ctx, ImageInfo{ID: "TEST", Name: "Test"})
	require.NoError(t, err)
	assert.Equal(t, testImage(), m)

	// Second load comes from the database
	_, err = l.Load(ctx, ImageInfo{ID: "TEST"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	b, err := l.Thumbnail("TEST")
	require.NoError(t, err)
	thumb, err := png.Decode(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 120, 120), thumb.Bounds())

	_, err = l.Thumbnail("MISSING")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = l.Load(ctx, ImageInfo{ID: "MISSING"})
	assert.True(t, errors.Is(err, ErrNotFound))

	records, err := l.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "TEST", records[0].Name)
}

func TestLibraryNoFetcher(t *testing.T) {
	l := testLibrary(t, nil)

	_, err := l.Load(context.Background(), ImageInfo{ID: "TEST"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLibraryCorrupt(t *testing.T) {
	dir := testDir(t, map[string]string{"TEST.json": string(testDescriptor(t))})
	l := testLibrary(t, DirFetcher(dir))

	_, err := l.db.Put("TEST", false, []byte("garbage"))
	require.NoError(t, err)
	_, err = l.db.db.Exec("UPDATE image SET checksum = ? WHERE name = ?", "00000000", "TEST")
	require.NoError(t, err)

	m, err := l.Load(context.Background(), ImageInfo{ID: "TEST"})
	require.NoError(t, err)
	assert.Equal(t, testImage(), m)
}

type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
	body    []byte
}

func (f *blockingFetcher) Fetch(ctx context.Context, info ImageInfo) ([]byte, error) {
	close(f.started)
	<-f.release
	return f.body, nil
}

func TestLibraryDownloading(t *testing.T) {
	f := &blockingFetcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
		body:    testDescriptor(t),
	}
	l := testLibrary(t, f)
	ctx := context.Background()

	done := make(chan error)
	go func() {
		_, err := l.Load(ctx, ImageInfo{ID: "TEST"})
		done <- err
	}()

	<-f.started
	_, err := l.Load(ctx, ImageInfo{ID: "TEST"})
	assert.True(t, errors.Is(err, ErrDownloading))

	close(f.release)
	require.NoError(t, <-done)

	// Now cached, so the fetcher isn't used again
	_, err = l.Load(ctx, ImageInfo{ID: "TEST"})
	assert.NoError(t, err)
}

func TestLibraryTimeline(t *testing.T) {
	dir := testDir(t, map[string]string{
		"SCENE.json": testTimeline,
		"TEST.json":  string(testDescriptor(t)),
	})
	l := testLibrary(t, DirFetcher(dir))
	ctx := context.Background()

	// Detected as a timeline even though the catalog didn't say so
	m, err := l.Load(ctx, ImageInfo{ID: "SCENE"})
	require.NoError(t, err)
	assert.Equal(t, "scene", m.Filename)
	assert.Equal(t, palette.Table{palette.RGB(200, 0, 0), palette.RGB(0, 0, 0)}, m.Colors)

	tl, err := l.LoadTimeline(ctx, ImageInfo{ID: "SCENE", Timeline: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "06:00", "43200"}, tl.Labels())

	_, err = l.LoadTimeline(ctx, ImageInfo{ID: "TEST"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDecode(t *testing.T) {
	m, tl, err := Decode(bytes.NewReader(testDescriptor(t)))
	require.NoError(t, err)
	assert.Nil(t, tl)
	assert.Equal(t, testImage(), m)

	m, tl, err = Decode(strings.NewReader(testTimeline))
	require.NoError(t, err)
	assert.Nil(t, m)
	require.NotNil(t, tl)
	assert.Equal(t, "BASE.LBM", tl.Base().Filename)

	_, _, err = Decode(strings.NewReader("{width:1}"))
	assert.True(t, errors.Is(err, indexed.ErrInvalid))

	// The legacy endpoints serve object literals with comments and
	// trailing commas
	lenient := `{filename:'L.LBM',width:2,height:1,
// two colours
colors:[[0,0,0],[0,0,200],],
cycles:[{reverse:0,rate:280,low:0,high:1,},],
pixels:[0,1],}`
	m, tl, err = Decode(strings.NewReader(lenient))
	require.NoError(t, err)
	assert.Nil(t, tl)
	assert.Equal(t, palette.Table{palette.RGB(0, 0, 0), palette.RGB(0, 0, 200)}, m.Colors)
}
