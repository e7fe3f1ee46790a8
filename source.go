package colorcycle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bodgit/colorcycle/indexed"
	"github.com/bodgit/colorcycle/thumbnail"
	"github.com/bodgit/colorcycle/timeline"
)

const (
	// DefaultImageURL is prefixed to the id of a still image
	DefaultImageURL = "http://www.effectgames.com/demos/canvascycle/image.php?file="
	// DefaultTimelineURL is prefixed to the id of a timeline image
	DefaultTimelineURL = "http://www.effectgames.com/demos/worlds/scene.php?file="
)

// Anything shorter can't be a descriptor, usually an error page
const minPayload = 100

// Noon is used to render timeline thumbnails
const thumbnailTime = 12 * time.Hour

var errPayload = errors.New("colorcycle: invalid payload")

// ImageInfo identifies an image that can be fetched
type ImageInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Timeline bool   `json:"isTimeline,omitempty"`
	Month    int    `json:"month,omitempty"`
	Script   string `json:"script,omitempty"`
}

// Filename returns the name the descriptor is saved under
func (i ImageInfo) Filename() string {
	return i.ID + ".json"
}

// Collection is a named group of images
type Collection struct {
	Name     string      `json:"name"`
	Timeline bool        `json:"timeline,omitempty"`
	Images   []ImageInfo `json:"images"`
}

// At picks the image in the collection to show at tm. The first image for
// the month of tm wins, then the first image not tied to a month, then the
// first image. It returns false when the collection is empty.
func (c Collection) At(tm time.Time) (ImageInfo, bool) {
	if len(c.Images) == 0 {
		return ImageInfo{}, false
	}
	for _, info := range c.Images {
		if info.Month == int(tm.Month()) {
			return info, true
		}
	}
	for _, info := range c.Images {
		if info.Month == 0 {
			return info, true
		}
	}
	return c.Images[0], true
}

// ParseCollections reads a catalog of collections from r. Every image in a
// timeline collection is marked as a timeline.
func ParseCollections(r io.Reader) ([]Collection, error) {
	var collections []Collection
	if err := json.NewDecoder(r).Decode(&collections); err != nil {
		return nil, err
	}
	for i := range collections {
		if !collections[i].Timeline {
			continue
		}
		for j := range collections[i].Images {
			collections[i].Images[j].Timeline = true
		}
	}
	return collections, nil
}

// Fetcher retrieves the descriptor for an image
type Fetcher interface {
	Fetch(context.Context, ImageInfo) ([]byte, error)
}

// HTTPFetcher fetches descriptors from a web server
type HTTPFetcher struct {
	Client      *http.Client
	ImageURL    string
	TimelineURL string
}

// NewHTTPFetcher returns an HTTPFetcher using the default URLs
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:      http.DefaultClient,
		ImageURL:    DefaultImageURL,
		TimelineURL: DefaultTimelineURL,
	}
}

// URL returns the address of the descriptor for info
func (f *HTTPFetcher) URL(info ImageInfo) string {
	if info.Timeline {
		return f.TimelineURL + url.QueryEscape(info.ID) + "&month=" + strconv.Itoa(info.Month) + "&script=" + url.QueryEscape(info.Script)
	}
	return f.ImageURL + url.QueryEscape(info.ID)
}

// Fetch downloads the descriptor for info, stripping any JavaScript wrapper
func (f *HTTPFetcher) Fetch(ctx context.Context, info ImageInfo) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(info), nil)
	if err != nil {
		return nil, err
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: \"%s\"", ErrNotFound, info.ID)
	default:
		return nil, fmt.Errorf("colorcycle: fetching \"%s\": %s", info.ID, resp.Status)
	}

	b, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	b, err = indexed.Strip(b)
	if err != nil || len(b) <= minPayload {
		return nil, fmt.Errorf("%w: \"%s\" returned %d bytes", errPayload, info.ID, len(b))
	}
	if !isDescriptor(b) {
		return nil, fmt.Errorf("%w: \"%s\" is not a descriptor", errPayload, info.ID)
	}

	return b, nil
}

// isDescriptor reports whether the object b opens with the first key of an
// image or timeline descriptor
func isDescriptor(b []byte) bool {
	if len(b) == 0 || b[0] != '{' {
		return false
	}
	b = bytes.TrimLeft(b[1:], " \t\r\n\"'")
	return bytes.HasPrefix(b, []byte("filename")) || bytes.HasPrefix(b, []byte("base"))
}

// DirFetcher reads descriptors named after the image id from a directory
type DirFetcher string

// Fetch reads the descriptor for info
func (d DirFetcher) Fetch(ctx context.Context, info ImageInfo) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := ioutil.ReadFile(filepath.Join(string(d), info.Filename()))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: \"%s\"", ErrNotFound, info.ID)
		}
		return nil, err
	}
	return b, nil
}

func isTimeline(b []byte) bool {
	var doc struct {
		Base json.RawMessage `json:"base"`
	}
	return indexed.Unmarshal(b, &doc) == nil && len(doc.Base) > 0
}

// decode returns the image to thumbnail for b
func decode(b []byte, tl bool) (*indexed.Image, error) {
	m, t, err := open(b, tl)
	if err != nil {
		return nil, err
	}
	if t != nil {
		return t.At(thumbnailTime), nil
	}
	return m, nil
}

// store saves the descriptor b along with a thumbnail of m at time zero
func (l *Library) store(name string, tl bool, b []byte, m *indexed.Image) (*Record, error) {
	id, err := l.db.Put(name, tl, b)
	if err != nil {
		return nil, err
	}

	thumb := new(bytes.Buffer)
	if err := thumbnail.Encode(thumb, indexed.Render(nil, m, m.Palette().Cycle(0)), nil); err != nil {
		return nil, err
	}
	if err := l.db.PutThumbnail(id, thumb.Bytes()); err != nil {
		return nil, err
	}

	return &Record{
		ID:       id,
		Name:     name,
		Timeline: tl,
		Size:     len(b),
		Data:     b,
	}, nil
}

func (l *Library) download(ctx context.Context, info ImageInfo) (*Record, error) {
	if l.fetcher == nil {
		return nil, fmt.Errorf("%w: \"%s\"", ErrNotFound, info.ID)
	}

	l.mu.Lock()
	if _, ok := l.downloading[info.ID]; ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: \"%s\"", ErrDownloading, info.ID)
	}
	l.downloading[info.ID] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.downloading, info.ID)
		l.mu.Unlock()
	}()

	l.logger.Printf("Unable to find \"%s\" locally, downloading using id \"%s\"\n", info.Name, info.ID)

	b, err := l.fetcher.Fetch(ctx, info)
	if err != nil {
		return nil, err
	}
	if b, err = indexed.Strip(b); err != nil {
		return nil, fmt.Errorf("%w: \"%s\": %v", errPayload, info.ID, err)
	}

	tl := info.Timeline || isTimeline(b)
	m, err := decode(b, tl)
	if err != nil {
		return nil, err
	}

	return l.store(info.ID, tl, b, m)
}

func (l *Library) record(ctx context.Context, info ImageInfo) (*Record, error) {
	r, err := l.db.Get(info.ID)
	switch {
	case errors.Is(err, ErrCorrupt):
		l.logger.Printf("Discarding \"%s\": %v\n", info.ID, err)
		if err := l.db.Delete(info.ID); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case r != nil:
		return r, nil
	}

	return l.download(ctx, info)
}

func open(b []byte, tl bool) (*indexed.Image, *timeline.Timeline, error) {
	if tl {
		t, err := timeline.Decode(bytes.NewReader(b))
		if err != nil {
			return nil, nil, err
		}
		return nil, t, nil
	}

	m, err := indexed.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, nil, err
	}
	return m, nil, nil
}

// Decode reads either an image or a timeline descriptor from r. Exactly
// one of the returned image and timeline is non-nil on success.
func Decode(r io.Reader) (*indexed.Image, *timeline.Timeline, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	return open(b, isTimeline(b))
}

// Open returns the image or timeline for info, from the database if
// possible and otherwise fetching and saving it first. Exactly one of the
// returned image and timeline is non-nil on success.
func (l *Library) Open(ctx context.Context, info ImageInfo) (*indexed.Image, *timeline.Timeline, error) {
	r, err := l.record(ctx, info)
	if err != nil {
		return nil, nil, err
	}
	return open(r.Data, r.Timeline)
}

// Load is like Open but resolves timelines at the current time of day
func (l *Library) Load(ctx context.Context, info ImageInfo) (*indexed.Image, error) {
	m, t, err := l.Open(ctx, info)
	if err != nil {
		return nil, err
	}
	if t != nil {
		return t.AtTime(l.now()), nil
	}
	return m, nil
}

// LoadTimeline is like Open but only accepts timelines
func (l *Library) LoadTimeline(ctx context.Context, info ImageInfo) (*timeline.Timeline, error) {
	_, t, err := l.Open(ctx, info)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: \"%s\" is not a timeline", ErrNotFound, info.ID)
	}
	return t, nil
}
