package share

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mesh-node-map/pkg/mapview"
)

var home = mapview.Viewport{Center: mapview.LatLng{Lat: 45.5397, Lng: 10.2206}, Zoom: 10, Width: 800, Height: 600}

func TestEncode(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://map.example.org/?lang=it")
	require.NoError(t, err)

	link := Encode(base, mapview.Viewport{Center: mapview.LatLng{Lat: 45.12345678, Lng: -7.5}, Zoom: 13})
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "45.123457", u.Query().Get("lat"))
	assert.Equal(t, "-7.500000", u.Query().Get("lng"))
	assert.Equal(t, "13", u.Query().Get("z"))
	assert.Equal(t, "it", u.Query().Get("lang"))
	assert.Equal(t, "lang=it", base.RawQuery, "base is not modified")
}

func TestDecode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		query string
		want  mapview.Viewport
	}{
		{"empty", "", home},
		{"full", "lat=41.9&lng=12.5&z=12", mapview.Viewport{Center: mapview.LatLng{Lat: 41.9, Lng: 12.5}, Zoom: 12, Width: 800, Height: 600}},
		{"zoom missing", "lat=41.9&lng=12.5", mapview.Viewport{Center: mapview.LatLng{Lat: 41.9, Lng: 12.5}, Zoom: DefaultZoom, Width: 800, Height: 600}},
		{"zoom invalid", "lat=41.9&lng=12.5&z=big", mapview.Viewport{Center: mapview.LatLng{Lat: 41.9, Lng: 12.5}, Zoom: DefaultZoom, Width: 800, Height: 600}},
		{"lng missing", "lat=41.9&z=3", home},
		{"not a number", "lat=north&lng=12.5", home},
		{"nan", "lat=NaN&lng=12.5", home},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			values, err := url.ParseQuery(c.query)
			require.NoError(t, err)
			assert.Equal(t, c.want, Decode(values, home))
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("http://localhost:8765/")
	u, err := url.Parse(Encode(base, home))
	require.NoError(t, err)
	assert.Equal(t, home, Decode(u.Query(), mapview.Viewport{Width: 800, Height: 600}))
}

type fakeClipboard struct {
	err error
	got string
}

func (f *fakeClipboard) WriteText(_ context.Context, text string) error {
	f.got = text
	return f.err
}

type fakePrompter struct {
	message, text string
	err           error
}

func (f *fakePrompter) Prompt(message, text string) error {
	f.message, f.text = message, text
	return f.err
}

func TestCopy(t *testing.T) {
	t.Parallel()

	clip := &fakeClipboard{}
	prompt := &fakePrompter{}
	method, err := Copy(context.Background(), clip, prompt, "Press Ctrl+C", "http://x/?lat=1")
	require.NoError(t, err)
	assert.Equal(t, MethodClipboard, method)
	assert.Equal(t, "http://x/?lat=1", clip.got)
	assert.Empty(t, prompt.text)
}

func TestCopyFallsBackToPrompt(t *testing.T) {
	t.Parallel()

	denied := errors.New("permission denied")
	prompt := &fakePrompter{}
	method, err := Copy(context.Background(), &fakeClipboard{err: denied}, prompt, "Press Ctrl+C", "http://x/")
	assert.Equal(t, MethodPrompt, method)

	var cerr *ClipboardError
	require.True(t, errors.As(err, &cerr))
	assert.True(t, errors.Is(err, denied))
	assert.Equal(t, "Press Ctrl+C", prompt.message)
	assert.Equal(t, "http://x/", prompt.text)

	method, err = Copy(context.Background(), nil, prompt, "m", "t")
	assert.Equal(t, MethodPrompt, method)
	assert.True(t, errors.Is(err, ErrNoClipboard))

	_, err = Copy(context.Background(), nil, &fakePrompter{err: errors.New("closed")}, "m", "t")
	assert.Error(t, err)
	assert.False(t, errors.As(err, &cerr))
}

func TestWriterPrompter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriterPrompter{W: &buf}.Prompt("Copy this:", "http://x/"))
	assert.Equal(t, "Copy this:\nhttp://x/\n", buf.String())
}

func TestQR(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, QR(&buf, "http://localhost:8765/?lat=45.539700&lng=10.220600&z=10", QROptions{TargetPx: 300}))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	b := img.Bounds()
	assert.Equal(t, b.Dx(), b.Dy())
	assert.GreaterOrEqual(t, b.Dx(), 300)

	r, g, bl, _ := img.At(b.Dx()/2, b.Dy()/2).RGBA()
	assert.Equal(t, [3]uint32{0x2e2e, 0x7d7d, 0x3232}, [3]uint32{r, g, bl}, "mast at the center")
}
