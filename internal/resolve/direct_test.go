package resolve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayahplayer/ayah/internal/ayah"
	"github.com/ayahplayer/ayah/internal/reciter"
)

// fakeHosts serves a fixed set of paths and records every request.
type fakeHosts struct {
	mu       sync.Mutex
	ok       map[string]bool
	noHead   bool
	requests []string
}

func (f *fakeHosts) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	ok := f.ok[r.URL.Path]
	noHead := f.noHead
	f.mu.Unlock()

	switch {
	case !ok:
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodHead && noHead:
		w.WriteHeader(http.StatusMethodNotAllowed)
	case r.Header.Get("Range") != "":
		w.WriteHeader(http.StatusPartialContent)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (f *fakeHosts) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func newTestDirect(t *testing.T, hosts *fakeHosts, lastResort bool) (*Direct, string) {
	t.Helper()
	srv := httptest.NewServer(hosts)
	t.Cleanup(srv.Close)

	return NewDirect(DirectConfig{
		Catalog: reciter.NewCatalog(
			reciter.Reciter{ID: "sudais", IslamicCode: "ar.sudais", EveryAyahFolders: []string{"Sudais_64kbps"}},
			reciter.Reciter{ID: "hussary", EveryAyahFolders: []string{"Husary_128kbps"}},
			reciter.Reciter{ID: "alafasy", IslamicCode: "ar.alafasy"},
		),
		ProbesPerSecond: 1000,
		LastResort:      lastResort,
		IslamicBase:     srv.URL + "/isl",
		EveryAyahBase:   srv.URL + "/ea",
	}), srv.URL
}

func TestDirectPrefersIslamicNetwork(t *testing.T) {
	hosts := &fakeHosts{ok: map[string]bool{
		"/isl/64/ar.sudais/262.mp3":    true,
		"/ea/Sudais_64kbps/002255.mp3": true,
	}}
	d, base := newTestDirect(t, hosts, false)

	url, err := d.Resolve(context.Background(), NewRequest(ayah.Selection{ReciterID: "sudais", Bitrate: ayah.BitrateLow}, ayatAlKursi))
	require.NoError(t, err)
	assert.Equal(t, base+"/isl/64/ar.sudais/262.mp3", url)
}

func TestDirectFallsBackToEveryAyah(t *testing.T) {
	hosts := &fakeHosts{noHead: true, ok: map[string]bool{
		"/ea/Husary_128kbps/002255.mp3": true,
	}}
	d, base := newTestDirect(t, hosts, false)

	url, err := d.Resolve(context.Background(), NewRequest(ayah.Selection{ReciterID: "hussary", Bitrate: ayah.BitrateHigh}, ayatAlKursi))
	require.NoError(t, err)
	assert.Equal(t, base+"/ea/Husary_128kbps/002255.mp3", url)
	assert.Equal(t, 1, hosts.count("GET /ea/Husary_128kbps"), "ranged GET after rejected HEAD")
}

func TestDirectSharedFallbackFolders(t *testing.T) {
	hosts := &fakeHosts{ok: map[string]bool{
		"/ea/" + reciter.FallbackFolders[2] + "/002255.mp3": true,
	}}
	d, base := newTestDirect(t, hosts, false)

	url, err := d.Resolve(context.Background(), NewRequest(ayah.Selection{ReciterID: "hussary", Bitrate: ayah.BitrateHigh}, ayatAlKursi))
	require.NoError(t, err)
	assert.Equal(t, base+"/ea/"+reciter.FallbackFolders[2]+"/002255.mp3", url)
}

func TestDirectRemembersWorkingSource(t *testing.T) {
	hosts := &fakeHosts{ok: map[string]bool{
		"/ea/Sudais_64kbps/002255.mp3": true,
		"/ea/Sudais_64kbps/002256.mp3": true,
	}}
	d, _ := newTestDirect(t, hosts, false)
	sel := ayah.Selection{ReciterID: "sudais", Bitrate: ayah.BitrateLow}

	_, err := d.Resolve(context.Background(), NewRequest(sel, ayatAlKursi))
	require.NoError(t, err)
	islamicProbes := hosts.count("HEAD /isl/")

	_, err = d.Resolve(context.Background(), NewRequest(sel, ayah.Verse{Chapter: 2, InChapter: 256, Global: 263}))
	require.NoError(t, err)
	assert.Equal(t, islamicProbes, hosts.count("HEAD /isl/"), "second verse starts with the remembered folder")
}

func TestDirectFailure(t *testing.T) {
	d, _ := newTestDirect(t, &fakeHosts{}, false)

	_, err := d.Resolve(context.Background(), NewRequest(ayah.Selection{ReciterID: "hussary", Bitrate: ayah.BitrateHigh}, ayatAlKursi))
	assert.ErrorIs(t, err, ayah.ErrResolutionFailure)
}

func TestDirectLastResort(t *testing.T) {
	d, base := newTestDirect(t, &fakeHosts{}, true)

	url, err := d.Resolve(context.Background(), NewRequest(ayah.Selection{ReciterID: "hussary", Bitrate: ayah.BitrateHigh}, ayatAlKursi))
	require.NoError(t, err)
	assert.Equal(t, base+"/isl/128/ar.alafasy/262.mp3", url)
}

func TestDirectCancelled(t *testing.T) {
	d, _ := newTestDirect(t, &fakeHosts{}, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Resolve(ctx, NewRequest(ayah.Selection{ReciterID: "sudais", Bitrate: ayah.BitrateHigh}, ayatAlKursi))
	assert.ErrorIs(t, err, ayah.ErrResolutionFailure)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDirectRememberedSourceKeepsFallbackOrder(t *testing.T) {
	d, _ := newTestDirect(t, &fakeHosts{}, false)
	sel := ayah.Selection{ReciterID: "sudais", Bitrate: ayah.BitrateLow}
	req := NewRequest(sel, ayatAlKursi)

	sources := func() []string {
		var out []string
		for _, c := range d.candidates(req) {
			out = append(out, c.source)
		}
		return out
	}

	before := sources()
	require.Greater(t, len(before), 4)
	assert.Equal(t, "islamic:ar.sudais", before[0])

	remembered := before[3]
	d.mu.Lock()
	d.sticky[sel] = remembered
	d.mu.Unlock()

	after := sources()
	want := append([]string{remembered}, before[:3]...)
	want = append(want, before[4:]...)
	assert.Equal(t, want, after)
}
