package main

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorgonia/began"
	ae "github.com/gorgonia/began/aenet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
)

type fixedStatus began.Status

func (s fixedStatus) Status() began.Status { return began.Status(s) }

func TestMonitorRoutes(t *testing.T) {
	st := fixedStatus{RunID: "abc", Epochs: 3, Last: ae.Report{Epoch: 1, Iteration: 42, LossD: 0.5}}
	stream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("frames")) })
	srv := httptest.NewServer(monitorRoutes(st, stream))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var got began.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, began.Status(st), got)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/stream", nil)
	req.Header.Set("Origin", "http://example.com")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "*", resp2.Header.Get("Access-Control-Allow-Origin"))
	var body bytes.Buffer
	body.ReadFrom(resp2.Body)
	assert.Equal(t, "frames", body.String())

	resp3, err := http.Post(srv.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp3.StatusCode)
}

func TestArchTable(t *testing.T) {
	conf := ae.DefaultConf(2, 4)
	gen, dis := ae.Architecture(conf)
	var buf bytes.Buffer
	archTable(&buf, gen, dis)
	out := buf.String()
	assert.Contains(t, out, "NETWORK")
	assert.Contains(t, out, "e_conv_0")
	assert.Contains(t, out, "d_upsample_6")
	assert.Equal(t, 2, strings.Count(out, "total"))
}

func TestGenerate(t *testing.T) {
	conf := ae.DefaultConf(2, 4)
	dir := t.TempDir()
	model := filepath.Join(dir, "generator_iter_1.gob")
	f, err := os.Create(model)
	require.NoError(t, err)
	require.NoError(t, gob.NewEncoder(f).Encode(ae.NewDecoder(G.NewGraph(), conf, "gen")))
	require.NoError(t, f.Close())

	out := filepath.Join(dir, "out.png")
	if err := generate(conf, model, out, 5, 1); err != nil {
		t.Fatalf("%+v", err)
	}
	r, err := os.Open(out)
	require.NoError(t, err)
	defer r.Close()
	im, err := png.Decode(r)
	require.NoError(t, err)
	// five images in a 3x2 grid
	assert.Equal(t, 3*64, im.Bounds().Dx())
	assert.Equal(t, 2*64, im.Bounds().Dy())

	assert.Error(t, generate(conf, filepath.Join(dir, "missing.gob"), out, 5, 1))
	assert.Error(t, generate(conf, model, out, 0, 1))
	wider := conf
	wider.N = 3
	assert.Error(t, generate(wider, model, out, 5, 1))
}

func TestRootCmd(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"train", "generate", "arch"}, names)
}

func TestTrainStopsPrefetcher(t *testing.T) {
	conf := began.DefaultConfig()
	conf.N, conf.H = 2, 4
	conf.BatchSize = 2
	conf.Dataset = "random:4"
	conf.Parallel = 2
	conf.Out = t.TempDir()
	conf.GIF = ""
	conf.Samples = 0 // rejected by NewTrainer, after the iterator started

	before := runtime.NumGoroutine()
	err := train(context.Background(), conf)
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return runtime.NumGoroutine() <= before }, time.Second, 10*time.Millisecond,
		"the prefetching goroutine outlives a failed start")
}
