package shapeloc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/gif"
	"image/png"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/esimov/shapeloc/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func newTestProcessor() *Processor {
	return &Processor{
		Predictor: NewPredictor(newSplitModel()),
		Spinner:   utils.NewSpinnerTo(io.Discard, "", time.Millisecond, false),
	}
}

func TestExecute_SingleFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "face.png")
	require.NoError(t, os.WriteFile(src, encodePNG(t, newHalfImage(40, 40)), 0644))

	dst := filepath.Join(dir, "face.json")
	p := newTestProcessor()
	op := &Ops{Src: src, Dst: dst, PipeName: "-", Stderr: io.Discard}
	require.NoError(t, p.Execute(context.Background(), op))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	var res Result
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, 40, res.Width)
	assert.Len(t, res.Faces, 1)
}

func TestExecute_UnsupportedDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "face.png")
	require.NoError(t, os.WriteFile(src, encodePNG(t, newHalfImage(8, 8)), 0644))

	op := &Ops{Src: src, Dst: filepath.Join(dir, "face.tiff"), PipeName: "-", Stderr: io.Discard}
	assert.Error(t, newTestProcessor().Execute(context.Background(), op))

	op = &Ops{Src: filepath.Join(dir, "missing.png"), Dst: filepath.Join(dir, "out.png"), PipeName: "-", Stderr: io.Discard}
	assert.Error(t, newTestProcessor().Execute(context.Background(), op))
}

func TestExecute_Directory(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.png"), encodePNG(t, newHalfImage(20, 20)), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "b.png"), encodePNG(t, newHalfImage(30, 20)), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("skip me"), 0644))

	f, err := os.Create(filepath.Join(src, "c.gif"))
	require.NoError(t, err)
	require.NoError(t, gif.Encode(f, newHalfImage(16, 16), nil))
	require.NoError(t, f.Close())

	dst := filepath.Join(t.TempDir(), "out")
	op := &Ops{Src: src, Dst: dst, PipeName: "-", Workers: 2, Stderr: io.Discard}
	require.NoError(t, newTestProcessor().Execute(context.Background(), op))

	assert.ElementsMatch(t, []string{"a.png", "c.png", filepath.Join("nested", "b.png")}, listFiles(t, dst))
}

// listFiles returns the regular files found under dir, relative to it.
func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		files = append(files, rel)
		return err
	})
	require.NoError(t, err)
	return files
}

func TestExecute_DirectoryKeepsSameNamedImages(t *testing.T) {
	src := t.TempDir()
	for _, d := range []string{"a", "b"} {
		require.NoError(t, os.MkdirAll(filepath.Join(src, d), 0755))
		require.NoError(t, os.WriteFile(filepath.Join(src, d, "face.png"), encodePNG(t, newHalfImage(20, 20)), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(src, "face.png"), encodePNG(t, newHalfImage(24, 24)), 0644))

	f, err := os.Create(filepath.Join(src, "face.gif"))
	require.NoError(t, err)
	require.NoError(t, gif.Encode(f, newHalfImage(16, 16), nil))
	require.NoError(t, f.Close())

	dst := filepath.Join(t.TempDir(), "out")
	op := &Ops{Src: src, Dst: dst, PipeName: "-", Workers: 4, Stderr: io.Discard}
	require.NoError(t, newTestProcessor().Execute(context.Background(), op))

	assert.ElementsMatch(t, []string{
		filepath.Join("a", "face.png"),
		filepath.Join("b", "face.png"),
		"face.png",
		"face_gif.png",
	}, listFiles(t, dst))

	// Every result keeps the size of its own source.
	for name, size := range map[string]int{"face.png": 24, "face_gif.png": 16} {
		r, err := os.Open(filepath.Join(dst, name))
		require.NoError(t, err)
		cfg, err := png.DecodeConfig(r)
		r.Close()
		require.NoError(t, err)
		assert.Equal(t, size, cfg.Width, name)
	}
}

func encodeBMP(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, img))
	return buf.Bytes()
}

func TestExecute_DirectoryJSONNameClash(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "face.png"), encodePNG(t, newHalfImage(20, 20)), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "face.bmp"), encodeBMP(t, newHalfImage(20, 20)), 0644))

	dst := filepath.Join(t.TempDir(), "out")
	p := newTestProcessor()
	p.Format = "json"
	op := &Ops{Src: src, Dst: dst, PipeName: "-", Stderr: io.Discard}
	require.NoError(t, p.Execute(context.Background(), op))

	assert.ElementsMatch(t, []string{"face.json", "face_png.json"}, listFiles(t, dst))
}

func TestExecute_LeavesSpinnerUnset(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "face.png")
	require.NoError(t, os.WriteFile(src, encodePNG(t, newHalfImage(20, 20)), 0644))

	p := &Processor{Predictor: NewPredictor(newSplitModel())}
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dst := filepath.Join(dir, fmt.Sprintf("face%d.json", i))
			op := &Ops{Src: src, Dst: dst, PipeName: "-", Stderr: io.Discard}
			assert.NoError(t, p.Execute(context.Background(), op))
		}(i)
	}
	wg.Wait()
	assert.Nil(t, p.Spinner)
}

func TestExecute_DirectoryJSON(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.png"), encodePNG(t, newHalfImage(20, 20)), 0644))

	dst := filepath.Join(t.TempDir(), "out")
	p := newTestProcessor()
	p.Format = "json"
	op := &Ops{Src: src, Dst: dst, PipeName: "-", Stderr: io.Discard}
	require.NoError(t, p.Execute(context.Background(), op))

	_, err := os.Stat(filepath.Join(dst, "a.json"))
	assert.NoError(t, err)
}

func TestExecute_DirectoryReportsFailures(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "good.png"), encodePNG(t, newHalfImage(20, 20)), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "bad.jpg"), []byte("not a jpeg"), 0644))

	dst := filepath.Join(t.TempDir(), "out")
	op := &Ops{Src: src, Dst: dst, PipeName: "-", Stderr: io.Discard}
	err := newTestProcessor().Execute(context.Background(), op)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.jpg")

	_, err = os.Stat(filepath.Join(dst, "good.png"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dst, "bad.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestExecute_URL(t *testing.T) {
	data := encodePNG(t, newHalfImage(24, 24))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	defer srv.Close()

	dst := filepath.Join(t.TempDir(), "face.png")
	op := &Ops{Src: srv.URL + "/face.png", Dst: dst, PipeName: "-", Stderr: io.Discard}
	require.NoError(t, newTestProcessor().Execute(context.Background(), op))

	_, err := os.Stat(dst)
	assert.NoError(t, err)
}

func TestProcessor_OutputName(t *testing.T) {
	p := &Processor{}
	assert.Equal(t, "a.jpg", p.outputName("a.jpg"))
	assert.Equal(t, "a.png", p.outputName("a.webp"))
	p.Format = "json"
	assert.Equal(t, "a.json", p.outputName("a.jpg"))
}
