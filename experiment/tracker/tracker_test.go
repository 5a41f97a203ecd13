package tracker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	ts "github.com/samuelfneumann/goacer/timestep"
)

// episode returns the timesteps of an episode with the given rewards
func episode(rewards ...float64) []ts.TimeStep {
	obs := mat.NewVecDense(1, nil)
	steps := []ts.TimeStep{ts.New(ts.First, 0, 1, obs, 0)}
	for i, r := range rewards {
		stepType := ts.Mid
		if i == len(rewards)-1 {
			stepType = ts.Last
		}
		steps = append(steps, ts.New(stepType, r, 1, obs, i+1))
	}
	return steps
}

func TestReturn(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "returns.bin")
	r := NewReturn(filename)

	for _, ep := range [][]float64{{0, 0, 1}, {0.5, -1}, {2}} {
		for _, step := range episode(ep...) {
			r.Track(step)
		}
	}

	// Unfinished episodes are not tracked
	for _, step := range episode(3, 3)[:2] {
		r.Track(step)
	}

	want := []float64{1, -0.5, 2}
	if !floats.Equal(r.Data(), want) {
		t.Errorf("incorrect returns \n\twant(%v) \n\thave(%v)", want, r.Data())
	}

	if err := r.Save(); err != nil {
		t.Fatal(err)
	}
	have, err := LoadData(filename)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(have, want) {
		t.Errorf("incorrect loaded returns \n\twant(%v) \n\thave(%v)", want,
			have)
	}
}

func TestReturnNonSequential(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("tracking non-sequential timesteps should panic")
		}
	}()

	r := NewReturn("")
	steps := episode(0, 0, 1)
	r.Track(steps[0])
	r.Track(steps[2])
}

func TestEpisodeLength(t *testing.T) {
	e := NewEpisodeLength(filepath.Join(t.TempDir(), "lengths.bin"))
	for _, ep := range [][]float64{{0, 0, 1}, {1}} {
		for _, step := range episode(ep...) {
			e.Track(step)
		}
	}

	want := []float64{3, 1}
	if !floats.Equal(e.Data(), want) {
		t.Errorf("incorrect episode lengths \n\twant(%v) \n\thave(%v)", want,
			e.Data())
	}
	if err := e.Save(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDataMissing(t *testing.T) {
	if _, err := LoadData(filepath.Join(t.TempDir(), "none.bin")); err == nil {
		t.Errorf("loading a missing file should fail")
	}
}

func TestPlotCurves(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "returns.png")
	curves := map[string][]float64{
		"worker 0": {0, 0, 1, 1},
		"worker 1": {0, 1, 1},
		"worker 2": nil,
	}

	if err := PlotCurves(filename, "Returns", "Episode", "Return",
		curves); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(filename); err != nil || info.Size() == 0 {
		t.Errorf("plot should be saved to %v: %v", filename, err)
	}
}

func TestPlotCurvesLong(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "returns.png")
	long := make([]float64, 40_000)
	for i := range long {
		long[i] = float64(i % 2)
	}

	if err := PlotCurves(filename, "Returns", "Episode", "Return",
		map[string][]float64{"worker 0": long}); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(filename); err != nil || info.Size() == 0 {
		t.Errorf("plot should be saved to %v: %v", filename, err)
	}
}

func TestSmooth(t *testing.T) {
	short := []float64{3, 1, 2}
	pts := smooth(short, 5)
	if len(pts) != len(short) {
		t.Fatalf("short curves should not be smoothed \n\twant(%v) "+
			"\n\thave(%v)", len(short), len(pts))
	}
	for i, pt := range pts {
		if pt.X != float64(i) || pt.Y != short[i] {
			t.Errorf("incorrect point %v \n\twant(%v, %v) \n\thave(%v, %v)",
				i, i, short[i], pt.X, pt.Y)
		}
	}

	// 10 points in windows of 3: [0 1 2] [3 4 5] [6 7 8] [9]
	long := make([]float64, 10)
	for i := range long {
		long[i] = float64(i)
	}
	pts = smooth(long, 4)
	want := []float64{1, 4, 7, 9}
	if len(pts) != len(want) {
		t.Fatalf("incorrect number of points \n\twant(%v) \n\thave(%v)",
			len(want), len(pts))
	}
	for i, pt := range pts {
		if pt.X != want[i] || pt.Y != want[i] {
			t.Errorf("incorrect point %v \n\twant(%v, %v) \n\thave(%v, %v)",
				i, want[i], want[i], pt.X, pt.Y)
		}
	}

	if n := len(smooth(make([]float64, 40_000), MaxPlotPoints)); n > MaxPlotPoints {
		t.Errorf("smoothed curves should have at most %v points: have(%v)",
			MaxPlotPoints, n)
	}
}

func TestReport(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "evaluation.html")
	series := map[string][]Evaluation{
		"worker 0": {{Step: 100, Score: 0}, {Step: 300, Score: 1}},
		"worker 1": {{Step: 200, Score: 0.5}},
	}

	if err := Report(filename, "ABC", series); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"ABC", "worker 0", "worker 1"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("report should contain %q", want)
		}
	}
}
