package experiment

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/samuelfneumann/goacer/agent"
	env "github.com/samuelfneumann/goacer/environment"
	"github.com/samuelfneumann/goacer/experiment/checkpointer"
	"github.com/samuelfneumann/goacer/experiment/tracker"
	"github.com/samuelfneumann/goacer/utils/progressbar"
)

// Names of the files and directories written to the output directory
const (
	ConfigFile     = "config.yaml"
	SuccessfulDir  = "successful"
	ReturnsPlot    = "returns.png"
	EvalReport     = "evaluation.html"
	checkpointName = "checkpoint"
)

// Result summarizes an asynchronous training run
type Result struct {
	// Steps is the total number of steps taken by all agents
	Steps int

	// Successful is whether an evaluation reached the successful score
	Successful bool

	// Evaluations of each agent, indexed by agent
	Evaluations [][]tracker.Evaluation

	// Returns of the training episodes of each agent, indexed by agent
	Returns [][]float64
}

// PrepareOutputDir creates and returns a new, uniquely named directory
// under root for the results of an experiment
func PrepareOutputDir(root string) (string, error) {
	dir := filepath.Join(root, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "prepareOutputDir")
	}
	return dir, nil
}

// trainer holds the state shared by the workers of a training run
type trainer struct {
	config Config
	shared agent.Shared
	outDir string
	cancel context.CancelFunc

	steps        atomic.Int64
	checkpointer checkpointer.Checkpointer

	successOnce sync.Once
	successful  atomic.Bool
	successErr  error
}

// worker is a single agent learning in its own copy of the environment
type worker struct {
	id      int
	t       *trainer
	online  *Online
	evalEnv env.Environment

	returns *tracker.Return

	mu          sync.Mutex
	evaluations []tracker.Evaluation
}

// TrainAsync trains Processes agents asynchronously with shared state,
// each agent acting in its own copy of the environment, until the agents
// have taken Steps steps in total, an evaluation reaches the successful
// score, or ctx is cancelled.
//
// The configuration, tracked returns and episode lengths, a learning
// curve if any episode finished, and an evaluation report if any
// evaluation was performed are saved to outDir. If an evaluation
// is successful, the shared parameters are saved to the SuccessfulDir
// subdirectory of outDir. Once training stops, the shared parameters
// are saved to the "<steps>_finish" subdirectory of outDir.
func TrainAsync(ctx context.Context, c Config, outDir string) (Result,
	error) {
	if err := c.Validate(); err != nil {
		return Result{}, errors.Wrap(err, "trainAsync")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, errors.Wrap(err, "trainAsync")
	}
	if err := SaveConfig(filepath.Join(outDir, ConfigFile), c); err != nil {
		return Result{}, errors.Wrap(err, "trainAsync")
	}

	e, _, err := c.Env.Create(c.Seed)
	if err != nil {
		return Result{}, errors.Wrap(err, "trainAsync")
	}
	shared, err := c.Agent.Config.(agent.SharedConfig).CreateShared(e, c.Seed)
	if err != nil {
		return Result{}, errors.Wrap(err, "trainAsync: could not create "+
			"shared state")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := &trainer{
		config: c,
		shared: shared,
		outDir: outDir,
		cancel: cancel,
	}
	if c.CheckpointFrequency > 0 {
		t.checkpointer, err = checkpointer.NewNStep(c.CheckpointFrequency,
			shared, checkpointer.Enumerator(0,
				filepath.Join(outDir, checkpointName)))
		if err != nil {
			return Result{}, errors.Wrap(err, "trainAsync")
		}
	}

	workers := make([]*worker, c.Processes)
	for i := range workers {
		if workers[i], err = t.newWorker(i); err != nil {
			for _, w := range workers[:i] {
				w.close()
			}
			return Result{}, errors.Wrap(err, "trainAsync")
		}
	}

	log.WithFields(logrus.Fields{
		"agent":     c.Agent.Type,
		"env":       c.Env.Environment,
		"processes": c.Processes,
		"steps":     c.Steps,
		"out":       outDir,
	}).Info("starting training")

	stopProgress := make(chan struct{})
	if c.ProgressBar {
		go t.displayProgress(stopProgress)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(workers))
	for _, w := range workers {
		wg.Add(1)
		go func(w *worker) {
			defer wg.Done()
			defer w.close()
			if err := w.run(ctx); err != nil {
				errs <- err
				cancel()
			}
		}(w)
	}
	wg.Wait()
	close(stopProgress)
	close(errs)

	if err := <-errs; err != nil {
		return Result{}, errors.Wrap(err, "trainAsync")
	}
	if t.successErr != nil {
		return Result{}, errors.Wrap(t.successErr, "trainAsync")
	}

	steps := int(t.steps.Load())
	if steps > c.Steps {
		steps = c.Steps
	}
	result := Result{
		Steps:       steps,
		Successful:  t.successful.Load(),
		Evaluations: make([][]tracker.Evaluation, len(workers)),
		Returns:     make([][]float64, len(workers)),
	}
	for i, w := range workers {
		result.Evaluations[i] = w.evaluations
		result.Returns[i] = w.returns.Data()
	}

	finish := filepath.Join(outDir, fmt.Sprintf("%d_finish", steps))
	if err := shared.Save(finish); err != nil {
		return result, errors.Wrap(err, "trainAsync: could not save final "+
			"model")
	}
	if err := t.save(workers); err != nil {
		return result, errors.Wrap(err, "trainAsync")
	}

	log.WithFields(logrus.Fields{
		"steps":      result.Steps,
		"successful": result.Successful,
	}).Info("finished training")
	return result, nil
}

// newWorker creates the i-th worker of the training run
func (t *trainer) newWorker(i int) (*worker, error) {
	c := t.config
	seed := c.Seed + uint64(i)

	e, first, err := c.Env.Create(seed)
	if err != nil {
		return nil, errors.Wrapf(err, "newWorker %v", i)
	}
	evalEnv, _, err := c.Env.CreateEval(seed)
	if err != nil {
		return nil, errors.Wrapf(err, "newWorker %v", i)
	}
	a, err := t.shared.NewAgent(seed)
	if err != nil {
		return nil, errors.Wrapf(err, "newWorker %v: could not create agent",
			i)
	}

	returns := tracker.NewReturn(filepath.Join(t.outDir,
		fmt.Sprintf("returns_%d.bin", i)))
	lengths := tracker.NewEpisodeLength(filepath.Join(t.outDir,
		fmt.Sprintf("lengths_%d.bin", i)))

	return &worker{
		id:      i,
		t:       t,
		online:  NewOnline(e, a, first, returns, lengths),
		evalEnv: evalEnv,
		returns: returns,
	}, nil
}

// run runs the worker until the total step budget is used up or ctx
// is cancelled
func (w *worker) run(ctx context.Context) error {
	c := w.t.config
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n := int(w.t.steps.Add(1))
		if n > c.Steps {
			w.t.cancel()
			return nil
		}

		if _, err := w.online.Step(); err != nil {
			return errors.Wrapf(err, "worker %v", w.id)
		}

		if w.t.checkpointer != nil {
			if err := w.t.checkpointer.Checkpoint(n); err != nil {
				return errors.Wrapf(err, "worker %v", w.id)
			}
		}

		if c.EvalFrequency > 0 && n%c.EvalFrequency == 0 {
			if err := w.evaluate(n); err != nil {
				return errors.Wrapf(err, "worker %v", w.id)
			}
		}
	}
}

// evaluate evaluates the worker's agent after n total steps
func (w *worker) evaluate(n int) error {
	c := w.t.config
	returns, err := Evaluate(w.online.Agent, w.evalEnv, c.EvalNRuns)
	if err != nil {
		return errors.Wrap(err, "evaluate")
	}
	score := stat.Mean(returns, nil)

	w.mu.Lock()
	w.evaluations = append(w.evaluations, tracker.Evaluation{
		Step:  n,
		Score: score,
	})
	w.mu.Unlock()

	fields := logrus.Fields{
		"worker": w.id,
		"step":   n,
		"score":  score,
	}
	if r, ok := w.online.Agent.(agent.Reporter); ok {
		for _, s := range r.Statistics() {
			fields[s.Name] = s.Value
		}
	}
	log.WithFields(fields).Info("evaluation")

	if c.SuccessfulScore != nil && score >= *c.SuccessfulScore {
		w.t.succeed(w.id, n)
	}
	return nil
}

// succeed saves the shared parameters to the successful directory and
// stops all workers. Only the first successful evaluation is saved.
func (t *trainer) succeed(worker, step int) {
	t.successOnce.Do(func() {
		dir := filepath.Join(t.outDir, SuccessfulDir)
		if err := t.shared.Save(dir); err != nil {
			t.successErr = errors.Wrap(err, "succeed: could not save model")
		} else {
			t.successful.Store(true)
			log.WithFields(logrus.Fields{
				"worker": worker,
				"step":   step,
				"dir":    dir,
			}).Info("reached successful score")
		}
		t.cancel()
	})
}

// save saves the data tracked by all workers, a plot of their learning
// curves, and a report of their evaluations
func (t *trainer) save(workers []*worker) error {
	curves := make(map[string][]float64, len(workers))
	evals := make(map[string][]tracker.Evaluation, len(workers))
	for _, w := range workers {
		if err := w.online.Save(); err != nil {
			return errors.Wrapf(err, "save: worker %v", w.id)
		}

		name := fmt.Sprintf("worker %d", w.id)
		curves[name] = w.returns.Data()
		if len(w.evaluations) > 0 {
			evals[name] = w.evaluations
		}
	}

	finished := false
	for _, returns := range curves {
		finished = finished || len(returns) > 0
	}
	if finished {
		err := tracker.PlotCurves(filepath.Join(t.outDir, ReturnsPlot),
			"Training Returns", "Episode", "Return", curves)
		if err != nil {
			return errors.Wrap(err, "save")
		}
	}

	if len(evals) > 0 {
		err := tracker.Report(filepath.Join(t.outDir, EvalReport),
			string(t.config.Agent.Type), evals)
		if err != nil {
			return errors.Wrap(err, "save")
		}
	}
	return nil
}

// displayProgress displays a progress bar of the total number of steps
// taken until stop is closed
func (t *trainer) displayProgress(stop <-chan struct{}) {
	bar := progressbar.NewManualProgressBar(os.Stderr, 50, t.config.Steps)
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			bar.Set(int(t.steps.Load()))
			bar.Display()
		case <-stop:
			bar.Set(int(t.steps.Load()))
			bar.Display()
			fmt.Fprintln(os.Stderr)
			return
		}
	}
}

// close releases the resources held by the worker's agent
func (w *worker) close() {
	if c, ok := w.online.Agent.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.WithField("worker", w.id).Warnf("could not close agent: %v",
				err)
		}
	}
}
