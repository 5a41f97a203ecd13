package tracker

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/pkg/errors"
)

// Evaluation is the average return of an agent over a number of
// evaluation episodes, measured after some number of training steps
type Evaluation struct {
	Step  int
	Score float64
}

// Report renders the evaluations of a number of agents as an HTML line
// chart at filename. Series are keyed by the name of the agent.
func Report(filename, title string, series map[string][]Evaluation) error {
	// All evaluation steps on the x axis
	stepSet := make(map[int]struct{})
	for _, evals := range series {
		for _, e := range evals {
			stepSet[e.Step] = struct{}{}
		}
	}
	steps := make([]int, 0, len(stepSet))
	for s := range stepSet {
		steps = append(steps, s)
	}
	sort.Ints(steps)

	xAxis := make([]string, len(steps))
	index := make(map[int]int, len(steps))
	for i, s := range steps {
		xAxis[i] = fmt.Sprintf("%d", s)
		index[s] = i
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: "average evaluation return",
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme: "shine",
		}),
	)
	line = line.SetXAxis(xAxis)

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		// Steps at which an agent was not evaluated are left empty
		items := make([]opts.LineData, len(steps))
		for i := range items {
			items[i] = opts.LineData{Value: "-"}
		}
		for _, e := range series[name] {
			items[index[e.Step]] = opts.LineData{Value: e.Score}
		}
		line.AddSeries(name, items)
	}

	page := components.NewPage()
	page.AddCharts(line)

	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "report: could not create report file")
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		return errors.Wrap(err, "report: could not render report")
	}
	return nil
}
