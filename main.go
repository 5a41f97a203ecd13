// Command goacer trains ACER agents asynchronously and saves the
// results of the experiment.
//
// The experiment is configured by a YAML or JSON file given with the
// -config flag, or by a default configuration on the ABC environment.
// Any configuration value can be overridden with an environment
// variable prefixed with ACER_, with nested keys separated by
// underscores, for example ACER_STEPS=5000 or ACER_AGENT_CONFIG_TMAX=3.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/logrusorgru/aurora"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/samuelfneumann/goacer/agent"
	"github.com/samuelfneumann/goacer/agent/nonlinear/acer"
	"github.com/samuelfneumann/goacer/environment/envconfig"
	"github.com/samuelfneumann/goacer/experiment"
)

func main() {
	configFile := flag.String("config", "", "experiment configuration "+
		"file, the default configuration is used if empty")
	outRoot := flag.String("out", "results", "directory to save results in")
	level := flag.String("log-level", "info", "logging level")
	flag.Parse()

	lvl, err := logrus.ParseLevel(*level)
	if err != nil {
		logrus.Fatalf("invalid log level: %v", err)
	}
	logrus.SetLevel(lvl)

	c, err := loadConfig(*configFile)
	if err != nil {
		logrus.Fatal(err)
	}

	outDir, err := experiment.PrepareOutputDir(*outRoot)
	if err != nil {
		logrus.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := experiment.TrainAsync(ctx, c, outDir)
	if err != nil {
		logrus.Fatal(err)
	}
	summarize(result, outDir)
}

// defaultConfig returns the configuration used when no configuration
// file is given
func defaultConfig() experiment.Config {
	score := 1.0
	a := acer.DefaultConfig()
	a.ActDeterministically = true

	return experiment.Config{
		Agent: agent.NewTypedConfig(a),
		Env: envconfig.NewConfig(envconfig.ABC, 2, false, true, false, false,
			0, 0.99),
		Seed:            1,
		Processes:       4,
		Steps:           100_000,
		EvalFrequency:   500,
		EvalNRuns:       5,
		SuccessfulScore: &score,
		ProgressBar:     true,
	}
}

// loadConfig loads the experiment configuration from filename, or the
// default configuration if filename is empty, and applies overrides
// from ACER_ environment variables
func loadConfig(filename string) (experiment.Config, error) {
	vp := viper.New()
	vp.SetEnvPrefix("ACER")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	if filename != "" {
		vp.SetConfigFile(filename)
		if err := vp.ReadInConfig(); err != nil {
			return experiment.Config{}, errors.Wrapf(err, "loadConfig: "+
				"could not read %v", filename)
		}
	} else {
		defaults, err := toMap(defaultConfig())
		if err != nil {
			return experiment.Config{}, errors.Wrap(err, "loadConfig")
		}
		if err := vp.MergeConfigMap(defaults); err != nil {
			return experiment.Config{}, errors.Wrap(err, "loadConfig")
		}
	}

	c, err := experiment.FromMap(parseScalars(vp.AllSettings()))
	if err != nil {
		return experiment.Config{}, errors.Wrap(err, "loadConfig")
	}
	return c, nil
}

// toMap converts a Config to the map it is decoded from
func toMap(c experiment.Config) (map[string]interface{}, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// parseScalars replaces string values, such as values overridden by
// environment variables, by the YAML scalars they represent
func parseScalars(m map[string]interface{}) map[string]interface{} {
	for k, v := range m {
		switch v := v.(type) {
		case map[string]interface{}:
			m[k] = parseScalars(v)
		case string:
			var scalar interface{}
			if err := yaml.Unmarshal([]byte(v), &scalar); err == nil &&
				scalar != nil {
				m[k] = scalar
			}
		}
	}
	return m
}

// summarize prints a summary of the experiment
func summarize(result experiment.Result, outDir string) {
	status := aurora.Yellow("did not reach the successful score")
	if result.Successful {
		status = aurora.Green("reached the successful score")
	}
	fmt.Printf("%v after %v steps\n", status, aurora.Bold(result.Steps))

	for i, evals := range result.Evaluations {
		if len(evals) == 0 {
			continue
		}
		best := evals[0]
		for _, e := range evals[1:] {
			if e.Score > best.Score {
				best = e
			}
		}
		last := evals[len(evals)-1]
		fmt.Printf("worker %v: best score %v at step %v, last score %v\n",
			i, aurora.Cyan(fmt.Sprintf("%.3f", best.Score)), best.Step,
			aurora.Cyan(fmt.Sprintf("%.3f", last.Score)))
	}
	fmt.Printf("results saved in %v\n", aurora.Blue(outDir))
}
