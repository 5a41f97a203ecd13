package paramserver

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Filenames of saved parameters
const (
	ModelFile        = "model.gob"
	AverageModelFile = "average_model.gob"
)

// savedParam is the serialized form of a parameter
type savedParam struct {
	Name  string
	Shape []int
	Data  []float64
}

// Save saves the shared parameters and their moving average to dir,
// which is created if it does not exist
func (p *ParamServer) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "save: could not create directory %v", dir)
	}

	p.mu.Lock()
	model := p.serialize(p.values())
	average := p.serialize(p.average)
	p.mu.Unlock()

	if err := write(filepath.Join(dir, ModelFile), model); err != nil {
		return errors.Wrap(err, "save")
	}
	if err := write(filepath.Join(dir, AverageModelFile), average); err != nil {
		return errors.Wrap(err, "save")
	}
	return nil
}

// Load loads the shared parameters and their moving average from dir.
// If the saved parameters do not match the parameters of the
// ParamServer, an error is returned and the ParamServer is left
// unchanged.
func (p *ParamServer) Load(dir string) error {
	model, err := read(filepath.Join(dir, ModelFile))
	if err != nil {
		return errors.Wrap(err, "load")
	}
	average, err := read(filepath.Join(dir, AverageModelFile))
	if err != nil {
		return errors.Wrap(err, "load")
	}

	if err := p.check(model); err != nil {
		return errors.Wrapf(err, "load: %v", ModelFile)
	}
	if err := p.check(average); err != nil {
		return errors.Wrapf(err, "load: %v", AverageModelFile)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.params {
		copy(p.params[i].value.Data().([]float64), model[i].Data)
		copy(p.average[i].Data().([]float64), average[i].Data)
	}

	// Restart the solver, its statistics belong to the old parameters
	p.solver = p.solver.Fresh()

	return nil
}

func (p *ParamServer) serialize(values []*tensor.Dense) []savedParam {
	saved := make([]savedParam, len(values))
	for i := range values {
		data := make([]float64, values[i].Len())
		copy(data, values[i].Data().([]float64))

		saved[i] = savedParam{
			Name:  p.params[i].Name,
			Shape: values[i].Shape().Clone(),
			Data:  data,
		}
	}
	return saved
}

// check returns an error if the saved parameters do not match the
// parameters of the ParamServer
func (p *ParamServer) check(saved []savedParam) error {
	if len(saved) != len(p.params) {
		return fmt.Errorf("invalid number of parameters \n\twant(%v) "+
			"\n\thave(%v)", len(p.params), len(saved))
	}

	for i, s := range saved {
		param := p.params[i]
		if s.Name != param.Name {
			return fmt.Errorf("invalid parameter name at index %v "+
				"\n\twant(%v) \n\thave(%v)", i, param.Name, s.Name)
		}
		if !param.value.Shape().Eq(tensor.Shape(s.Shape)) ||
			len(s.Data) != param.value.Len() {
			return &ShapeError{Name: s.Name,
				Want: param.value.Shape().Clone(), Have: s.Shape}
		}
	}
	return nil
}

func write(path string, params []savedParam) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "could not create %v", path)
	}

	if err := gob.NewEncoder(f).Encode(params); err != nil {
		f.Close()
		return errors.Wrapf(err, "could not encode %v", path)
	}
	return f.Close()
}

func read(path string) ([]savedParam, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %v", path)
	}
	defer f.Close()

	var params []savedParam
	if err := gob.NewDecoder(f).Decode(&params); err != nil {
		return nil, errors.Wrapf(err, "could not decode %v", path)
	}
	return params, nil
}
