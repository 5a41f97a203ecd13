// Package solver implements functionality to wrap Gorgonia Solvers
// so that they can be JSON serialized into configuraiton files.
package solver

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Vanilla Type = "Vanilla"
	RMSProp Type = "RMSProp"
)

// Solver wraps Gorgonia Solvers so that they can be JSON marshalled and
// unmarshalled.
type Solver struct {
	G.Solver `json:"-" yaml:"-"`
	Type
	Config
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	solver := Solver{Type: t, Config: c}
	solver.Solver = solver.Config.Create()

	return &solver, nil
}

// Fresh returns a new Solver with the same configuration as s but
// without any of the state s has accumulated.
func (s *Solver) Fresh() *Solver {
	return &Solver{Type: s.Type, Config: s.Config, Solver: s.Config.Create()}
}

// String implements the fmt.Stringer interface
func (s *Solver) String() string {
	return fmt.Sprintf("{%v Solver: %+v}", s.Type, s.Config)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(
		data,
		"Type",
		"Config",
		map[string]reflect.Type{
			string(Vanilla): reflect.TypeOf(VanillaConfig{}),
			string(RMSProp): reflect.TypeOf(RMSPropConfig{}),
		})
	if err != nil {
		return err
	}

	s.Type = typeName
	s.Config = config
	s.Solver = s.Config.Create()

	return nil
}

// lookup returns the value of the key in m which matches field without
// regard to case. Configuration loaders such as viper lowercase all
// keys.
func lookup(m map[string]interface{}, field string) (interface{}, bool) {
	if v, ok := m[field]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, field) {
			return v, true
		}
	}
	return nil, false
}

// unmarshalConfig uses reflection to unmarshall a Config into its
// concrete type. Both the Config and its Type are returned.
func unmarshalConfig(data []byte, typeJsonField, valueJsonField string,
	customTypes map[string]reflect.Type) (Config, Type, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	t, ok := lookup(m, typeJsonField)
	if !ok {
		return nil, "", fmt.Errorf("unmarshalConfig: missing field %v",
			typeJsonField)
	}
	typeName, ok := t.(string)
	if !ok {
		return nil, "", fmt.Errorf("unmarshalConfig: field %v must be a "+
			"string", typeJsonField)
	}

	var ty reflect.Type
	for name, registered := range customTypes {
		if strings.EqualFold(name, typeName) {
			typeName = name
			ty = registered
		}
	}
	if ty == nil {
		return nil, "", fmt.Errorf("unmarshalConfig: no such solver %v",
			typeName)
	}
	value := reflect.New(ty).Interface()

	configValue, _ := lookup(m, valueJsonField)
	valueBytes, err := json.Marshal(configValue)
	if err != nil {
		return nil, "", err
	}

	if err = json.Unmarshal(valueBytes, value); err != nil {
		return nil, "", err
	}
	concreteValue := reflect.ValueOf(value).Elem().Interface().(Config)

	return concreteValue, Type(typeName), nil
}

// Config implements a Gorgonia Solver configuration and can be used to
// create Gorgonia Solvers they describe.
type Config interface {
	Create() G.Solver

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}
