// Package initwfn implements functionality to wrap Gorgonia InitWFn
// so that they can be JSON serialized into configuraiton files.
package initwfn

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	G "gorgonia.org/gorgonia"
)

// Type describes different types of InitWFn that are available.
// Type is used to implement a basic type system of InitWFn's.
type Type string

// Available InitWFn types
const (
	GlorotU Type = "GlorotU"
	GlorotN Type = "GlorotN"
	HeU     Type = "HeU"
	Zeroes  Type = "Zeroes"
)

var registry = map[string]reflect.Type{
	string(GlorotU): reflect.TypeOf(GlorotUConfig{}),
	string(GlorotN): reflect.TypeOf(GlorotNConfig{}),
	string(HeU):     reflect.TypeOf(HeUConfig{}),
	string(Zeroes):  reflect.TypeOf(ZeroesConfig{}),
}

// InitWFn wraps Gorgonia InitWFn so that they can be JSON marshalled and
// unmarshalled.
type InitWFn struct {
	initWFn G.InitWFn
	Type
	Config
}

// newInitWFn returns a new InitWFn
func newInitWFn(c Config) (*InitWFn, error) {
	init := InitWFn{Type: c.Type(), Config: c}
	init.initWFn = init.Config.Create()

	return &init, nil
}

// InitWFn returns the wrapped Gorgonia InitWFn
func (i *InitWFn) InitWFn() G.InitWFn {
	return i.initWFn
}

// String implements the fmt.Stringer interface
func (i *InitWFn) String() string {
	return fmt.Sprintf("{%v InitWFn: %v}", i.Type, i.Config)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (i *InitWFn) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(data, "Type", "Config",
		registry)
	if err != nil {
		return err
	}

	i.Type = typeName
	i.Config = config
	i.initWFn = i.Config.Create()

	return nil
}

// lookup returns the value of the key in m matching field without
// regard to case
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

	t, _ := lookup(m, typeJsonField)
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
		return nil, "", fmt.Errorf("unmarshalConfig: no such initializer "+
			"%v", typeName)
	}
	value := reflect.New(ty).Interface()

	// Configs without fields, such as Zeroes, may omit the config
	configValue, ok := lookup(m, valueJsonField)
	if ok && configValue != nil {
		valueBytes, err := json.Marshal(configValue)
		if err != nil {
			return nil, "", err
		}

		if err = json.Unmarshal(valueBytes, value); err != nil {
			return nil, "", err
		}
	}
	concreteValue := reflect.ValueOf(value).Elem().Interface().(Config)

	return concreteValue, Type(typeName), nil
}

// Config implements a Gorgonia InitWFn configuration and can be used to
// create the described Gorgonia InitWFn's.
type Config interface {
	// Create returns the Gorgonia InitWFn that the Config describes
	Create() G.InitWFn

	// Type returns the type of Gorgonia InitWFn that is returned
	Type() Type
}
