package agent

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Type represents a specific type of an agent Config. Config's with
// this type can create Agents of the corresponding type.
type Type string

// Registered types with the package. Once a Type has been registered
// with this map, a TypedConfig with that type can be deserialized.
//
// No Type's are registered with this package upon initialization.
// Each separate package is in charge of registering its Type with
// the package separately to avoid circular imports.
var (
	registeredTypes   = make(map[Type]reflect.Type)
	registeredTypesMu sync.RWMutex
)

// Register registers an agent's Type with a concrete Config type so
// that upon deserialization of a TypedConfig, Configs of type agentType
// are deserialized into the concrete type of config.
func Register(agentType Type, config Config) {
	registeredTypesMu.Lock()
	defer registeredTypesMu.Unlock()

	t := reflect.TypeOf(config)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	registeredTypes[agentType] = t
}

// TypedConfig implements functionality for typing a Config. In this
// way, a Config can explicitly have its type stored so that when
// deserializing the Config, we can deserialize it into its concrete
// type without knowing beforehand or declaring beforehand a variable
// of its concrete type.
type TypedConfig struct {
	Type
	Config
}

// NewTypedConfig types the argument Config and returns it as a
// TypedConfig which explicitly holds its Type.
func NewTypedConfig(c Config) TypedConfig {
	return TypedConfig{Type: c.Type(), Config: c}
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (t *TypedConfig) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(data, "Type", "Config")
	if err != nil {
		return err
	}

	t.Type = typeName
	t.Config = config

	return nil
}

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
func unmarshalConfig(data []byte, typeJsonField,
	valueJsonField string) (Config, Type, error) {
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	t, _ := lookup(m, typeJsonField)
	name, ok := t.(string)
	if !ok {
		return nil, "", fmt.Errorf("unmarshalConfig: field %v must be a "+
			"string", typeJsonField)
	}

	registeredTypesMu.RLock()
	var ty reflect.Type
	typeName := Type(name)
	for registered, rt := range registeredTypes {
		if strings.EqualFold(string(registered), name) {
			typeName = registered
			ty = rt
		}
	}
	registeredTypesMu.RUnlock()
	if ty == nil {
		return nil, "", fmt.Errorf("unmarshalConfig: agent type %v not "+
			"registered", name)
	}

	value := reflect.New(ty)
	configValue, _ := lookup(m, valueJsonField)
	valueBytes, err := json.Marshal(configValue)
	if err != nil {
		return nil, "", err
	}

	if err = json.Unmarshal(valueBytes, value.Interface()); err != nil {
		return nil, "", err
	}

	// Configs may implement Config with value or pointer receivers
	if c, ok := value.Elem().Interface().(Config); ok {
		return c, typeName, nil
	}
	if c, ok := value.Interface().(Config); ok {
		return c, typeName, nil
	}
	return nil, "", fmt.Errorf("unmarshalConfig: type %v does not "+
		"implement Config", ty)
}
