package initwfn

import (
	"encoding/json"
	"testing"
)

func TestUnmarshalJSON(t *testing.T) {
	glorotU, _ := NewGlorotU(1.0)
	glorotN, _ := NewGlorotN(0.5)
	heU, _ := NewHeU(2.0)
	zeroes, _ := NewZeroes()

	for _, init := range []*InitWFn{glorotU, glorotN, heU, zeroes} {
		data, err := json.Marshal(init)
		if err != nil {
			t.Fatal(err)
		}

		var decoded InitWFn
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatal(err)
		}

		if decoded.Type != init.Type || decoded.Config != init.Config {
			t.Errorf("incorrect initializer \n\twant(%v) \n\thave(%v)",
				init, &decoded)
		}
		if decoded.InitWFn() == nil {
			t.Errorf("gorgonia initializer should be created on unmarshal")
		}
	}
}

func TestUnmarshalJSONLowercase(t *testing.T) {
	var init InitWFn
	data := []byte(`{"type": "glorotn", "config": {"gain": 2}}`)
	if err := json.Unmarshal(data, &init); err != nil {
		t.Fatal(err)
	}

	if init.Type != GlorotN || init.Config != (GlorotNConfig{Gain: 2}) {
		t.Errorf("incorrect initializer \n\twant(GlorotN 2) \n\thave(%v)",
			&init)
	}

	data = []byte(`{"type": "Zeroes"}`)
	if err := json.Unmarshal(data, &init); err != nil {
		t.Fatal(err)
	}
	if init.Type != Zeroes {
		t.Errorf("incorrect initializer type \n\twant(Zeroes) \n\thave(%v)",
			init.Type)
	}
}

func TestUnmarshalJSONUnknown(t *testing.T) {
	var init InitWFn
	data := []byte(`{"type": "Orthogonal", "config": {}}`)
	if err := json.Unmarshal(data, &init); err == nil {
		t.Errorf("unknown initializer type should be rejected")
	}
}

func TestInvalidGain(t *testing.T) {
	if _, err := NewGlorotU(0); err == nil {
		t.Errorf("Glorot uniform initializer with zero gain should be " +
			"rejected")
	}
	if _, err := NewGlorotN(-1); err == nil {
		t.Errorf("Glorot normal initializer with negative gain should be " +
			"rejected")
	}
	if _, err := NewHeU(-1); err == nil {
		t.Errorf("He uniform initializer with negative gain should be " +
			"rejected")
	}
}
