package factory

import (
	"errors"
	"testing"
)

type widget struct {
	Size int `json:"size"`
}

func TestRegistryCreate(t *testing.T) {
	r := NewRegistry[*widget]()
	err := r.Register("basic", func(conf map[string]any) (*widget, error) {
		var w widget
		if err := Decode(conf, &w); err != nil {
			return nil, err
		}
		return &w, nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	w, err := r.Create(ModuleConfig{Type: "basic", Conf: map[string]any{"size": 3}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if w.Size != 3 {
		t.Fatalf("config not decoded: %+v", w)
	}

	if _, err := r.Create(ModuleConfig{Type: "missing"}); !errors.Is(err, ErrUnknownModule) {
		t.Fatalf("unknown type: got %v, want ErrUnknownModule", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry[int]()
	f := func(map[string]any) (int, error) { return 0, nil }
	if err := r.Register("a", f); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("a", f); !errors.Is(err, ErrDuplicateModule) {
		t.Fatalf("duplicate registration: got %v, want ErrDuplicateModule", err)
	}
	if err := r.Register("b", nil); err == nil {
		t.Fatalf("nil factory accepted")
	}
}

func TestDecodeUsesJSONTags(t *testing.T) {
	var w widget
	if err := Decode(map[string]any{"size": 7}, &w); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.Size != 7 {
		t.Fatalf("json tag not honored: %+v", w)
	}
}
