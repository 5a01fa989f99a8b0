package config

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/abdul-hamid-achik/envex/packages/core/env"
	"github.com/abdul-hamid-achik/envex/packages/expose"
)

// explicitFields is the object form of an env value.
type explicitFields struct {
	Required *bool `json:"required"`
	Override *bool `json:"override"`
	Value    any   `json:"value"`
}

// regexFields is the object form of an expose value.
type regexFields struct {
	Regex string `json:"regex"`
	Flags string `json:"flags"`
}

func decodeObject(data any, out any) error {
	conf := &mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
		TagName:     "json",
	}
	decoder, err := mapstructure.NewDecoder(conf)
	if err != nil {
		return err
	}
	return decoder.Decode(data)
}

func toEnvConfig(n *node) (env.Config, error) {
	if n == nil {
		return nil, nil
	}
	switch n.kind {
	case kindNull:
		return nil, nil
	case kindObject:
		m := make(env.Map, 0, len(n.fields))
		for _, f := range n.fields {
			v, err := toEnvValue(f.value)
			if err != nil {
				return nil, fmt.Errorf("env %s: %w", f.key, err)
			}
			m = append(m, env.Entry{Key: f.key, Value: v})
		}
		return m, nil
	case kindArray:
		list := make(env.List, 0, len(n.items))
		for _, item := range n.items {
			if item.kind == kindString {
				list = append(list, env.Ref(item.text))
				continue
			}
			cfg, err := toEnvConfig(item)
			if err != nil {
				return nil, err
			}
			if cfg != nil {
				list = append(list, cfg)
			}
		}
		return list, nil
	case kindString:
		return env.Ref(n.text), nil
	}
	return nil, fmt.Errorf("unsupported env config value %q", n.text)
}

func toEnvValue(n *node) (env.Value, error) {
	switch {
	case n.kind == kindNull:
		return env.Explicit{}, nil
	case n.isScalar():
		return env.Literal(n.text), nil
	case n.kind == kindObject:
		var fields explicitFields
		if err := decodeObject(n.plain(), &fields); err != nil {
			return nil, err
		}
		ex := env.Explicit{Required: fields.Required, Override: fields.Override}
		if inner := n.get("value"); inner != nil && inner.kind != kindNull {
			v, err := toEnvValue(inner)
			if err != nil {
				return nil, err
			}
			ex.Value = v
		}
		return ex, nil
	}
	return nil, fmt.Errorf("lists are not valid env values")
}

func toExposeConfig(n *node) (expose.Config, error) {
	if n == nil {
		return nil, nil
	}
	switch n.kind {
	case kindNull:
		return nil, nil
	case kindObject:
		m := make(expose.Map, 0, len(n.fields))
		for _, f := range n.fields {
			v, err := toExposeValue(f.value)
			if err != nil {
				return nil, fmt.Errorf("expose %s: %w", f.key, err)
			}
			m = append(m, expose.Entry{Name: f.key, Value: v})
		}
		return m, nil
	case kindArray:
		list := make(expose.List, 0, len(n.items))
		for _, item := range n.items {
			if item.kind == kindString {
				list = append(list, expose.Ref(item.text))
				continue
			}
			cfg, err := toExposeConfig(item)
			if err != nil {
				return nil, err
			}
			if cfg != nil {
				list = append(list, cfg)
			}
		}
		return list, nil
	case kindString:
		return expose.Ref(n.text), nil
	}
	return nil, fmt.Errorf("unsupported expose config value %q", n.text)
}

func toExposeValue(n *node) (expose.Value, error) {
	switch {
	case n.isScalar():
		return expose.Literal(n.text), nil
	case n.kind == kindObject:
		var fields regexFields
		if err := decodeObject(n.plain(), &fields); err != nil {
			return nil, err
		}
		return expose.Regex{Pattern: fields.Regex, Flags: fields.Flags}, nil
	}
	return nil, fmt.Errorf("unsupported expose value")
}
