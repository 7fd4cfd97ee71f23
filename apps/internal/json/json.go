// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package json wraps encoding/json so that cache records keep JSON fields they do not
// know about. A struct opts in by declaring `AdditionalFields map[string]interface{}`
// tagged `json:"-"`: Unmarshal stores unknown top level fields there as json.RawMessage
// and Marshal writes them back out.
package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

const addField = "AdditionalFields"

var mapStrInterType = reflect.TypeOf(map[string]interface{}{})

// Marshal is encoding/json.Marshal with AdditionalFields support. Known fields win over an
// additional field with the same name.
func Marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	extra, err := additional(reflect.ValueOf(v))
	if err != nil || len(extra) == 0 {
		return b, err
	}

	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	for k, val := range extra {
		if _, ok := m[k]; ok {
			continue
		}
		raw, err := MarshalRaw(val)
		if err != nil {
			return nil, fmt.Errorf("additional field %q: %w", k, err)
		}
		m[k] = raw
	}
	return json.Marshal(m)
}

// Unmarshal is encoding/json.Unmarshal with AdditionalFields support. i must be a pointer
// to a struct.
func Unmarshal(b []byte, i interface{}) error {
	rv := reflect.ValueOf(i)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("json.Unmarshal() received type %T, must be a non-nil pointer to a struct", i)
	}
	if err := json.Unmarshal(b, i); err != nil {
		return err
	}

	af := rv.Elem().FieldByName(addField)
	if !af.IsValid() {
		return nil
	}
	if af.Type() != mapStrInterType {
		return errors.New("AdditionalFields must be a map[string]interface{}")
	}

	all := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	known := fieldNames(rv.Elem().Type())
	extra := map[string]interface{}{}
	for k, raw := range all {
		if isKnown(k, known) {
			continue
		}
		extra[k] = raw
	}
	if len(extra) == 0 {
		af.Set(reflect.Zero(mapStrInterType))
		return nil
	}
	af.Set(reflect.ValueOf(extra))
	return nil
}

// MarshalRaw returns v as a json.RawMessage. A json.RawMessage is returned unchanged.
func MarshalRaw(v interface{}) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func additional(v reflect.Value) (map[string]interface{}, error) {
	v = reflect.Indirect(v)
	if v.Kind() != reflect.Struct {
		return nil, nil
	}
	af := v.FieldByName(addField)
	if !af.IsValid() || af.IsNil() {
		return nil, nil
	}
	m, ok := af.Interface().(map[string]interface{})
	if !ok {
		return nil, errors.New("AdditionalFields must be a map[string]interface{}")
	}
	return m, nil
}

// fieldNames lists the JSON names encoding/json decodes into for t, following embedded structs.
func fieldNames(t reflect.Type) []string {
	var names []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				names = append(names, fieldNames(ft)...)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		names = append(names, name)
	}
	return names
}

// isKnown matches case-insensitively, as encoding/json does.
func isKnown(k string, known []string) bool {
	for _, n := range known {
		if strings.EqualFold(k, n) {
			return true
		}
	}
	return false
}
