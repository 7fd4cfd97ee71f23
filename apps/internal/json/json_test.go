// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package json

import (
	"encoding/json"
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

type base struct {
	HomeAccountID string `json:"home_account_id,omitempty"`
}

type record struct {
	base
	Environment      string                 `json:"environment,omitempty"`
	AdditionalFields map[string]interface{} `json:"-"`
}

func TestUnmarshal(t *testing.T) {
	tests := []struct {
		desc string
		b    string
		got  interface{}
		want interface{}
		err  bool
	}{
		{
			desc: "receiver not a pointer",
			got:  record{},
			b:    `{"content": "value"}`,
			err:  true,
		},
		{
			desc: "receiver not a pointer to a struct",
			got:  new(string),
			b:    `{"content": "value"}`,
			err:  true,
		},
		{
			desc: "AdditionalFields not a map",
			b:    `{"content": "value"}`,
			got: &struct {
				AdditionalFields string `json:"-"`
			}{},
			err: true,
		},
		{
			desc: "malformed",
			b:    `{"environment": `,
			got:  &record{},
			err:  true,
		},
		{
			desc: "no unknown fields",
			b:    `{"home_account_id": "uid.utid", "environment": "login.windows.net"}`,
			got:  &record{},
			want: &record{base: base{HomeAccountID: "uid.utid"}, Environment: "login.windows.net"},
		},
		{
			desc: "unknown fields kept, case-insensitive known fields dropped",
			b:    `{"Home_Account_Id": "uid.utid", "environment": "env", "unknown0": 10, "unknown1": "hello"}`,
			got:  &record{},
			want: &record{
				base:        base{HomeAccountID: "uid.utid"},
				Environment: "env",
				AdditionalFields: map[string]interface{}{
					"unknown0": json.RawMessage(`10`),
					"unknown1": json.RawMessage(`"hello"`),
				},
			},
		},
	}

	for _, test := range tests {
		err := Unmarshal([]byte(test.b), test.got)
		switch {
		case err == nil && test.err:
			t.Errorf("TestUnmarshal(%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.err:
			t.Errorf("TestUnmarshal(%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			continue
		}
		if diff := pretty.Compare(test.want, test.got); diff != "" {
			t.Errorf("TestUnmarshal(%s): -want/+got:\n%s", test.desc, diff)
		}
	}
}

func TestMarshal(t *testing.T) {
	in := record{
		base:        base{HomeAccountID: "uid.utid"},
		Environment: "env",
		AdditionalFields: map[string]interface{}{
			"environment": json.RawMessage(`"shadowed"`),
			"extra":       "value",
			"n":           json.RawMessage(`3`),
		},
	}
	b, err := Marshal(in)
	if err != nil {
		t.Fatalf("TestMarshal: %s", err)
	}
	got := map[string]interface{}{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("TestMarshal: output is not JSON: %s", err)
	}
	want := map[string]interface{}{
		"home_account_id": "uid.utid",
		"environment":     "env",
		"extra":           "value",
		"n":               float64(3),
	}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Errorf("TestMarshal: -want/+got:\n%s", diff)
	}

	var back record
	if err := Unmarshal(b, &back); err != nil {
		t.Fatalf("TestMarshal: round trip: %s", err)
	}
	if back.HomeAccountID != "uid.utid" || len(back.AdditionalFields) != 2 {
		t.Errorf("TestMarshal: round trip lost data: %+v", back)
	}
}
