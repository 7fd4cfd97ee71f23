// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package time

import (
	"encoding/json"
	"testing"
	"time"
)

func TestUnix(t *testing.T) {
	tests := []struct {
		desc    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{desc: "quoted seconds", in: `"1000"`, want: time.Unix(1000, 0).UTC()},
		{desc: "bare seconds", in: `4600`, want: time.Unix(4600, 0).UTC()},
		{desc: "empty", in: `""`},
		{desc: "null", in: `null`},
		{desc: "garbage", in: `"tomorrow"`, wantErr: true},
	}

	for _, test := range tests {
		var got Unix
		err := json.Unmarshal([]byte(test.in), &got)
		switch {
		case err == nil && test.wantErr:
			t.Errorf("TestUnix(%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.wantErr:
			t.Errorf("TestUnix(%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			continue
		}
		if !got.T.Equal(test.want) {
			t.Errorf("TestUnix(%s): got %v, want %v", test.desc, got.T, test.want)
		}
	}
}

func TestUnixMarshal(t *testing.T) {
	b, err := json.Marshal(At(time.Unix(1700000000, 999)))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"1700000000"` {
		t.Errorf("got %s, want \"1700000000\"", b)
	}

	type rec struct {
		CachedAt Unix `json:"cached_at,omitzero"`
	}
	b, err = json.Marshal(rec{})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{}` {
		t.Errorf("zero Unix should be omitted, got %s", b)
	}
}
