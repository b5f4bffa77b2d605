package fingerprint

import (
	"errors"
	"testing"
)

var allowed = []string{"magnafpm", "furling", "user"}

func TestParseCoercesTypes(t *testing.T) {
	query := map[string]string{
		"magnafpm.rotor_diameter": "1.5",
		"magnafpm.num_blades":     "3",
		"furling.enabled":         "true",
		"furling.disabled":        "FALSE",
		"user.name":               "my-turbine",
	}

	c, err := Parse(query, allowed)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if v := c["magnafpm"]["rotor_diameter"]; v != float64(1.5) {
		t.Errorf("rotor_diameter = %#v (%T), want float64(1.5)", v, v)
	}
	if v := c["magnafpm"]["num_blades"]; v != int64(3) {
		t.Errorf("num_blades = %#v (%T), want int64(3)", v, v)
	}
	if v := c["furling"]["enabled"]; v != true {
		t.Errorf("enabled = %#v, want true", v)
	}
	if v := c["furling"]["disabled"]; v != false {
		t.Errorf("disabled = %#v, want false", v)
	}
	if v := c["user"]["name"]; v != "my-turbine" {
		t.Errorf("name = %#v, want \"my-turbine\"", v)
	}
}

func TestParseRejectsUnknownGroup(t *testing.T) {
	_, err := Parse(map[string]string{"bogus.x": "1"}, allowed)
	if !errors.Is(err, ErrUnknownGroup) {
		t.Errorf("err = %v, want ErrUnknownGroup", err)
	}
}

func TestParseRejectsMalformedKey(t *testing.T) {
	cases := []string{"noprefix", "magnafpm.", ".name", ""}
	for _, key := range cases {
		_, err := Parse(map[string]string{key: "1"}, allowed)
		if !errors.Is(err, ErrMalformedKey) {
			t.Errorf("key %q: err = %v, want ErrMalformedKey", key, err)
		}
	}
}

func TestDigestIsOrderIndependent(t *testing.T) {
	a := map[string]string{
		"magnafpm.r": "150",
		"magnafpm.t": "10",
		"user.name":  "x",
	}
	b := map[string]string{
		"user.name":  "x",
		"magnafpm.t": "10",
		"magnafpm.r": "150",
	}

	ca, err := Parse(a, allowed)
	if err != nil {
		t.Fatal(err)
	}
	cb, err := Parse(b, allowed)
	if err != nil {
		t.Fatal(err)
	}

	fa, err := Digest(ca)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := Digest(cb)
	if err != nil {
		t.Fatal(err)
	}

	if fa != fb {
		t.Errorf("fingerprints differ for equal content in different orders: %v != %v", fa, fb)
	}
}

func TestDigestDiffersForDifferentContent(t *testing.T) {
	fa, _ := Compute(map[string]string{"magnafpm.r": "150"}, allowed)
	fb, _ := Compute(map[string]string{"magnafpm.r": "151"}, allowed)

	if fa == fb {
		t.Error("fingerprints equal for different content")
	}
}

func TestEncodeIsIdempotent(t *testing.T) {
	c, err := Parse(map[string]string{"magnafpm.r": "150", "user.name": "x"}, allowed)
	if err != nil {
		t.Fatal(err)
	}

	e1, err := c.Encode()
	if err != nil {
		t.Fatal(err)
	}
	e2, err := c.Encode()
	if err != nil {
		t.Fatal(err)
	}

	if string(e1) != string(e2) {
		t.Errorf("Encode() not idempotent: %q != %q", e1, e2)
	}
}

func TestComputeEmptyQuery(t *testing.T) {
	f, err := Compute(map[string]string{}, allowed)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if f.String() == "" {
		t.Error("expected non-empty digest string for empty query")
	}
}
