package value

import "testing"

func TestZeroValueIsNull(t *testing.T) {
	var v Value
	if !v.IsNull() {
		t.Fatal("zero Value must be null")
	}
}

func TestAccessorsGuardVariant(t *testing.T) {
	v := F32(1.5)
	if f, ok := v.AsF32(); !ok || f != 1.5 {
		t.Fatalf("AsF32 = %v, %v", f, ok)
	}
	if _, ok := v.AsI64(); ok {
		t.Fatal("AsI64 must fail on an f32 value")
	}
}

func TestStructuralEquality(t *testing.T) {
	cases := []struct {
		a, b  Value
		equal bool
	}{
		{Null(), Null(), true},
		{Null(), F32(0), false},
		{Bool(true), Bool(true), true},
		{I64(3), I64(3), true},
		{I64(3), F32(3), false},
		{String("x"), String("x"), true},
		{Bytes([]byte{1, 2}), Bytes([]byte{1, 2}), true},
		{Bytes([]byte{1, 2}), Bytes([]byte{1}), false},
		{F32Vec([]float32{1, 2}), F32Vec([]float32{1, 2}), true},
		{F32Vec([]float32{1, 2}), F32Vec([]float32{2, 1}), false},
	}
	for i, tc := range cases {
		if got := tc.a.Equal(tc.b); got != tc.equal {
			t.Errorf("case %d: Equal = %v, want %v", i, got, tc.equal)
		}
	}
}

func TestParseTypeRoundTrip(t *testing.T) {
	for _, name := range []string{"bool", "i64", "f32", "string", "bytes", "f32vec"} {
		typ, err := ParseType(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if typ.String() != name {
			t.Fatalf("%s round-tripped to %s", name, typ)
		}
	}
	if _, err := ParseType("f64"); err == nil {
		t.Fatal("f64 must be rejected")
	}
}
