package tagvalue

import (
	"errors"
	"testing"
)

func TestEncodeDecodeFieldsPreservesOrderAndDuplicates(t *testing.T) {
	in := []Field{
		NewField(35, "D"),
		NewField(453, "2"),
		NewField(448, "PARTY-A"),
		NewField(448, "PARTY-B"),
	}
	out, err := DecodeFields(EncodeFields(in))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d fields, got %d", len(in), len(out))
	}
	if out[3].Tag != 448 || string(out[3].Value) != "PARTY-B" {
		t.Fatalf("repeated field not preserved: %+v", out[3])
	}
}

func TestDecodeFieldsMalformedInputIsDeterministic(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    error
	}{
		{"unterminated", "35=A", ErrUnterminated},
		{"no separator", "35A\x01", ErrMissingSeparator},
		{"bad tag", "3x=A\x01", ErrInvalidTag},
		{"leading zero", "035=A\x01", ErrInvalidTag},
		{"empty value", "35=\x01", ErrEmptyValue},
	}
	for _, tc := range cases {
		if _, err := DecodeFields([]byte(tc.payload)); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestChecksum(t *testing.T) {
	raw := []byte("8=FIX.4.2\x019=5\x0135=0\x01")
	sum := Checksum(raw)
	want := 0
	for _, c := range raw {
		want += int(c)
	}
	if sum != want%256 {
		t.Fatalf("unexpected checksum: %d", sum)
	}
	if FormatChecksum(7) != "007" {
		t.Fatalf("checksum must be zero padded: %q", FormatChecksum(7))
	}
}
