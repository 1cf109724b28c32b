package varint

import (
	"bytes"
	"errors"
	"testing"
)

func TestUvarint(t *testing.T) {
	cases := []struct {
		in   []byte
		want uint64
		n    int
	}{
		{[]byte{0x00}, 0, 1},
		{[]byte{0x01}, 1, 1},
		{[]byte{0x7f}, 127, 1},
		{[]byte{0x96, 0x01}, 150, 2},
		{[]byte{0x80, 0x01}, 128, 2},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xffffffff, 5},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}, ^uint64(0), 10},
	}
	for _, tc := range cases {
		v, n, err := Uvarint(tc.in)
		if err != nil {
			t.Fatalf("Uvarint(% x): %v", tc.in, err)
		}
		if v != tc.want || n != tc.n {
			t.Fatalf("Uvarint(% x) = (%d, %d), want (%d, %d)", tc.in, v, n, tc.want, tc.n)
		}
	}
}

func TestUvarintTruncated(t *testing.T) {
	_, _, err := Uvarint([]byte{0x80})
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("want ErrTruncated, got %v", err)
	}
	_, _, err = Uvarint(nil)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("want ErrTruncated on empty, got %v", err)
	}
}

func TestUvarintOverflow(t *testing.T) {
	in := bytes.Repeat([]byte{0x80}, 10)
	in = append(in, 0x01)
	if _, _, err := Uvarint(in); !errors.Is(err, ErrOverflow) {
		t.Fatalf("want ErrOverflow, got %v", err)
	}
	// 10 bytes whose final byte would set bits above 63.
	in = append(bytes.Repeat([]byte{0xff}, 9), 0x02)
	if _, _, err := Uvarint(in); !errors.Is(err, ErrOverflow) {
		t.Fatalf("want ErrOverflow on bit 64+, got %v", err)
	}
}

func TestAppleUvarint(t *testing.T) {
	cases := []struct {
		in   []byte
		want uint64
		n    int
	}{
		{[]byte{0x00}, 0, 1},
		{[]byte{0x01}, 1, 1},
		{[]byte{0x24}, 36, 1},
		{[]byte{0x7f}, 127, 1},
		{[]byte{0x81, 0x00}, 0x100, 2},
		{[]byte{0xc1, 0x02, 0x03}, 0x010203, 3},
		{[]byte{0xf1, 0x02, 0x03, 0x04, 0x05}, 4328719365, 5},
		// Five or more extra bytes: the lead byte carries no value bits.
		{[]byte{0xf8, 0x01, 0x02, 0x03, 0x04, 0x05}, 0x0102030405, 6},
		{[]byte{0xff, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, 0x0102030405060708, 9},
	}
	for _, tc := range cases {
		v, n, err := AppleUvarint(tc.in)
		if err != nil {
			t.Fatalf("AppleUvarint(% x): %v", tc.in, err)
		}
		if v != tc.want || n != tc.n {
			t.Fatalf("AppleUvarint(% x) = (%d, %d), want (%d, %d)", tc.in, v, n, tc.want, tc.n)
		}
	}
}

func TestAppleUvarintTruncated(t *testing.T) {
	if _, _, err := AppleUvarint(nil); !errors.Is(err, ErrTruncated) {
		t.Fatalf("want ErrTruncated on empty, got %v", err)
	}
	if _, _, err := AppleUvarint([]byte{0xc1, 0x02}); !errors.Is(err, ErrTruncated) {
		t.Fatalf("want ErrTruncated, got %v", err)
	}
}

func TestPutUvarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 150, 300, 1 << 20, 0xffffffff, ^uint64(0)}
	for _, v := range values {
		b := make([]byte, MaxLen64)
		n := PutUvarint(b, v)
		if n != UvarintLen(v) {
			t.Fatalf("PutUvarint(%d) wrote %d bytes, UvarintLen says %d", v, n, UvarintLen(v))
		}
		got, m, err := Uvarint(b[:n])
		if err != nil || got != v || m != n {
			t.Fatalf("round trip %d: got (%d, %d, %v)", v, got, m, err)
		}
		if app := AppendUvarint(nil, v); !bytes.Equal(app, b[:n]) {
			t.Fatalf("AppendUvarint(%d) = % x, want % x", v, app, b[:n])
		}
	}
}
