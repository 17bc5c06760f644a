package vouch

import (
	"testing"

	"github.com/google/uuid"
)

func TestVouchRequestRoundTrip(t *testing.T) {
	req := VouchRequest{
		ID:           uuid.New(),
		Voucher:      "node-alpha",
		Vouchee:      "node-beta",
		StakePercent: 25,
		Timestamp:    1_700_000_000,
	}

	got, err := UnmarshalVouchRequest(req.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalVouchRequest: %v", err)
	}
	if got != req {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, req)
	}
}

func TestVouchRequestVoucherTruncatedAt32Bytes(t *testing.T) {
	req := VouchRequest{
		ID:      uuid.New(),
		Voucher: "this-voucher-name-is-deliberately-longer-than-32-bytes",
		Vouchee: "b",
	}
	got, err := UnmarshalVouchRequest(req.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalVouchRequest: %v", err)
	}
	if len(got.Voucher) != 32 {
		t.Errorf("Voucher len = %d, want 32", len(got.Voucher))
	}
}

func TestVouchAckRoundTrip(t *testing.T) {
	ack := VouchAck{ID: uuid.New(), From: "node-gamma", Accepted: true, Timestamp: 42}
	got, err := UnmarshalVouchAck(ack.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalVouchAck: %v", err)
	}
	if got != ack {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, ack)
	}
}

func TestUnmarshalVouchRequestWrongTag(t *testing.T) {
	ack := VouchAck{ID: uuid.New(), From: "x"}
	if _, err := UnmarshalVouchRequest(ack.Marshal()); err != ErrUnknownTag {
		t.Errorf("err = %v, want ErrUnknownTag", err)
	}
}

func TestUnmarshalVouchRequestTruncated(t *testing.T) {
	req := VouchRequest{ID: uuid.New(), Voucher: "a", Vouchee: "b"}
	full := req.Marshal()
	if _, err := UnmarshalVouchRequest(full[:len(full)-3]); err != ErrTruncated {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestNarrowStakePercentClamps(t *testing.T) {
	cases := []struct {
		in   float64
		want uint8
	}{
		{-10, 0},
		{0, 0},
		{50.4, 50},
		{50.6, 51},
		{300, 255},
	}
	for _, c := range cases {
		if got := NarrowStakePercent(c.in); got != c.want {
			t.Errorf("NarrowStakePercent(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}
