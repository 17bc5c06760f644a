package governance

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestCreateProposalRoundTrip(t *testing.T) {
	p := CreateProposal{
		ID:          uuid.New(),
		Title:       "Raise entropy tax to 3%",
		Description: "Detailed rationale for the proposed entropy tax change.",
		Timestamp:   1_700_000_001,
	}
	got, err := Unmarshal(p.Marshal())
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != p {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, p)
	}
}

func TestMarshalLoRaTruncatesTitleAndDropsDescription(t *testing.T) {
	p := CreateProposal{
		ID:          uuid.New(),
		Title:       strings.Repeat("x", 200),
		Description: "this should never survive the LoRa encode",
		Timestamp:   5,
	}
	got, err := UnmarshalLoRa(p.MarshalLoRa())
	if err != nil {
		t.Fatalf("UnmarshalLoRa: %v", err)
	}
	if len(got.Title) != LoRaTitleCap {
		t.Errorf("Title len = %d, want %d", len(got.Title), LoRaTitleCap)
	}
	if got.Description != LoRaDescriptionPlaceholder {
		t.Errorf("Description = %q, want placeholder", got.Description)
	}
	if got.ID != p.ID || got.Timestamp != p.Timestamp {
		t.Error("ID and Timestamp should survive the LoRa path unchanged")
	}
}

func TestMarshalLoRaShortTitleNotPadded(t *testing.T) {
	p := CreateProposal{ID: uuid.New(), Title: "short", Timestamp: 1}
	got, err := UnmarshalLoRa(p.MarshalLoRa())
	if err != nil {
		t.Fatalf("UnmarshalLoRa: %v", err)
	}
	if got.Title != "short" {
		t.Errorf("Title = %q, want %q", got.Title, "short")
	}
}

func TestUnmarshalWrongTag(t *testing.T) {
	if _, err := Unmarshal([]byte{0xFF, 1, 2, 3}); err != ErrUnknownTag {
		t.Errorf("err = %v, want ErrUnknownTag", err)
	}
}
