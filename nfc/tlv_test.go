package nfc

import (
	"bytes"
	"testing"
)

func TestTLVEncode_ShortMessage(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04}
	result := TLVEncode(data, TLVNDEF)

	// Type + Length + Data + Terminator
	expected := []byte{0x03, 0x04, 0x01, 0x02, 0x03, 0x04, 0xFE}
	if !bytes.Equal(result, expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestTLVEncode_LongMessage(t *testing.T) {
	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i)
	}

	result := TLVEncode(data, TLVNDEF)

	if !bytes.Equal(result[:4], []byte{0x03, 0xFF, 0x01, 0x2C}) {
		t.Errorf("Expected long header 03 FF 01 2C, got % X", result[:4])
	}
	if !bytes.Equal(result[4:4+len(data)], data) {
		t.Error("Data mismatch in long format TLV")
	}
	if result[len(result)-1] != TLVTerminator {
		t.Errorf("Expected terminator 0xFE, got 0x%02X", result[len(result)-1])
	}
}

func TestTLVEncode_EmptyMessage(t *testing.T) {
	expected := []byte{0x03, 0x00, 0xFE}
	if result := TLVEncode([]byte{}, TLVNDEF); !bytes.Equal(result, expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestTLVFindNDEF(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		want  []byte
		found bool
	}{
		{"leading null TLVs", []byte{0x00, 0x00, 0x03, 0x02, 0xAA, 0xBB, 0xFE}, []byte{0xAA, 0xBB}, true},
		{"after lock control TLV", []byte{0x01, 0x03, 0xA0, 0x10, 0x44, 0x03, 0x01, 0xCC, 0xFE}, []byte{0xCC}, true},
		{"no NDEF TLV", []byte{0x01, 0x03, 0xA0, 0x10, 0x44, 0xFE}, nil, false},
		{"terminator first", []byte{0xFE, 0x03, 0x01, 0xAA}, nil, false},
		{"truncated value", []byte{0x03, 0x05, 0xAA}, nil, false},
		{"truncated long header", []byte{0x03, 0xFF, 0x01}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := TLVFindNDEF(tt.data)
			if found != tt.found || !bytes.Equal(got, tt.want) {
				t.Errorf("TLVFindNDEF() = % X, %v; want % X, %v", got, found, tt.want, tt.found)
			}
		})
	}
}

func TestTLV_RoundtripLong(t *testing.T) {
	data := bytes.Repeat([]byte{0x5A}, 600)
	got, found := TLVFindNDEF(TLVEncode(data, TLVNDEF))
	if !found || !bytes.Equal(got, data) {
		t.Errorf("long TLV round trip failed: found=%v len=%d", found, len(got))
	}
}

func TestTLVFindAllNDEF(t *testing.T) {
	data := []byte{0x03, 0x01, 0xAA, 0x00, 0x03, 0x02, 0xBB, 0xCC, 0xFE, 0x03, 0x01, 0xDD}
	all := TLVFindAllNDEF(data)
	if len(all) != 2 {
		t.Fatalf("Expected 2 NDEF TLVs before the terminator, got %d", len(all))
	}
	if !bytes.Equal(all[0], []byte{0xAA}) || !bytes.Equal(all[1], []byte{0xBB, 0xCC}) {
		t.Errorf("Unexpected values % X", all)
	}
}

func TestIsTLVBlock(t *testing.T) {
	tests := []struct {
		data []byte
		want bool
	}{
		{nil, false},
		{[]byte{0x00}, true},
		{[]byte{0x01, 0x03}, true},
		{[]byte{0x03, 0x00}, true},
		{[]byte{0xD1, 0x01, 0x01}, false},
		{[]byte{0xFE}, false},
	}
	for _, tt := range tests {
		if got := IsTLVBlock(tt.data); got != tt.want {
			t.Errorf("IsTLVBlock(% X) = %v, want %v", tt.data, got, tt.want)
		}
	}
}

func TestTLVComplete(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"terminated", []byte{0x03, 0x01, 0xAA, 0xFE}, true},
		{"no terminator yet", []byte{0x03, 0x01, 0xAA}, false},
		{"terminator byte inside value", []byte{0x03, 0x05, 0xAA, 0xFE}, false},
		{"nulls only", []byte{0x00, 0x00, 0x00, 0x00}, false},
		{"truncated header", []byte{0x03, 0xFF, 0x01}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tlvComplete(tt.data); got != tt.want {
				t.Errorf("tlvComplete(% X) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}
