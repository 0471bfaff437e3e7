package s7

import "testing"

func TestAreaString(t *testing.T) {
	tests := []struct {
		area Area
		want string
	}{
		{AreaPE, "PE"},
		{AreaPA, "PA"},
		{AreaMK, "MK"},
		{AreaDB, "DB"},
		{Area(0x99), "Area(0x99)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.area.String(); got != tt.want {
				t.Errorf("Area(0x%02X).String() = %q, want %q", uint8(tt.area), got, tt.want)
			}
		})
	}
}

func TestAreaCodesAreCanonical(t *testing.T) {
	// Every area must have a distinct wire code. A documentation-sourced
	// drift that collapsed PA and MK onto the same code would silently
	// redirect output-area accesses into the merker area.
	seen := map[Area]bool{}
	for _, a := range []Area{AreaPE, AreaPA, AreaMK, AreaDB} {
		if seen[a] {
			t.Fatalf("area code 0x%02X reused by more than one Area constant", uint8(a))
		}
		seen[a] = true
	}

	canonical := []struct {
		area Area
		code uint8
	}{
		{AreaPE, 0x81},
		{AreaPA, 0x82},
		{AreaMK, 0x83},
		{AreaDB, 0x84},
	}
	for _, tt := range canonical {
		if uint8(tt.area) != tt.code {
			t.Errorf("%v code = 0x%02X, want 0x%02X", tt.area, uint8(tt.area), tt.code)
		}
	}
}

func TestWordLenString(t *testing.T) {
	tests := []struct {
		w    WordLen
		want string
	}{
		{WordLenBit, "Bit"},
		{WordLenByte, "Byte"},
		{WordLen(0x07), "WordLen(0x07)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.w.String(); got != tt.want {
				t.Errorf("WordLen.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddressByteOffset(t *testing.T) {
	addr := Address{Area: AreaDB, DBNumber: 1, Start: 42, WordLen: WordLenByte, Count: 4}
	if got := addr.byteOffset(); got != 42 {
		t.Errorf("byteOffset() = %d, want 42", got)
	}
}
