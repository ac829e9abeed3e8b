package campaign

import (
	"strings"
	"testing"
)

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
	}{
		{"simple", "roll for initiative", false},
		{"unicode", "véritable über-goblin 🎲", false},
		{"empty", "", true},
		{"max chars", strings.Repeat("a", MaxTextChars), false},
		{"over max chars", strings.Repeat("a", MaxTextChars+1), true},
		{"over byte limit", strings.Repeat("🎲", MaxMessageBytes/4+1), true},
		{"invalid utf8", string([]byte{0xff, 0xfe}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.text)
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateMessageMultibyteUnderCharLimit(t *testing.T) {
	// 1024 four-byte runes: 4096 bytes exactly, well under the char limit.
	text := strings.Repeat("🎲", MaxMessageBytes/4)
	if err := ValidateMessage(text); err != nil {
		t.Fatalf("expected message at the byte boundary to pass: %v", err)
	}
}
