package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/techie-mohit/videoCalling/internal/protocol"
)

func TestParseRoomInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		mod     protocol.Modality
		wantID  string
		wantMod protocol.Modality
		wantErr bool
	}{
		{name: "bare id", input: "calm-river-tiny-fox", mod: protocol.Video, wantID: "calm-river-tiny-fox", wantMod: protocol.Video},
		{name: "bare id keeps audio flag", input: " abc123 ", mod: protocol.Audio, wantID: "abc123", wantMod: protocol.Audio},
		{name: "video link", input: "https://call.example.com/room/abc123", mod: protocol.Audio, wantID: "abc123", wantMod: protocol.Video},
		{name: "audio link", input: "http://localhost:3000/audio/abc123/", mod: protocol.Video, wantID: "abc123", wantMod: protocol.Audio},
		{name: "link without room", input: "https://call.example.com/about", mod: protocol.Video, wantErr: true},
		{name: "empty", input: "  ", mod: protocol.Video, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, mod, err := parseRoomInput(tt.input, tt.mod)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantID, id)
			require.Equal(t, tt.wantMod, mod)
		})
	}
}
