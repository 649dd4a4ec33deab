package rtc

import (
	"testing"

	"github.com/huddlekit/huddle/internal/domain"
)

func TestICEServer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      domain.ICEServer
		wantErr bool
	}{
		{
			name: "stun",
			in:   domain.ICEServer{URLs: []string{"stun:stun.example.com:3478"}},
		},
		{
			name: "stuns",
			in:   domain.ICEServer{URLs: []string{"stuns:stun.example.com:5349"}},
		},
		{
			name: "turn with credentials",
			in: domain.ICEServer{
				URLs:       []string{"turn:turn.example.com:3478?transport=udp"},
				Username:   "alice",
				Credential: "s3cret",
			},
		},
		{
			name:    "turn without credentials",
			in:      domain.ICEServer{URLs: []string{"turn:turn.example.com:3478"}},
			wantErr: true,
		},
		{
			name:    "turns without credentials",
			in:      domain.ICEServer{URLs: []string{"turns:turn.example.com:5349"}},
			wantErr: true,
		},
		{
			name:    "no urls",
			in:      domain.ICEServer{},
			wantErr: true,
		},
		{
			name:    "missing host",
			in:      domain.ICEServer{URLs: []string{"stun:"}},
			wantErr: true,
		},
		{
			name:    "unsupported scheme",
			in:      domain.ICEServer{URLs: []string{"http://relay.example.com"}},
			wantErr: true,
		},
		{
			name: "one bad url poisons the entry",
			in: domain.ICEServer{
				URLs: []string{"stun:stun.example.com:3478", "bogus"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := iceServer(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("iceServer(%v) accepted the entry", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("iceServer: %v", err)
			}
			if len(got.URLs) != len(tt.in.URLs) {
				t.Fatalf("urls = %v, want %v", got.URLs, tt.in.URLs)
			}
			if tt.in.Username != "" {
				if got.Username != tt.in.Username || got.Credential != tt.in.Credential {
					t.Fatalf("credentials = %v/%v, want %v/%v", got.Username, got.Credential, tt.in.Username, tt.in.Credential)
				}
			}
		})
	}
}
