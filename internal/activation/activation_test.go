package activation

import (
	"net"
	"os"
	"reflect"
	"strconv"
	"testing"
)

func TestFromEnv(t *testing.T) {
	self := os.Getpid()

	tests := []struct {
		name    string
		env     map[string]string
		want    passed
		wantErr bool
	}{
		{
			name: "no environment",
			env:  map[string]string{},
		},
		{
			name: "wrong pid",
			env:  map[string]string{"LISTEN_PID": "99999", "LISTEN_FDS": "1"},
		},
		{
			name:    "invalid pid",
			env:     map[string]string{"LISTEN_PID": "not-a-number", "LISTEN_FDS": "1"},
			wantErr: true,
		},
		{
			name:    "invalid fds",
			env:     map[string]string{"LISTEN_PID": strconv.Itoa(self), "LISTEN_FDS": "not-a-number"},
			wantErr: true,
		},
		{
			name: "zero fds",
			env:  map[string]string{"LISTEN_PID": strconv.Itoa(self), "LISTEN_FDS": "0"},
		},
		{
			name: "two named sockets",
			env: map[string]string{
				"LISTEN_PID":     strconv.Itoa(self),
				"LISTEN_FDS":     "2",
				"LISTEN_FDNAMES": "metrics:webhook",
			},
			want: passed{count: 2, names: []string{"metrics", "webhook"}},
		},
		{
			name: "unnamed socket",
			env:  map[string]string{"LISTEN_PID": strconv.Itoa(self), "LISTEN_FDS": "1"},
			want: passed{count: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"LISTEN_PID", "LISTEN_FDS", "LISTEN_FDNAMES"} {
				t.Setenv(k, tt.env[k])
			}

			got, err := fromEnv(self)
			if (err != nil) != tt.wantErr {
				t.Fatalf("fromEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("fromEnv() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPassedName(t *testing.T) {
	p := passed{count: 3, names: []string{"a", "b"}}
	if p.name(1) != "b" {
		t.Errorf("expected name b, got %q", p.name(1))
	}
	if p.name(2) != "" {
		t.Errorf("expected no name for fd beyond LISTEN_FDNAMES, got %q", p.name(2))
	}
}

func TestPick(t *testing.T) {
	sockets := []Socket{{Name: "metrics"}, {Name: "webhook"}}

	tests := []struct {
		name string
		want int
	}{
		{"webhook", 1},
		{"metrics", 0},
		{"missing", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pick(sockets, tt.name); got != tt.want {
				t.Errorf("pick(%q) = %d, want %d", tt.name, got, tt.want)
			}
		})
	}
}

func TestSockets_NotActivated(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	sockets, err := Sockets()
	if err != nil {
		t.Fatalf("Sockets() unexpected error: %v", err)
	}
	if sockets != nil {
		t.Errorf("expected no sockets, got %v", sockets)
	}
}

func TestListen_FallsBackToTCP(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	ln, activated, err := Listen("127.0.0.1:0", "webhook")
	if err != nil {
		t.Fatalf("Listen() unexpected error: %v", err)
	}
	defer func() {
		_ = ln.Close()
	}()

	if activated {
		t.Error("expected a plain listener without socket activation")
	}
	if _, ok := ln.(*net.TCPListener); !ok {
		t.Errorf("expected tcp listener, got %T", ln)
	}
}

func TestListen_InvalidAddress(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	if _, _, err := Listen("256.0.0.1:http-nope", ""); err == nil {
		t.Fatal("expected an error for an invalid address")
	}
}
