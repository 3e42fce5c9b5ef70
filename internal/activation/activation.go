// Package activation picks up listening sockets passed by systemd so the
// webhook server can be socket-activated.
package activation

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Systemd passes file descriptors starting at fd 3
// (0=stdin, 1=stdout, 2=stderr)
const firstFD = 3

// Socket is one inherited listening socket
type Socket struct {
	// Name is the FileDescriptorName= of the socket unit, if any
	Name     string
	Listener net.Listener
}

// passed describes the sockets announced in the environment
type passed struct {
	count int
	names []string
}

// fromEnv reads LISTEN_PID, LISTEN_FDS and LISTEN_FDNAMES. A zero count
// means the process was not socket-activated.
func fromEnv(pid int) (passed, error) {
	pidStr := os.Getenv("LISTEN_PID")
	if pidStr == "" {
		return passed{}, nil
	}
	listenPID, err := strconv.Atoi(pidStr)
	if err != nil {
		return passed{}, fmt.Errorf("invalid LISTEN_PID %q: %w", pidStr, err)
	}
	if listenPID != pid {
		// activation is meant for a different process
		return passed{}, nil
	}

	fdsStr := os.Getenv("LISTEN_FDS")
	if fdsStr == "" {
		return passed{}, nil
	}
	n, err := strconv.Atoi(fdsStr)
	if err != nil {
		return passed{}, fmt.Errorf("invalid LISTEN_FDS %q: %w", fdsStr, err)
	}
	if n < 1 {
		return passed{}, nil
	}

	p := passed{count: n}
	if names := os.Getenv("LISTEN_FDNAMES"); names != "" {
		p.names = strings.Split(names, ":")
	}
	return p, nil
}

func (p passed) name(i int) string {
	if i < len(p.names) {
		return p.names[i]
	}
	return ""
}

// Sockets returns the systemd-activated sockets of this process, or nil
// when it was not socket-activated. The activation variables are removed
// from the environment so child processes don't inherit them.
func Sockets() ([]Socket, error) {
	p, err := fromEnv(os.Getpid())
	if err != nil || p.count == 0 {
		return nil, err
	}

	sockets := make([]Socket, 0, p.count)
	for i := 0; i < p.count; i++ {
		fd := firstFD + i
		file := os.NewFile(uintptr(fd), fmt.Sprintf("systemd-socket-%d", i))
		if file == nil {
			closeAll(sockets)
			return nil, fmt.Errorf("failed to create file for fd %d", fd)
		}

		ln, err := net.FileListener(file)
		// the listener holds its own duplicate of the descriptor
		_ = file.Close()
		if err != nil {
			closeAll(sockets)
			return nil, fmt.Errorf("failed to create listener from fd %d: %w", fd, err)
		}
		sockets = append(sockets, Socket{Name: p.name(i), Listener: ln})
	}

	_ = os.Unsetenv("LISTEN_PID")
	_ = os.Unsetenv("LISTEN_FDS")
	_ = os.Unsetenv("LISTEN_FDNAMES")

	return sockets, nil
}

func closeAll(sockets []Socket) {
	for _, s := range sockets {
		_ = s.Listener.Close()
	}
}

// pick chooses the socket called name, falling back to the first one
func pick(sockets []Socket, name string) int {
	if name != "" {
		for i, s := range sockets {
			if s.Name == name {
				return i
			}
		}
	}
	return 0
}

// Listen returns the activated socket called name (or the first one when
// none matches), or a new TCP listener on addr when the process was not
// socket-activated. The boolean reports activation. Unused activated
// sockets are closed.
func Listen(addr, name string) (net.Listener, bool, error) {
	sockets, err := Sockets()
	if err != nil {
		return nil, false, err
	}
	if len(sockets) > 0 {
		i := pick(sockets, name)
		for j, s := range sockets {
			if j != i {
				_ = s.Listener.Close()
			}
		}
		return sockets[i].Listener, true, nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, false, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return ln, false, nil
}
