package nfsmount

import (
	"errors"
	"fmt"
	"net"
	"os/exec"
	"runtime"

	billy "github.com/go-git/go-billy/v5"
	"github.com/hashicorp/go-hclog"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"
)

// Server runs the NFS listener.
type Server struct {
	listener net.Listener
	port     int
	done     chan error
}

// NewServer serves fs on addr; ":0" picks an ephemeral port.
func NewServer(fs billy.Filesystem, addr string, log hclog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("nfs listen: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	handler := nfshelper.NewNullAuthHandler(fs)
	cacheHelper := nfshelper.NewCachingHandler(handler, 4096)

	s := &Server{listener: listener, port: port, done: make(chan error, 1)}
	go func() {
		err := nfs.Serve(listener, cacheHelper)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			log.Error("nfs server stopped", "error", err)
		}
		s.done <- err
	}()
	log.Info("nfs server listening", "port", port)
	return s, nil
}

func (s *Server) Port() int { return s.port }

// Close stops accepting connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

// MountArgs returns the read-only mount command for the current OS.
func MountArgs(port int, mountpoint string) ([]string, error) {
	switch runtime.GOOS {
	case "darwin":
		opts := fmt.Sprintf("port=%d,mountport=%d,vers=3,tcp,locallocks,noresvport,rdonly", port, port)
		return []string{"sudo", "mount", "-t", "nfs", "-o", opts, "localhost:/", mountpoint}, nil
	case "linux":
		opts := fmt.Sprintf("port=%d,mountport=%d,vers=3,tcp,local_lock=all,nolock,ro", port, port)
		return []string{"sudo", "mount", "-t", "nfs", "-o", opts, "localhost:/", mountpoint}, nil
	}
	return nil, fmt.Errorf("unsupported OS: %s", runtime.GOOS)
}

// Mount mounts the server at mountpoint through the system mount command.
func Mount(port int, mountpoint string) error {
	args, err := MountArgs(port, mountpoint)
	if err != nil {
		return err
	}
	output, err := exec.Command(args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("mount failed: %w\n%s", err, string(output))
	}
	return nil
}

func Unmount(mountpoint string) error {
	if runtime.GOOS == "darwin" {
		// diskutil needs no sudo for user NFS mounts
		if err := exec.Command("diskutil", "unmount", mountpoint).Run(); err == nil {
			return nil
		}
	}
	output, err := exec.Command("sudo", "umount", mountpoint).CombinedOutput()
	if err != nil {
		return fmt.Errorf("unmount failed: %w\n%s", err, string(output))
	}
	return nil
}
