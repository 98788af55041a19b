//go:build mage
// +build mage

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

var Default = Test

const (
	serverBin  = "sysmetrics"
	cliBin     = "sysmetrics-cli"
	configFile = "sysmetrics.yaml"
)

// Test runs every package test with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Bench runs the parser benchmarks for both engines.
func Bench() error {
	return sh.RunV("go", "test", "-run", "^$", "-bench", ".", "-benchmem", "./internal/metrics/")
}

// Build compiles both binaries for the host into bin/.
func Build() error {
	return buildFor("bin", nil)
}

func buildFor(dir string, env map[string]string) error {
	if err := sh.RunWithV(env, "go", "build", "-o", filepath.Join(dir, serverBin), "./cmd/server.go"); err != nil {
		return err
	}
	return sh.RunWithV(env, "go", "build", "-o", filepath.Join(dir, cliBin), "./cmd/cli")
}

type Pi mg.Namespace

const piBuildDir = "bin/pi"

// Build cross-compiles both binaries for linux/arm64.
func (Pi) Build() error {
	fmt.Println("Building for linux/arm64...")
	return buildFor(piBuildDir, map[string]string{"GOOS": "linux", "GOARCH": "arm64"})
}

// Deploy copies the binaries, and sysmetrics.yaml when present, to ~/sysmetrics
// on the Pi over scp. SSH keys must already be set up.
func (Pi) Deploy(host, username string) error {
	mg.Deps(Pi.Build)
	target := fmt.Sprintf("%s@%s", username, host)
	dir := path.Join("/home", username, "sysmetrics")

	if err := sh.Run("ssh", target, "mkdir -p", dir); err != nil {
		return fmt.Errorf("failed to create %s on host: %w", dir, err)
	}
	files := []string{filepath.Join(piBuildDir, serverBin), filepath.Join(piBuildDir, cliBin)}
	if _, err := os.Stat(configFile); err == nil {
		files = append(files, configFile)
	}
	for _, f := range files {
		fmt.Printf("scp %s -> %s:%s\n", f, target, dir)
		if err := sh.Run("scp", f, fmt.Sprintf("%s:%s/", target, dir)); err != nil {
			return fmt.Errorf("failed to copy %s: %w", f, err)
		}
	}
	return nil
}

// Start deploys and runs the server on the Pi until interrupted. A first
// Ctrl-C sends SIGTERM, a second one SIGKILL.
func (Pi) Start(host, username string) error {
	mg.Deps(mg.F(Pi.Deploy, host, username))
	client, err := sshClient(username, host)
	if err != nil {
		return fmt.Errorf("failed to create SSH client: %w", err)
	}
	defer client.Close()
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	session.Stdout = os.Stdout
	session.Stderr = os.Stderr
	cmd := fmt.Sprintf("cd ~/sysmetrics && ./%s -config %s", serverBin, configFile)
	if err := session.Start(cmd); err != nil {
		return fmt.Errorf("failed to start %s on host: %w", serverBin, err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		fmt.Println("got", <-sigs, "- stopping server")
		session.Signal(ssh.SIGTERM)
		<-sigs
		fmt.Println("killing server")
		session.Signal(ssh.SIGKILL)
		session.Close()
		os.Exit(1)
	}()

	err = session.Wait()
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitStatus() {
		case 130, 143:
			fmt.Printf("%s stopped (status %d)\n", serverBin, exitErr.ExitStatus())
			return nil
		}
		return fmt.Errorf("%s exited with status %d", serverBin, exitErr.ExitStatus())
	}
	if err != nil {
		return fmt.Errorf("failed waiting for %s: %w", serverBin, err)
	}
	return nil
}

// Clean removes the cross-compiled binaries.
func (Pi) Clean() error {
	return os.RemoveAll(piBuildDir)
}

// sshClient authenticates with the keys held by the running ssh-agent.
func sshClient(user, host string) (*ssh.Client, error) {
	var auth []ssh.AuthMethod
	if conn, err := net.Dial("unix", os.Getenv("SSH_AUTH_SOCK")); err == nil {
		if signers, err := agent.NewClient(conn).Signers(); err == nil {
			auth = append(auth, ssh.PublicKeys(preferRSASHA2(signers)...))
		}
	}
	if len(auth) == 0 {
		fmt.Println("no keys available from ssh-agent")
	}

	addr := net.JoinHostPort(host, "22")
	fmt.Println("dialing", addr)
	return ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // dev boards only
	})
}

// preferRSASHA2 restricts RSA keys to the SHA-2 signature algorithms, which
// current sshd builds require.
func preferRSASHA2(signers []ssh.Signer) []ssh.Signer {
	out := make([]ssh.Signer, 0, len(signers))
	for _, s := range signers {
		as, ok := s.(ssh.AlgorithmSigner)
		if !ok || s.PublicKey().Type() != ssh.KeyAlgoRSA {
			out = append(out, s)
			continue
		}
		restricted, err := ssh.NewSignerWithAlgorithms(as, []string{ssh.KeyAlgoRSASHA256, ssh.KeyAlgoRSASHA512})
		if err != nil {
			out = append(out, s)
			continue
		}
		out = append(out, restricted)
	}
	return out
}
