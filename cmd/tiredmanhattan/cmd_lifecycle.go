package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var errNotRunning = errors.New("daemon not running")

// pidFile records the serving process so stop and restart can signal it.
type pidFile string

func pidFileFor(dataDir string) pidFile {
	return pidFile(filepath.Join(dataDir, "tiredmanhattan.pid"))
}

func (p pidFile) write() error {
	if err := os.WriteFile(string(p), []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	return nil
}

func (p pidFile) remove() {
	os.Remove(string(p))
}

// process returns the recorded process if it still answers signal 0.
func (p pidFile) process() (*os.Process, error) {
	data, err := os.ReadFile(string(p))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: no PID file at %s", errNotRunning, p)
	}
	if err != nil {
		return nil, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return nil, fmt.Errorf("corrupt PID file %s: %q", p, strings.TrimSpace(string(data)))
	}

	// FindProcess always succeeds on unix.
	proc, _ := os.FindProcess(pid)
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, fmt.Errorf("%w: process %d is gone", errNotRunning, pid)
	}
	return proc, nil
}

var stopWait time.Duration

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd)
	stopCmd.Flags().DurationVar(&stopWait, "wait", 0, "wait up to this long for in-flight replies to finish")
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Long: `Send SIGTERM to the daemon. It closes the stream and lets in-flight
replies finish before exiting. With --wait the command blocks until then.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, err := pidFileFor(loadConfig().DataDir).process()
		if err != nil {
			return err
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("signal %d: %w", proc.Pid, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stopping daemon (PID %d).\n", proc.Pid)

		if stopWait <= 0 {
			return nil
		}
		deadline := time.Now().Add(stopWait)
		for time.Now().Before(deadline) {
			if err := proc.Signal(syscall.Signal(0)); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Stopped.")
				return nil
			}
			time.Sleep(200 * time.Millisecond)
		}
		return fmt.Errorf("daemon %d still running after %s", proc.Pid, stopWait)
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the running daemon",
	Long: `Ask the daemon to re-exec itself with SIGHUP. Config changes are picked
up, the stream reconnects and the mention rule is checked again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		proc, err := pidFileFor(loadConfig().DataDir).process()
		if err != nil {
			return err
		}
		if err := proc.Signal(syscall.SIGHUP); err != nil {
			return fmt.Errorf("signal %d: %w", proc.Pid, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Restarting daemon (PID %d).\n", proc.Pid)
		return nil
	},
}
