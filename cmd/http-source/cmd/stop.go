package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var stopTimeout time.Duration

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running connector",
	Long: `Stop a running connector by reading its PID file and sending SIGTERM.

The connector drains in-flight requests and flushes the output before exiting.
If it is still running after --timeout it is killed.

The PID file is located at ~/.http-source/server.pid.

Examples:
  # Stop the running connector
  http-source stop

  # Allow more time for a slow broker to flush
  http-source stop --timeout 30s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopProcess(pidFilePath(), stopTimeout, cmd.ErrOrStderr())
	},
}

func init() {
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 10*time.Second, "time to wait for a graceful stop before killing")
	rootCmd.AddCommand(stopCmd)
}

// stopProcess signals the process recorded in pidPath and waits for it to exit.
func stopProcess(pidPath string, timeout time.Duration, out io.Writer) error {
	pid := readPIDFile(pidPath)
	if pid == 0 {
		return fmt.Errorf("no PID file found at %s\nIs the connector running?", pidPath)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		_ = os.Remove(pidPath)
		return fmt.Errorf("invalid PID %d: %w", pid, err)
	}
	if !processIsAlive(proc) {
		_ = os.Remove(pidPath)
		return fmt.Errorf("connector process %d is not running (stale PID file removed)", pid)
	}

	// SIGTERM on Unix, Kill on Windows.
	fmt.Fprintf(out, "Stopping http-source (PID %d)...\n", pid)
	if err := sendGracefulStop(proc); err != nil {
		return fmt.Errorf("failed to stop connector: %w", err)
	}

	const poll = 200 * time.Millisecond
	for waited := time.Duration(0); waited < timeout; waited += poll {
		time.Sleep(poll)
		if !processIsAlive(proc) {
			_ = os.Remove(pidPath)
			fmt.Fprintln(out, "Connector stopped.")
			return nil
		}
	}

	fmt.Fprintln(out, "Connector did not stop gracefully, killing it...")
	_ = proc.Kill()
	_ = os.Remove(pidPath)
	fmt.Fprintln(out, "Connector killed.")
	return nil
}
