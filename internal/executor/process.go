package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"pkt.systems/attackdeck/internal/gatewaygrpc"
	"pkt.systems/attackdeck/schema"
	"pkt.systems/pslog"
)

// killGrace is how long a stopped process group gets between SIGTERM and
// SIGKILL.
var killGrace = 3 * time.Second

// Process runs dispatched commands through a shell on the local host. Each
// command gets its own process group so a stop reaches everything it spawned.
type Process struct {
	Shell string
	Nice  int
}

type outputLine struct {
	kind schema.EventKind
	text string
}

// Execute implements gatewaygrpc.Executor. Stdout lines are reported as
// output, stderr lines as errors, and a natural exit as an exit-code message.
// Nothing is reported after ctx is canceled.
func (p *Process) Execute(ctx context.Context, msg schema.OutboundMessage, emit gatewaygrpc.Emitter) error {
	log := pslog.Ctx(ctx)
	shell := p.Shell
	if shell == "" {
		shell = "sh"
	}
	cmd := exec.Command(shell, "-lc", msg.Command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if msg.WorkingDirectory != "" {
		cmd.Dir = msg.WorkingDirectory
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	started := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("command start: %w", err)
	}
	pid := cmd.Process.Pid
	applyNice(log, pid, p.Nice)
	pgid, _ := syscall.Getpgid(pid)
	log.Debug("executor process started", "pid", pid, "pgid", pgid)

	exited := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			log.Info("executor process stopping", "pid", pid)
			signalGroup(pid, pgid, syscall.SIGTERM)
			select {
			case <-exited:
			case <-time.After(killGrace):
				log.Warn("executor process kill", "pid", pid)
				signalGroup(pid, pgid, syscall.SIGKILL)
			}
		case <-exited:
		}
	}()

	lines := make(chan outputLine, 128)
	var wg sync.WaitGroup
	wg.Add(2)
	go readLines(&wg, stdout, schema.EventOutput, lines)
	go readLines(&wg, stderr, schema.EventError, lines)
	go func() {
		wg.Wait()
		close(lines)
	}()

	counts := map[schema.EventKind]int{}
	for line := range lines {
		counts[line.kind]++
		if ctx.Err() != nil {
			continue
		}
		if err := emit(schema.InboundMessage{Type: line.kind, TabID: msg.TabID, OutputID: msg.OutputID, Payload: line.text}); err != nil {
			log.Warn("executor emit failed", "err", err)
		}
	}
	err = cmd.Wait()
	close(exited)
	if ctx.Err() != nil {
		log.Info("executor process stopped", "pid", pid, "duration_ms", time.Since(started).Milliseconds())
		return nil
	}
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return err
		}
		exitCode = exitErr.ExitCode()
	}
	log.Info(
		"executor process finished",
		"exit_code", exitCode,
		"stdout_lines", counts[schema.EventOutput],
		"stderr_lines", counts[schema.EventError],
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return emit(schema.InboundMessage{
		Type:     schema.EventMessage,
		TabID:    msg.TabID,
		OutputID: msg.OutputID,
		Payload:  fmt.Sprintf("Process exited with code %d", exitCode),
	})
}

func readLines(wg *sync.WaitGroup, reader io.Reader, kind schema.EventKind, out chan<- outputLine) {
	defer wg.Done()
	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		out <- outputLine{kind: kind, text: scanner.Text()}
	}
}

func signalGroup(pid, pgid int, sig syscall.Signal) {
	if pgid > 0 {
		if err := syscall.Kill(-pgid, sig); err == nil {
			killProcessTree(pid, sig)
			return
		}
	}
	_ = syscall.Kill(pid, sig)
	killProcessTree(pid, sig)
}

func killProcessTree(root int, sig syscall.Signal) {
	if root <= 0 {
		return
	}
	children, err := listProcessChildren(root)
	if err != nil {
		return
	}
	for _, pid := range children {
		_ = syscall.Kill(pid, sig)
	}
}

func listProcessChildren(root int) ([]int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}
	parents := make(map[int][]int)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 {
			continue
		}
		ppid, err := readPPid(pid)
		if err != nil {
			continue
		}
		parents[ppid] = append(parents[ppid], pid)
	}
	var out []int
	queue := []int{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range parents[cur] {
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out, nil
}

func readPPid(pid int) (int, error) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "status"))
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "PPid:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, errors.New("ppid missing")
		}
		return strconv.Atoi(fields[1])
	}
	return 0, errors.New("ppid not found")
}

func applyNice(log pslog.Logger, pid int, nice int) {
	if nice == 0 || pid <= 0 {
		return
	}
	if err := syscall.Setpriority(syscall.PRIO_PROCESS, pid, nice); err != nil {
		log.Warn("executor nice set failed", "pid", pid, "nice", nice, "err", err)
		return
	}
	log.Debug("executor nice set", "pid", pid, "nice", nice)
}
