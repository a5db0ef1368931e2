//go:build unix

package sandbox

import (
	"os"
	"path/filepath"
	"slices"
	"syscall"
	"testing"
)

func TestOpenTree(t *testing.T) {
	err := WithTempDir("share", func(dir string) error {
		src, err := WriteSource(dir, "main.py", "print(1)\n")
		if err != nil {
			return err
		}
		exe := filepath.Join(dir, "main")
		if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o700); err != nil {
			return err
		}
		if err := os.Chmod(src, 0o600); err != nil {
			return err
		}

		if err := openTree(dir); err != nil {
			t.Fatalf("openTree: %v", err)
		}

		tests := []struct {
			path string
			want os.FileMode
		}{
			{dir, 0o777},
			{src, 0o644},
			{exe, 0o755},
		}
		for _, tt := range tests {
			info, err := os.Stat(tt.path)
			if err != nil {
				t.Fatal(err)
			}
			if got := info.Mode().Perm(); got != tt.want {
				t.Errorf("%s mode = %o, want %o", filepath.Base(tt.path), got, tt.want)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// The work dir starts private; after sharing, the container user must be able
// to enter it either as owner or through the other-permission bits.
func TestShareWorkDir_ContainerUserCanWrite(t *testing.T) {
	profile := SubmissionSecurityProfile()
	err := WithTempDir("share", func(dir string) error {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if info.Mode().Perm()&0o007 != 0 {
			t.Fatalf("fresh work dir mode = %o, expected private", info.Mode().Perm())
		}

		if err := shareWorkDir(dir, profile.UID, profile.GID); err != nil {
			t.Fatalf("shareWorkDir: %v", err)
		}

		info, err = os.Stat(dir)
		if err != nil {
			return err
		}
		st := info.Sys().(*syscall.Stat_t)
		owned := st.Uid == profile.UID && info.Mode().Perm()&0o700 == 0o700
		open := info.Mode().Perm()&0o007 == 0o007
		if !owned && !open {
			t.Errorf("work dir uid=%d mode=%o is not usable by %d:%d",
				st.Uid, info.Mode().Perm(), profile.UID, profile.GID)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestChownTree(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("chown needs root")
	}
	profile := SubmissionSecurityProfile()
	dir := t.TempDir()
	src, err := WriteSource(dir, "main.c", "int main(void){return 0;}\n")
	if err != nil {
		t.Fatal(err)
	}
	if err := chownTree(dir, profile.UID, profile.GID); err != nil {
		t.Fatalf("chownTree: %v", err)
	}
	for _, p := range []string{dir, src} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatal(err)
		}
		if st := info.Sys().(*syscall.Stat_t); st.Uid != profile.UID || st.Gid != profile.GID {
			t.Errorf("%s owned by %d:%d, want %d:%d", filepath.Base(p), st.Uid, st.Gid, profile.UID, profile.GID)
		}
	}
}

func TestDockerArgs_RunAsProfileUser(t *testing.T) {
	d := &DockerInvoker{defaultImage: "gcc:14", limits: DefaultLimits(), security: SubmissionSecurityProfile()}
	args := d.buildArgs("grader-x", "/tmp/seccomp.json", Command{Args: []string{"python3", "main.py"}, Dir: "/tmp/w"})

	i := slices.Index(args, "--user")
	if i < 0 || i+1 >= len(args) || args[i+1] != "65534:65534" {
		t.Errorf("--user value missing or wrong in %v", args)
	}
	if got := args[len(args)-2:]; !slices.Equal(got, []string{"python3", "main.py"}) {
		t.Errorf("argv tail = %v", got)
	}
}
