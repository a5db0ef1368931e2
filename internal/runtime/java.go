package runtime

import (
	"path/filepath"
	"regexp"
)

// javac insists that a public class lives in a file of the same name.
var publicClassRe = regexp.MustCompile(`(?m)^\s*public\s+(?:(?:final|abstract|strictfp)\s+)*class\s+([A-Za-z_$][A-Za-z0-9_$]*)`)

const defaultJavaClass = "Main"

// JavaRuntime compiles with javac and runs the public class on the JVM.
type JavaRuntime struct{}

func (j *JavaRuntime) Name() string { return "java" }

func (j *JavaRuntime) Image() string { return "docker.io/library/eclipse-temurin:21-jdk" }

func (j *JavaRuntime) FileExtension() string { return ".java" }

func (j *JavaRuntime) SourceFileName(code string) string {
	return PublicClass(code) + ".java"
}

func (j *JavaRuntime) CompileCommand(srcPath string) []string {
	return []string{"javac", srcPath}
}

func (j *JavaRuntime) Command(srcPath string) []string {
	return []string{"java", "-cp", filepath.Dir(srcPath), filepath.Base(stem(srcPath))}
}

func (j *JavaRuntime) Validate(code string) error { return validateSize(code) }

// PublicClass returns the name of the first public class in code, or Main.
func PublicClass(code string) string {
	if m := publicClassRe.FindStringSubmatch(code); m != nil {
		return m[1]
	}
	return defaultJavaClass
}
