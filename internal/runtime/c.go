package runtime

// CRuntime compiles C11 sources with gcc.
type CRuntime struct{}

func (c *CRuntime) Name() string { return "c" }

func (c *CRuntime) Image() string { return "docker.io/library/gcc:14" }

func (c *CRuntime) FileExtension() string { return ".c" }

func (c *CRuntime) SourceFileName(string) string { return "main.c" }

func (c *CRuntime) CompileCommand(srcPath string) []string {
	return []string{"gcc", "-Wall", "-Wextra", "-std=c11", srcPath, "-o", stem(srcPath), "-lm"}
}

func (c *CRuntime) Command(srcPath string) []string {
	return []string{stem(srcPath)}
}

func (c *CRuntime) Validate(code string) error { return validateSize(code) }
