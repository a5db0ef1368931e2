package runtime

// PythonRuntime runs Python 3 sources directly.
type PythonRuntime struct{}

func (p *PythonRuntime) Name() string { return "python" }

func (p *PythonRuntime) Image() string { return "docker.io/library/python:3.12-slim" }

func (p *PythonRuntime) FileExtension() string { return ".py" }

func (p *PythonRuntime) SourceFileName(string) string { return "main.py" }

func (p *PythonRuntime) CompileCommand(string) []string { return nil }

func (p *PythonRuntime) Command(srcPath string) []string {
	return []string{"python3", srcPath}
}

func (p *PythonRuntime) Validate(code string) error { return validateSize(code) }
