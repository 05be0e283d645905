// Package envstatus observes the Python environment the pipeline stages run in.
//
// A Status is computed fresh on every invocation and never mutates anything on
// disk; reconciling an unhealthy Status is the bootstrap package's job.
package envstatus

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// MarkerFile is written inside the venv after a successful dependency install.
// It holds the hex SHA-256 of the requirements file that was installed.
const MarkerFile = ".pipeline-requirements.sha256"

type Status struct {
	ProjectDir string `json:"project_dir"`
	VenvDir    string `json:"venv_dir"`
	VenvExists bool   `json:"venv_exists"`

	PythonPath   string `json:"python_path"`
	PythonExists bool   `json:"python_exists"`

	Interpreter      string `json:"interpreter"`
	InterpreterPath  string `json:"interpreter_path,omitempty"`
	InterpreterFound bool   `json:"interpreter_found"`

	Toolchain         []string `json:"toolchain,omitempty"`
	ToolchainPath     string   `json:"toolchain_path,omitempty"`
	ToolchainRequired bool     `json:"toolchain_required"`

	RequirementsFile    string `json:"requirements_file"`
	RequirementsPresent bool   `json:"requirements_present"`
	RequirementsDigest  string `json:"requirements_digest,omitempty"`
	InstalledDigest     string `json:"installed_digest,omitempty"`

	MissingModules []string `json:"missing_modules,omitempty"`

	CheckedAt time.Time `json:"checked_at"`
}

// Ready reports whether stages can run without any bootstrap work.
func (s Status) Ready() bool {
	return s.VenvExists && s.PythonExists && !s.RequirementsStale() && len(s.MissingModules) == 0
}

// RequirementsStale reports whether the declared requirements differ from what
// was last installed into the venv.
func (s Status) RequirementsStale() bool {
	if !s.RequirementsPresent {
		return false
	}
	return s.InstalledDigest == "" || s.InstalledDigest != s.RequirementsDigest
}

// ToolchainFound is true when no toolchain is required or one was found on PATH.
func (s Status) ToolchainFound() bool {
	return !s.ToolchainRequired || s.ToolchainPath != ""
}

// Problems lists human readable reasons the environment is not Ready.
func (s Status) Problems() []string {
	var out []string
	if !s.VenvExists {
		out = append(out, fmt.Sprintf("virtual environment not found at %s", s.VenvDir))
	} else if !s.PythonExists {
		out = append(out, fmt.Sprintf("python executable not found at %s", s.PythonPath))
	}
	if s.RequirementsStale() {
		out = append(out, fmt.Sprintf("dependencies from %s are not installed", s.RequirementsFile))
	}
	if len(s.MissingModules) > 0 {
		out = append(out, "missing dependencies: "+strings.Join(s.MissingModules, ", "))
	}
	if !s.VenvExists && !s.InterpreterFound {
		out = append(out, fmt.Sprintf("python interpreter %q not found in PATH", s.Interpreter))
	}
	if !s.ToolchainFound() {
		out = append(out, fmt.Sprintf("native build toolchain not found in PATH (tried: %s)", strings.Join(s.Toolchain, ", ")))
	}
	return out
}

// VenvPython returns the interpreter path inside a venv for the given GOOS.
func VenvPython(venvDir, goos string) string {
	if goos == "windows" {
		return filepath.Join(venvDir, "Scripts", "python.exe")
	}
	return filepath.Join(venvDir, "bin", "python")
}

// DefaultVenvPython is VenvPython for the running platform.
func DefaultVenvPython(venvDir string) string {
	return VenvPython(venvDir, runtime.GOOS)
}
