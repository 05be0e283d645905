package envstatus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

type InspectorConfig struct {
	ProjectDir       string
	VenvDir          string
	RequirementsFile string
	PythonCmd        string
	RequiredModules  []string
	BuildToolchain   []string
	Logger           *zap.SugaredLogger
}

// Inspector computes a Status. All host interaction goes through the function
// fields so tests can replace them.
type Inspector struct {
	cfg    InspectorConfig
	logger *zap.SugaredLogger

	lookPath   func(file string) (string, error)
	stat       func(name string) (os.FileInfo, error)
	readFile   func(name string) ([]byte, error)
	runCommand func(ctx context.Context, name string, args ...string) error
	now        func() time.Time
}

func NewInspector(cfg InspectorConfig) *Inspector {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Inspector{
		cfg:        cfg,
		logger:     logger,
		lookPath:   exec.LookPath,
		stat:       os.Stat,
		readFile:   os.ReadFile,
		runCommand: runQuiet,
		now:        time.Now,
	}
}

func (p *Inspector) VenvDir() string          { return p.resolve(p.cfg.VenvDir) }
func (p *Inspector) RequirementsFile() string { return p.resolve(p.cfg.RequirementsFile) }
func (p *Inspector) PythonCmd() string        { return p.cfg.PythonCmd }

// MarkerPath is where the installed requirements digest is recorded.
func (p *Inspector) MarkerPath() string { return filepath.Join(p.VenvDir(), MarkerFile) }

// Check observes the environment. It never fails: every observation that
// cannot be made is reported as the unhealthy value.
func (p *Inspector) Check(ctx context.Context) Status {
	venvDir := p.VenvDir()
	s := Status{
		ProjectDir:       p.cfg.ProjectDir,
		VenvDir:          venvDir,
		PythonPath:       DefaultVenvPython(venvDir),
		Interpreter:      p.cfg.PythonCmd,
		Toolchain:        append([]string(nil), p.cfg.BuildToolchain...),
		RequirementsFile: p.RequirementsFile(),
		CheckedAt:        p.now().UTC(),
	}

	s.VenvExists = p.isDir(venvDir)
	s.PythonExists = s.VenvExists && p.isFile(s.PythonPath)

	if path, err := p.lookPath(p.cfg.PythonCmd); err == nil {
		s.InterpreterFound = true
		s.InterpreterPath = path
	}

	for _, candidate := range p.cfg.BuildToolchain {
		if path, err := p.lookPath(candidate); err == nil {
			s.ToolchainPath = path
			break
		}
	}

	if b, err := p.readFile(s.RequirementsFile); err == nil {
		s.RequirementsPresent = true
		s.RequirementsDigest = Digest(b)
	}
	if s.VenvExists {
		if b, err := p.readFile(p.MarkerPath()); err == nil {
			s.InstalledDigest = strings.TrimSpace(string(b))
		}
	}

	if s.PythonExists {
		s.MissingModules = p.missingModules(ctx, s.PythonPath)
	} else if len(p.cfg.RequiredModules) > 0 {
		s.MissingModules = append([]string(nil), p.cfg.RequiredModules...)
	}

	needsInstall := !s.VenvExists || s.RequirementsStale() || len(s.MissingModules) > 0
	s.ToolchainRequired = len(p.cfg.BuildToolchain) > 0 && needsInstall

	p.logger.Debugw(
		"environment_checked",
		"venv", venvDir,
		"venv_exists", s.VenvExists,
		"python_exists", s.PythonExists,
		"requirements_stale", s.RequirementsStale(),
		"missing_modules", s.MissingModules,
		"ready", s.Ready(),
	)
	return s
}

func (p *Inspector) missingModules(ctx context.Context, python string) []string {
	var missing []string
	for _, mod := range p.cfg.RequiredModules {
		if err := p.runCommand(ctx, python, "-c", "import "+mod); err != nil {
			missing = append(missing, mod)
		}
	}
	return missing
}

func (p *Inspector) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.cfg.ProjectDir, path)
}

func (p *Inspector) isDir(path string) bool {
	info, err := p.stat(path)
	return err == nil && info.IsDir()
}

func (p *Inspector) isFile(path string) bool {
	info, err := p.stat(path)
	return err == nil && !info.IsDir()
}

// Digest is the hex SHA-256 used for the requirements marker.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func runQuiet(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}
