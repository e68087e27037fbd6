// Package provision checks that the runtime a job needs is installed at a
// sufficient version before any setup step runs.
package provision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrRuntimeMissing = errors.New("runtime not found")
	ErrRuntimeVersion = errors.New("runtime version too old")
)

// Probe describes the runtime to look for.
type Probe struct {
	Command     string
	MinVersion  string
	VersionArgs []string
}

// Result is what the probe found.
type Result struct {
	Path    string
	Version string
}

// Check runs "<command> <version args>" and compares the first version number
// in its output against MinVersion.
func (p Probe) Check(ctx context.Context) (Result, error) {
	path, err := exec.LookPath(p.Command)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrRuntimeMissing, p.Command, err)
	}
	args := p.VersionArgs
	if len(args) == 0 {
		args = []string{"--version"}
	}
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return Result{Path: path}, fmt.Errorf("%w: %s %s: %v", ErrRuntimeMissing, p.Command, strings.Join(args, " "), err)
	}
	ver := ExtractVersion(out.String())
	res := Result{Path: path, Version: ver}
	if ver == "" {
		return res, fmt.Errorf("%w: no version in output of %s", ErrRuntimeVersion, p.Command)
	}
	if p.MinVersion != "" && CompareVersions(ver, p.MinVersion) < 0 {
		return res, fmt.Errorf("%w: %s %s < %s", ErrRuntimeVersion, p.Command, ver, p.MinVersion)
	}
	return res, nil
}

var versionRe = regexp.MustCompile(`\d+(?:\.\d+)*`)

// ExtractVersion returns the first dotted number in s, e.g. "3.9.18" from
// "Python 3.9.18".
func ExtractVersion(s string) string {
	return versionRe.FindString(s)
}

var numRe = regexp.MustCompile(`\d+`)

// CompareVersions compares the numeric parts of two versions, missing parts
// counting as zero: "3.9" == "3.9.0" < "3.10".
func CompareVersions(a, b string) int {
	ta := numRe.FindAllString(a, -1)
	tb := numRe.FindAllString(b, -1)
	for i := 0; i < len(ta) || i < len(tb); i++ {
		var xa, xb int
		if i < len(ta) {
			xa, _ = strconv.Atoi(ta[i])
		}
		if i < len(tb) {
			xb, _ = strconv.Atoi(tb[i])
		}
		if xa > xb {
			return 1
		}
		if xa < xb {
			return -1
		}
	}
	return 0
}
