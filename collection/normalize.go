package collection

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pyscout/core/errors"
	"github.com/pyscout/core/protocol"
)

// Kind is the fine-grained environment manager classification.
type Kind string

const (
	KindSystem            Kind = "System"
	KindMicrosoftStore    Kind = "MicrosoftStore"
	KindPyenv             Kind = "Pyenv"
	KindConda             Kind = "Conda"
	KindPoetry            Kind = "Poetry"
	KindPipenv            Kind = "Pipenv"
	KindVenv              Kind = "Venv"
	KindVirtualEnv        Kind = "VirtualEnv"
	KindVirtualEnvWrapper Kind = "VirtualEnvWrapper"
	KindCustom            Kind = "Custom"
	KindUnknown           Kind = "Unknown"
)

// EnvType is the coarse classification derived from Kind.
type EnvType string

const (
	TypeVirtual      EnvType = "Virtual"
	TypeConda        EnvType = "Conda"
	TypeUndetermined EnvType = "Undetermined"
)

// Architecture of the interpreter binary.
type Architecture string

const (
	ArchX86     Architecture = "x86"
	ArchX64     Architecture = "x64"
	ArchUnknown Architecture = "Unknown"
)

// UnresolvedComponent is the sentinel for a version component or timestamp
// that has not been resolved yet. Distinct from a component resolved to 0.
const UnresolvedComponent = -1

// Version is a parsed interpreter version triple.
type Version struct {
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Micro int    `json:"micro"`
	Raw   string `json:"raw,omitempty"`
}

// Resolved reports whether every component of the triple is known.
func (v Version) Resolved() bool {
	return v.Major >= 0 && v.Minor >= 0 && v.Micro >= 0
}

func (v Version) String() string {
	if v.Raw != "" {
		return v.Raw
	}
	if v.Major < 0 {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Micro)
}

// ExecutableInfo describes the interpreter binary of an environment.
// Creation and modification timestamps are not reported by the worker and
// stay at the unresolved sentinel.
type ExecutableInfo struct {
	Path      string `json:"path"`
	SysPrefix string `json:"sysPrefix,omitempty"`
	Ctime     int64  `json:"ctime"`
	Mtime     int64  `json:"mtime"`
}

// Environment is a normalized environment descriptor. Identity key is the
// executable path.
type Environment struct {
	Name        string         `json:"name,omitempty"`
	Location    string         `json:"location"`
	Kind        Kind           `json:"kind"`
	Type        EnvType        `json:"type"`
	Executable  ExecutableInfo `json:"executable"`
	Version     Version        `json:"version"`
	Arch        Architecture   `json:"arch"`
	DisplayName string         `json:"displayName"`
}

// kindTable maps raw worker kind tags onto the internal enumeration.
var kindTable = map[string]Kind{
	"LinuxGlobal":         KindSystem,
	"MacCommandLineTools": KindSystem,
	"MacPythonOrg":        KindSystem,
	"MacXCode":            KindSystem,
	"WindowsRegistry":     KindSystem,
	"GlobalPaths":         KindSystem,
	"Homebrew":            KindSystem,
	"WindowsStore":        KindMicrosoftStore,
	"MicrosoftStore":      KindMicrosoftStore,
	"Pyenv":               KindPyenv,
	"PyenvVirtualEnv":     KindPyenv,
	"Conda":               KindConda,
	"Poetry":              KindPoetry,
	"Pipenv":              KindPipenv,
	"Venv":                KindVenv,
	"VirtualEnv":          KindVirtualEnv,
	"VirtualEnvWrapper":   KindVirtualEnvWrapper,
	"Custom":              KindCustom,
}

// typeTable maps kinds onto the coarse environment type.
var typeTable = map[Kind]EnvType{
	KindConda:             TypeConda,
	KindPoetry:            TypeVirtual,
	KindPipenv:            TypeVirtual,
	KindVenv:              TypeVirtual,
	KindVirtualEnv:        TypeVirtual,
	KindVirtualEnvWrapper: TypeVirtual,
}

// KindFromTag classifies a raw worker kind tag. Unmapped tags log a warning
// and degrade to Unknown rather than failing.
func KindFromTag(tag string, logger *logrus.Entry) Kind {
	if kind, ok := kindTable[tag]; ok {
		return kind
	}
	if tag != "" {
		logger.WithField("kind", tag).Warn("Unmapped environment kind tag")
	}
	return KindUnknown
}

// TypeForKind derives the coarse environment type for a kind.
func TypeForKind(kind Kind) EnvType {
	if t, ok := typeTable[kind]; ok {
		return t
	}
	return TypeUndetermined
}

// ArchFromString classifies an architecture hint.
func ArchFromString(arch string) Architecture {
	switch strings.ToLower(arch) {
	case "x86":
		return ArchX86
	case "x64":
		return ArchX64
	default:
		return ArchUnknown
	}
}

// ParseVersion parses a version string into a triple, tolerating partial and
// garbage input. Missing or unparsable components stay at the unresolved
// sentinel so "not yet resolved" is distinguishable from "resolved to 0".
func ParseVersion(raw string) Version {
	v := Version{
		Major: UnresolvedComponent,
		Minor: UnresolvedComponent,
		Micro: UnresolvedComponent,
		Raw:   raw,
	}
	if raw == "" {
		return v
	}

	parts := strings.SplitN(strings.TrimSpace(raw), ".", 4)
	targets := []*int{&v.Major, &v.Minor, &v.Micro}
	for i, target := range targets {
		if i >= len(parts) {
			break
		}
		// Strip pre-release or build suffixes from the component
		// (e.g. "4rc1" -> 4).
		component := leadingDigits(parts[i])
		if component == "" {
			break
		}
		n, err := strconv.Atoi(component)
		if err != nil {
			break
		}
		*target = n
	}
	return v
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

// Normalize maps a raw worker environment record to a normalized descriptor.
// A record lacking both prefix and executable is invalid.
func Normalize(rec *protocol.EnvironmentRecord, logger *logrus.Entry) (*Environment, error) {
	if rec.Prefix == "" && rec.Executable == "" {
		return nil, errors.RecordInvalid("record has neither prefix nor executable")
	}

	kind := KindFromTag(rec.Kind, logger)
	version := ParseVersion(rec.Version)
	arch := ArchFromString(rec.Arch)

	location := rec.Prefix
	if location == "" {
		location = rec.Executable
	}

	env := &Environment{
		Name:     rec.Name,
		Location: location,
		Kind:     kind,
		Type:     TypeForKind(kind),
		Executable: ExecutableInfo{
			Path:      rec.Executable,
			SysPrefix: rec.Prefix,
			Ctime:     UnresolvedComponent,
			Mtime:     UnresolvedComponent,
		},
		Version: version,
		Arch:    arch,
	}
	env.DisplayName = displayName(rec, env)
	return env, nil
}

// displayName composes the human-facing name from version, kind, optional
// environment name and a 32-bit suffix for x86 interpreters.
func displayName(rec *protocol.EnvironmentRecord, env *Environment) string {
	if rec.DisplayName != "" {
		return rec.DisplayName
	}

	var b strings.Builder
	b.WriteString("Python")
	if env.Version.Major >= 0 {
		b.WriteString(" ")
		b.WriteString(env.Version.String())
	}
	if env.Name != "" {
		b.WriteString(fmt.Sprintf(" ('%s')", env.Name))
	} else if env.Kind != KindSystem && env.Kind != KindUnknown {
		b.WriteString(fmt.Sprintf(" (%s)", env.Kind))
	}
	if env.Arch == ArchX86 {
		b.WriteString(" 32-bit")
	}
	return b.String()
}
