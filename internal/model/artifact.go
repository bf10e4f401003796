package model

import (
	"fmt"
	"regexp"
	"strconv"
)

// ContentType classifies what an advisory or merge request ships.
type ContentType string

const (
	ContentRPM    ContentType = "rpm"
	ContentDocker ContentType = "docker"
	ContentModule ContentType = "module"
)

// UndefinedCompose marks a compose that could not be derived.
const UndefinedCompose = "_undefined_"

// Erratum represents one advisory release: a set of builds targeting a
// single product release.
type Erratum struct {
	ID             string      `yaml:"id"`
	ContentType    ContentType `yaml:"content_type,omitempty"`
	RespinCount    int         `yaml:"respin_count"`
	Revision       int         `yaml:"revision"`
	Summary        string      `yaml:"summary"`
	Release        string      `yaml:"release"`
	URL            string      `yaml:"url"`
	Archs          []Arch      `yaml:"archs,omitempty"`
	Builds         []string    `yaml:"builds,omitempty"`
	BlockingBuilds []string    `yaml:"blocking_builds,omitempty"`
	BlockingErrata []string    `yaml:"blocking_errata,omitempty"`
	Components     []string    `yaml:"components,omitempty"`
	AssignedTo     string      `yaml:"people_assigned_to,omitempty"`
	PackageOwner   string      `yaml:"people_package_owner,omitempty"`
	QEGroup        string      `yaml:"people_qe_group,omitempty"`
	DevelGroup     string      `yaml:"people_devel_group,omitempty"`
}

// Compose represents a single distribution compose.
type Compose struct {
	ID string `yaml:"id"`
}

var (
	composeMinor = regexp.MustCompile(`^RHEL-([0-9]+)\.([0-9]+)`)
	composeMajor = regexp.MustCompile(`^(Fedora|RHEL)-([0-9]+)`)
)

// PrevMinor derives the previous minor release compose, used by recipes
// testing upgrade paths. Returns UndefinedCompose when not derivable.
func (c Compose) PrevMinor() string {
	m := composeMinor.FindStringSubmatch(c.ID)
	if m == nil {
		return UndefinedCompose
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	switch {
	case (major == 8 || major == 9) && minor > 0:
		return fmt.Sprintf("RHEL-%d.%d.0-Nightly", major, minor-1)
	case major == 10 && minor > 0:
		return fmt.Sprintf("RHEL-%d.%d-Nightly", major, minor-1)
	}
	return UndefinedCompose
}

// PrevMajor derives the previous major release compose.
func (c Compose) PrevMajor() string {
	m := composeMajor.FindStringSubmatch(c.ID)
	if m == nil {
		return UndefinedCompose
	}
	distro := m[1]
	major, _ := strconv.Atoi(m[2])
	switch {
	case distro == "RHEL" && major == 8:
		return "RHEL-7-LatestUpdated"
	case distro == "RHEL" && (major == 9 || major == 10):
		return fmt.Sprintf("RHEL-%d-Nightly", major-1)
	case distro == "Fedora" && major > 36:
		return fmt.Sprintf("Fedora-%d-Updated", major-1)
	}
	return UndefinedCompose
}

// MergeRequest represents a merge request associated with a build task.
type MergeRequest struct {
	ID          string      `yaml:"id"`
	ContentType ContentType `yaml:"content_type,omitempty"`
	Title       string      `yaml:"title"`
	BuildTaskID string      `yaml:"build_task_id"`
	BuildTarget string      `yaml:"build_target"`
	Archs       []Arch      `yaml:"archs,omitempty"`
	Builds      []string    `yaml:"builds,omitempty"`
	Components  []string    `yaml:"components,omitempty"`
}

var nvrPattern = regexp.MustCompile(`^(.+)-([^-]+)-([^-]+)$`)

// NVR is a parsed name-version-release build identifier.
type NVR struct {
	Name    string
	Version string
	Release string
}

// ParseNVR splits a build identifier into name, version and release.
// An identifier without enough dashes keeps everything in Name.
func ParseNVR(s string) NVR {
	m := nvrPattern.FindStringSubmatch(s)
	if m == nil {
		return NVR{Name: s}
	}
	return NVR{Name: m[1], Version: m[2], Release: m[3]}
}
