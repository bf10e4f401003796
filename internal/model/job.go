package model

import "fmt"

// ArtifactJob pairs an Event with one resolved release context. Exactly
// one of Erratum, Compose or MergeRequest is populated per event variant
// (a compose is also carried alongside an erratum, since that is what
// its release resolves to for execution).
type ArtifactJob struct {
	Event        Event         `yaml:"event"`
	Erratum      *Erratum      `yaml:"erratum,omitempty"`
	Compose      *Compose      `yaml:"compose,omitempty"`
	MergeRequest *MergeRequest `yaml:"rog,omitempty"`
}

// ShortID identifies the release context within the owning event. It is
// never empty: record names embed it and a blank segment would collide
// across jobs.
func (j ArtifactJob) ShortID() string {
	switch {
	case j.Erratum != nil:
		if j.Erratum.ContentType == ContentDocker && len(j.Erratum.Builds) > 0 {
			// docker jobs are split per build and identified by container name
			return ParseNVR(j.Erratum.Builds[0]).Name
		}
		return j.Erratum.Release
	case j.Compose != nil && j.Compose.ID != "":
		return j.Compose.ID
	case j.MergeRequest != nil:
		if len(j.MergeRequest.Components) > 0 {
			return j.MergeRequest.Components[0]
		}
		return j.MergeRequest.BuildTarget
	}
	// tracker-issue events carry no resolved payload
	return j.Event.ShortID()
}

// ID returns the human-readable job identifier.
func (j ArtifactJob) ID() string {
	return fmt.Sprintf("E: %s @ %s", j.Event.ShortID(), j.ShortID())
}

// IssueJob is an ArtifactJob reconciled against one tracker issue, with
// the recipe it schedules.
type IssueJob struct {
	ArtifactJob `yaml:",inline"`

	Issue  Issue  `yaml:"jira"`
	Recipe Recipe `yaml:"recipe"`
}

func (j IssueJob) ID() string {
	return fmt.Sprintf("J: %s @ %s - %s", j.Event.ShortID(), j.ShortID(), j.Issue.ID)
}

// ScheduleJob is one concrete request to be executed.
type ScheduleJob struct {
	IssueJob `yaml:",inline"`

	Request Request `yaml:"request"`
}

func (j ScheduleJob) ID() string {
	return fmt.Sprintf("S: %s @ %s - %s / %s",
		j.Event.ShortID(), j.ShortID(), j.Issue.ID, j.Request.ID)
}

// ExecuteJob is a ScheduleJob with its execution outcome appended.
type ExecuteJob struct {
	ScheduleJob `yaml:",inline"`

	Execution Execution `yaml:"execution"`
}

func (j ExecuteJob) ID() string {
	return fmt.Sprintf("X: %s @ %s - %s / %s",
		j.Event.ShortID(), j.ShortID(), j.Issue.ID, j.Request.ID)
}

// Recipe is the source locator of a recipe document, plus the context
// and environment the owning action contributed.
type Recipe struct {
	URL         string            `yaml:"url"`
	Context     map[string]string `yaml:"context,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
}
