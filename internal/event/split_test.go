package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaverqa/weaver/internal/model"
)

type fakeSource struct {
	errata []model.Erratum
	mr     *model.MergeRequest
}

func (f *fakeSource) FetchAdvisory(_ context.Context, id string) ([]model.Erratum, error) {
	return f.errata, nil
}

func (f *fakeSource) FetchCompose(_ context.Context, id string) (*model.Compose, error) {
	return &model.Compose{ID: id}, nil
}

func (f *fakeSource) FetchTrackerIssue(_ context.Context, key string) (*TrackerIssue, error) {
	return &TrackerIssue{Key: key, Summary: "some issue"}, nil
}

func (f *fakeSource) FetchMergeRequest(_ context.Context, url string) (*model.MergeRequest, error) {
	return f.mr, nil
}

func TestSplitAdvisoryPerRelease(t *testing.T) {
	src := &fakeSource{errata: []model.Erratum{
		{ID: "2024:1234", Release: "RHEL-9.4.0.Z.MAIN", ContentType: model.ContentRPM},
		{ID: "2024:1234", Release: "RHEL-8.10.0.Z.EUS", ContentType: model.ContentRPM},
	}}
	ev := model.Event{Type: model.EventErratum, ID: "2024:1234"}

	jobs, err := Split(context.Background(), ev, src, Options{})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "RHEL-9.4.0-Nightly", jobs[0].Compose.ID)
	assert.Equal(t, "RHEL-8.10.0-Nightly", jobs[1].Compose.ID)
	assert.Equal(t, "RHEL-9.4.0.Z.MAIN", jobs[0].Erratum.Release)
}

func TestSplitContainerAdvisoryPerBuild(t *testing.T) {
	src := &fakeSource{errata: []model.Erratum{
		{
			ID:          "2024:5678",
			Release:     "RHEL-9.4.0.GA",
			ContentType: model.ContentDocker,
			Builds:      []string{"foo-container-1.0-2", "bar-container-2.1-1"},
		},
	}}
	ev := model.Event{Type: model.EventErratum, ID: "2024:5678"}

	jobs, err := Split(context.Background(), ev, src, Options{})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, []string{"foo-container-1.0-2"}, jobs[0].Erratum.Builds)
	assert.Equal(t, []string{"foo-container"}, jobs[0].Erratum.Components)
	assert.Equal(t, []string{"bar-container-2.1-1"}, jobs[1].Erratum.Builds)
}

func TestSplitSkipsEmptyCompose(t *testing.T) {
	src := &fakeSource{errata: []model.Erratum{
		{ID: "2024:1234", Release: "RHEL-9.4.0.Z.MAIN", ContentType: model.ContentRPM},
		{ID: "2024:1234", Release: "RHEL-6-ELS", ContentType: model.ContentRPM},
	}}
	ev := model.Event{Type: model.EventErratum, ID: "2024:1234"}

	jobs, err := Split(context.Background(), ev, src, Options{
		Mapping: []string{
			"RHEL-9.4.0.Z.MAIN=RHEL-9.4.0-Nightly",
			"RHEL-6-ELS=",
		},
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "RHEL-9.4.0-Nightly", jobs[0].Compose.ID)
}

func TestSplitComposeEvent(t *testing.T) {
	ev := model.Event{Type: model.EventCompose, ID: "RHEL-10.0-Nightly"}
	jobs, err := Split(context.Background(), ev, &fakeSource{}, Options{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "RHEL-10.0-Nightly", jobs[0].Compose.ID)
	assert.Nil(t, jobs[0].Erratum)
}

func TestSplitMergeRequestEvent(t *testing.T) {
	src := &fakeSource{mr: &model.MergeRequest{
		ID:          "https://gitlab.com/redhat/rhel/src/bash/-/merge_requests/42",
		BuildTarget: "rhel-10.0-candidate",
	}}
	ev := model.Event{Type: model.EventRoG, ID: src.mr.ID}

	jobs, err := Split(context.Background(), ev, src, Options{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "RHEL-10.0-Nightly", jobs[0].Compose.ID)
	assert.Equal(t, src.mr, jobs[0].MergeRequest)
}

func TestSplitJiraEvent(t *testing.T) {
	ev := model.Event{Type: model.EventJira, ID: "PROJ-123"}
	jobs, err := Split(context.Background(), ev, &fakeSource{}, Options{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Nil(t, jobs[0].Compose)
	assert.Nil(t, jobs[0].Erratum)
}
