package issues

import (
	"fmt"
	"slices"
	"strings"

	"github.com/weaverqa/weaver/internal/lineage"
	"github.com/weaverqa/weaver/internal/model"
)

// markerLabel prefixes every identity marker stamped into an issue
// description.
const markerLabel = "::: weaver"

// Marker derives the identity string binding an issue to one action
// and one job. The default form is respin-specific: for erratum events
// the digest covers the sorted build list, so a respin produces a new
// marker and the previous issue is recognized as belonging to an older
// respin. allRespins omits the build list, identifying the action
// across respins for search.
//
// An action's marker_id, when set, replaces the derived digest
// entirely (the caller renders it first).
func Marker(action Action, job model.ArtifactJob, allRespins bool) (string, error) {
	if action.MarkerID != "" {
		return fmt.Sprintf("%s %s :::", markerLabel, action.MarkerID), nil
	}
	parts := map[string]string{
		"action": action.ID,
		"job":    job.ID(),
	}
	if !allRespins && job.Event.Type == model.EventErratum && job.Erratum != nil {
		builds := slices.Clone(job.Erratum.Builds)
		slices.Sort(builds)
		parts["builds"] = strings.Join(builds, ",")
	}
	digest, err := lineage.MarkerDigest(parts)
	if err != nil {
		return "", fmt.Errorf("marker for action %s: %w", action.ID, err)
	}
	if allRespins {
		return fmt.Sprintf("%s %s %s :::", markerLabel, action.ID, digest), nil
	}
	return fmt.Sprintf("%s %s respin %s :::", markerLabel, action.ID, digest), nil
}

// MarkerBlock renders the description footer carrying both marker
// variants, so respin-specific membership and cross-respin search both
// resolve against the same issue.
func MarkerBlock(action Action, job model.ArtifactJob) (string, error) {
	all, err := Marker(action, job, true)
	if err != nil {
		return "", err
	}
	respin, err := Marker(action, job, false)
	if err != nil {
		return "", err
	}
	if all == respin {
		return all, nil
	}
	return all + "\n" + respin, nil
}
