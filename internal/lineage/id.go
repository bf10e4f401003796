package lineage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for identity hashing. Version suffix enables future
// algorithm migration without colliding with old identifiers.
const (
	DomainRequest = "weaver/request/v1"
	DomainBatch   = "weaver/batch/v1"
	DomainMarker  = "weaver/marker/v1"
)

// hashWithDomain computes SHA-256 with domain separation. The null byte
// separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// shortHashLen truncates identity hashes for readability; 48 bits is
// ample for the per-run identifier space.
const shortHashLen = 12

// RequestKey is the tuple identifying one expanded work item: all
// ancestor lineage keys plus the dimension combination that produced it.
type RequestKey struct {
	EventID string
	// ContextID is the release/compose identifier of the owning job.
	ContextID string
	IssueID   string
	// Combination holds the selected dimension values in declaration
	// order, dimension name -> value ordinal.
	Combination map[string]string
}

// RequestID derives the deterministic short identifier for one work
// item. ordinal/total reflect the item's position in the expansion
// (1-based) so identifiers expose the deterministic ordering, and the
// hash binds the identifier to its lineage and combination, stable
// across reruns of identical recipe input.
func RequestID(key RequestKey, ordinal, total int) (string, error) {
	payload := map[string]any{
		"event_id":   key.EventID,
		"context_id": key.ContextID,
		"issue_id":   key.IssueID,
		"ordinal":    ordinal,
	}
	if len(key.Combination) > 0 {
		payload["combination"] = key.Combination
	}
	canonical, err := marshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("request id: %w", err)
	}
	h := hashWithDomain(DomainRequest, canonical)
	return fmt.Sprintf("REQ-%d.%d.%s", ordinal, total, h[:shortHashLen]), nil
}

// BatchID derives the batch identifier stamped on every execution
// initiated by one orchestration session.
func BatchID(sessionToken string, keys ...string) string {
	payload := append([]string{sessionToken}, keys...)
	canonical, _ := marshalCanonical(payload)
	return hashWithDomain(DomainBatch, canonical)[:shortHashLen]
}

// MarkerDigest hashes an identity-marker payload for tracker search.
func MarkerDigest(parts map[string]string) (string, error) {
	canonical, err := marshalCanonical(parts)
	if err != nil {
		return "", fmt.Errorf("marker digest: %w", err)
	}
	return hashWithDomain(DomainMarker, canonical)[:shortHashLen], nil
}

// ConsistencyError reports a broken lineage chain: a record whose key
// tuple is missing a component or collides with a sibling. It is fatal
// for the stage, since downstream stages cannot trust the chain.
type ConsistencyError struct {
	Stage  Stage
	Record string
	Reason string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("lineage inconsistency at stage %s (%s): %s", e.Stage, e.Record, e.Reason)
}
