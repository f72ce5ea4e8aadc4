package hive

import "testing"

func TestCheckpointEncodeDecodeRoundTrip(t *testing.T) {
	runID := NewRunID()
	cp := Checkpoint{
 ID: CheckpointID("deadbeef"),
 ThreadID: ThreadID("thread-1"),
 RunID: runID,
 StepIndex: 3,
 SchemaVersion: "H1:abc",
 GraphVersion: "H2:def",
 ChannelVersions: map[ChannelID]uint64{"counter": 2},
 VersionsSeenByNode: map[NodeID]map[ChannelID]uint64{"plan": {"counter": 2}},
 UpdatedChannelsLastCommit: []ChannelID{"counter"},
 GlobalDataByChannelID: map[ChannelID][]byte{"counter": []byte("7")},
 JoinBarrierSeenByJoinID: map[string][]NodeID{"join:a+b:c": {"a", "b"}},
	}

	data, err := EncodeCheckpoint(cp)
	if err != nil {
 t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeCheckpoint(data)
	if err != nil {
 t.Fatalf("decode: %v", err)
	}

	if decoded.ID != cp.ID || decoded.ThreadID != cp.ThreadID || decoded.RunID != cp.RunID {
 t.Fatalf("round trip mismatch: %+v vs %+v", decoded, cp)
	}
	if decoded.StepIndex != cp.StepIndex {
 t.Fatalf("expected stepIndex %d, got %d", cp.StepIndex, decoded.StepIndex)
	}
	if decoded.FormatVersion != checkpointFormatHCP2 {
 t.Fatalf("expected HCP2 format tag, got %q", decoded.FormatVersion)
	}
	if decoded.ChannelVersions["counter"] != 2 {
 t.Fatalf("expected channel version preserved")
	}
}

func TestDecodeCheckpointLegacyMissingFieldsDefault(t *testing.T) {
	legacy := []byte(`{"id":"abc","threadID":"t","stepIndex":1,"schemaVersion":"H1:x","graphVersion":"H2:y"}`)
	cp, err := DecodeCheckpoint(legacy)
	if err != nil {
 t.Fatalf("decode legacy: %v", err)
	}
	if cp.FormatVersion != checkpointFormatHCP1 {
 t.Fatalf("expected HCP1 format tag for legacy record, got %q", cp.FormatVersion)
	}
	if cp.ChannelVersions == nil || cp.VersionsSeenByNode == nil || cp.GlobalDataByChannelID == nil || cp.JoinBarrierSeenByJoinID == nil {
 t.Fatalf("expected missing maps to default to empty, got %+v", cp)
	}
}

func TestDecodeCheckpointRejectsBadFingerprintLength(t *testing.T) {
	bad := []byte(`{"id":"abc","threadID":"t","frontier":[{"nodeID":"plan","localFingerprint":"AQID"}]}`)
	if _, err := DecodeCheckpoint(bad); err == nil {
 t.Fatalf("expected short fingerprint to be rejected")
	}
}

func TestDecodeCheckpointRejectsUnsortedJoinParents(t *testing.T) {
	bad := []byte(`{"id":"abc","threadID":"t","joinBarrierSeenByJoinID":{"join:a+b:c":["b","a"]}}`)
	if _, err := DecodeCheckpoint(bad); err == nil {
 t.Fatalf("expected unsorted join parents to be rejected")
	}
}
